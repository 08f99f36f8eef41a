package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"payments-service/internal/consumers"
	"payments-service/internal/payfast"
)

// Processor is the work the handlers hand off to.
type Processor interface {
	ProcessSubscriptionSync(ctx context.Context, dto consumers.SubscriptionSyncDTO) error
	ProcessResyncSweep(ctx context.Context, dto consumers.ResyncSweepDTO) error
}

type Worker struct {
	Processor Processor
	Log       *zap.Logger
}

func NewWorker(processor Processor, log *zap.Logger) *Worker {
	return &Worker{
		Processor: processor,
		Log:       log.Named("worker"),
	}
}

func (w *Worker) HandleSubscriptionSync(ctx context.Context, t *asynq.Task) error {
	var p consumers.SubscriptionSyncDTO
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	return w.classify(t, w.Processor.ProcessSubscriptionSync(ctx, p))
}

func (w *Worker) HandleResyncSweep(ctx context.Context, t *asynq.Task) error {
	var p consumers.ResyncSweepDTO
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	return w.classify(t, w.Processor.ProcessResyncSweep(ctx, p))
}

// classify stops retries for errors a retry cannot fix.
func (w *Worker) classify(t *asynq.Task, err error) error {
	if err == nil {
		return nil
	}
	var (
		invalid  *payfast.ValidationError
		notFound *payfast.NotFoundError
	)
	if errors.As(err, &invalid) || errors.As(err, &notFound) {
		w.Log.Warn("task failed permanently", zap.String("type", t.Type()), zap.Error(err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	w.Log.Warn("task failed, will retry", zap.String("type", t.Type()), zap.Error(err))
	return err
}

// NewServeMux routes every payments task type to w.
func NewServeMux(w *Worker) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeSubscriptionSync, w.HandleSubscriptionSync)
	mux.HandleFunc(TypeResyncSweep, w.HandleResyncSweep)
	return mux
}

// StartWorker runs the asynq server until it is stopped by a signal.
func StartWorker(redisOpt asynq.RedisClientOpt, processor Processor, log *zap.Logger) error {
	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			Logger: log.Named("asynq").Sugar(),
		},
	)

	worker := NewWorker(processor, log)
	if err := srv.Run(NewServeMux(worker)); err != nil {
		return fmt.Errorf("could not run server: %w", err)
	}
	return nil
}
