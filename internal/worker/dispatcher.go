package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"payments-service/internal/consumers"
	"payments-service/internal/payfast"
)

const syncMaxRetry = 8

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqDispatcher queues subscription work instead of running it on the
// request. The worker resolves its own environment when the task runs.
type AsynqDispatcher struct {
	Client Enqueuer
}

func NewAsynqDispatcher(client Enqueuer) *AsynqDispatcher {
	return &AsynqDispatcher{Client: client}
}

func (d *AsynqDispatcher) DispatchSync(ctx context.Context, _ payfast.Environment, token string, userID uint) error {
	task, err := NewSubscriptionSyncTask(consumers.SubscriptionSyncDTO{Token: token, UserID: userID})
	if err != nil {
		return err
	}
	_, err = d.Client.EnqueueContext(ctx, task,
		asynq.Queue("critical"),
		asynq.MaxRetry(syncMaxRetry),
		asynq.Timeout(time.Minute),
	)
	if err != nil {
		return fmt.Errorf("enqueue subscription sync %s: %w", token, err)
	}
	return nil
}

func (d *AsynqDispatcher) DispatchSweep(ctx context.Context, sweep string) error {
	task, err := NewResyncSweepTask(consumers.ResyncSweepDTO{Sweep: sweep})
	if err != nil {
		return err
	}
	// One queued sweep per name at a time.
	_, err = d.Client.EnqueueContext(ctx, task,
		asynq.Queue("default"),
		asynq.MaxRetry(0),
		asynq.Timeout(time.Hour),
		asynq.Unique(time.Hour),
	)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue resync sweep %s: %w", sweep, err)
	}
	return nil
}
