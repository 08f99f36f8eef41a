package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"payments-service/internal/logger"
	"payments-service/internal/metrics"
	"payments-service/internal/models"
	"payments-service/internal/payfast"
)

const (
	SweepNeedsResync = "needs-resync"
	SweepFull        = "full"
)

// SweepResult summarises one sweep.
type SweepResult struct {
	RunID   string
	Sweep   string
	Total   int
	Synced  int
	Failed  int
	Skipped bool
}

// ResyncService re-syncs local subscriptions from the gateway on a schedule.
type ResyncService struct {
	Subscriptions *SubscriptionService
	Locker        Locker
	Log           *zap.Logger

	cron *cron.Cron
	wg   sync.WaitGroup
}

func NewResyncService(subscriptions *SubscriptionService, locker Locker, log *zap.Logger) *ResyncService {
	return &ResyncService{
		Subscriptions: subscriptions,
		Locker:        locker,
		Log:           log.Named("resync"),
	}
}

// SweepNeedsResync syncs every subscription flagged as needing a resync.
func (s *ResyncService) SweepNeedsResync(ctx context.Context) SweepResult {
	return s.sweep(ctx, SweepNeedsResync, models.SubscriptionStatusNeedsResync)
}

// SweepAll syncs every local subscription.
func (s *ResyncService) SweepAll(ctx context.Context) SweepResult {
	return s.sweep(ctx, SweepFull, 0)
}

// Sweep runs the sweep named SweepNeedsResync or SweepFull.
func (s *ResyncService) Sweep(ctx context.Context, name string) (SweepResult, error) {
	switch name {
	case SweepNeedsResync:
		return s.SweepNeedsResync(ctx), nil
	case SweepFull:
		return s.SweepAll(ctx), nil
	default:
		return SweepResult{}, &payfast.ValidationError{Field: "sweep", Reason: fmt.Sprintf("unknown sweep %q", name)}
	}
}

// sweep runs sequentially and carries on past individual failures; the next
// run retries them.
func (s *ResyncService) sweep(ctx context.Context, name string, status int) SweepResult {
	result := SweepResult{RunID: uuid.NewString(), Sweep: name}
	log := s.Log.With(zap.String("sweep", name), zap.String("run_id", result.RunID))

	if s.Locker != nil {
		key := "payments:resync:" + name
		token, ok, err := s.Locker.TryLock(ctx, key, time.Hour)
		if err != nil {
			log.Warn("resync lock unavailable, running unlocked", zap.Error(err))
		} else if !ok {
			log.Info("resync sweep held by another replica")
			metrics.SweepRuns.WithLabelValues(name, "locked").Inc()
			result.Skipped = true
			return result
		} else {
			defer func() {
				if err := s.Locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
					log.Warn("resync lock release failed", zap.Error(err))
				}
			}()
		}
	}

	tokens, err := s.Subscriptions.Tokens(ctx, status)
	if err != nil {
		log.Error("resync sweep could not list subscriptions", zap.Error(err))
		metrics.SweepRuns.WithLabelValues(name, "failed").Inc()
		return result
	}
	result.Total = len(tokens)

	for _, token := range tokens {
		if ctx.Err() != nil {
			break
		}
		if _, err := s.Subscriptions.Resync(ctx, token); err != nil {
			result.Failed++
			continue
		}
		result.Synced++
	}

	log.Info("resync sweep finished",
		zap.Int("total", result.Total),
		zap.Int("synced", result.Synced),
		zap.Int("failed", result.Failed))
	metrics.SweepRuns.WithLabelValues(name, "ok").Inc()
	return result
}

// Job wraps sweep as a cron job that is skipped while a previous run of the
// same job is still in flight.
func (s *ResyncService) Job(ctx context.Context, sweep func(context.Context) SweepResult) cron.Job {
	chain := cron.NewChain(
		cron.Recover(logger.CronLogger{Log: s.Log}),
		cron.SkipIfStillRunning(logger.CronLogger{Log: s.Log}),
	)
	return chain.Then(cron.FuncJob(func() { sweep(ctx) }))
}

// Start schedules both sweeps and runs each once immediately.
func (s *ResyncService) Start(ctx context.Context, needsInterval, fullInterval time.Duration) {
	s.cron = cron.New(cron.WithLogger(logger.CronLogger{Log: s.Log}))

	needs := s.Job(ctx, s.SweepNeedsResync)
	full := s.Job(ctx, s.SweepAll)
	s.cron.Schedule(cron.Every(needsInterval), needs)
	s.cron.Schedule(cron.Every(fullInterval), full)
	s.cron.Start()

	for _, job := range []cron.Job{needs, full} {
		s.wg.Add(1)
		go func(job cron.Job) {
			defer s.wg.Done()
			job.Run()
		}(job)
	}

	s.Log.Info("resync scheduler started",
		zap.Duration("needs_interval", needsInterval),
		zap.Duration("full_interval", fullInterval))
}

// Stop stops scheduling and waits for running sweeps.
func (s *ResyncService) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.wg.Wait()
}
