package services

import (
	"context"

	"payments-service/internal/payfast"
)

// SyncDispatcher runs or schedules subscription work.
type SyncDispatcher interface {
	// DispatchSync syncs token for userID. env is the environment the caller
	// already resolved for its operation.
	DispatchSync(ctx context.Context, env payfast.Environment, token string, userID uint) error
	// DispatchSweep runs or queues the named resync sweep.
	DispatchSweep(ctx context.Context, sweep string) error
}

// InlineSyncDispatcher does the work on the caller's goroutine.
type InlineSyncDispatcher struct {
	Subscriptions *SubscriptionService
	Resync        *ResyncService
}

func (d InlineSyncDispatcher) DispatchSync(ctx context.Context, env payfast.Environment, token string, userID uint) error {
	_, err := d.Subscriptions.SyncWith(ctx, env, token, userID)
	return err
}

func (d InlineSyncDispatcher) DispatchSweep(ctx context.Context, sweep string) error {
	_, err := d.Resync.Sweep(ctx, sweep)
	return err
}
