package consumers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"payments-service/internal/payfast"
	"payments-service/internal/services"
)

// SubscriptionProcessor executes queued subscription work.
type SubscriptionProcessor struct {
	Subscriptions *services.SubscriptionService
	Resync        *services.ResyncService
	Log           *zap.Logger
}

func NewSubscriptionProcessor(subscriptions *services.SubscriptionService, resync *services.ResyncService, log *zap.Logger) *SubscriptionProcessor {
	return &SubscriptionProcessor{
		Subscriptions: subscriptions,
		Resync:        resync,
		Log:           log.Named("consumer"),
	}
}

// --- DTOs ---

// SubscriptionSyncDTO asks for Token to be pulled from the gateway and stored
// for UserID.
type SubscriptionSyncDTO struct {
	Token  string `json:"token"`
	UserID uint   `json:"user_id"`
}

type ResyncSweepDTO struct {
	Sweep string `json:"sweep"`
}

func (p *SubscriptionProcessor) ProcessSubscriptionSync(ctx context.Context, dto SubscriptionSyncDTO) error {
	if dto.UserID == 0 {
		return &payfast.ValidationError{Field: "user_id", Reason: "required"}
	}
	sub, err := p.Subscriptions.Sync(ctx, dto.Token, dto.UserID)
	if err != nil {
		return fmt.Errorf("sync subscription %s: %w", dto.Token, err)
	}
	p.Log.Info("queued subscription sync done",
		zap.String("token", sub.Token),
		zap.Uint("user_id", sub.UserID),
		zap.Int("status", sub.StatusID))
	return nil
}

// ProcessResyncSweep runs one sweep on demand. Per-subscription failures are
// counted in the result, not returned.
func (p *SubscriptionProcessor) ProcessResyncSweep(ctx context.Context, dto ResyncSweepDTO) error {
	result, err := p.Resync.Sweep(ctx, dto.Sweep)
	if err != nil {
		return err
	}
	p.Log.Info("queued resync sweep done",
		zap.String("sweep", result.Sweep),
		zap.String("run_id", result.RunID),
		zap.Bool("skipped", result.Skipped),
		zap.Int("synced", result.Synced),
		zap.Int("failed", result.Failed))
	return nil
}
