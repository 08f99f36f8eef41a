package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"payments-service/internal/metrics"
	"payments-service/internal/models"
	"payments-service/internal/payfast"
	"payments-service/pkg/common"
)

// Gateway is the subset of the gateway API the services call.
type Gateway interface {
	ValidateNotification(ctx context.Context, env payfast.Environment, payload []byte) (bool, error)
	FetchSubscription(ctx context.Context, env payfast.Environment, token string) (*payfast.RemoteSubscription, error)
	CancelSubscription(ctx context.Context, env payfast.Environment, token string) error
}

// synced lists the columns a sync overwrites on an existing row. Insert and
// update therefore produce the same row for the same remote state.
var synced = []string{
	"user_id", "frequency_id", "cycles", "cycles_complete", "run_date",
	"status_id", "status_text", "status_reason", "amount",
}

type SubscriptionService struct {
	DB      *gorm.DB
	Env     *EnvironmentService
	Gateway Gateway
	Log     *zap.Logger
	Now     func() time.Time
}

func NewSubscriptionService(db *gorm.DB, env *EnvironmentService, gateway Gateway, log *zap.Logger) *SubscriptionService {
	return &SubscriptionService{
		DB:      db,
		Env:     env,
		Gateway: gateway,
		Log:     log.Named("subscriptions"),
		Now:     time.Now,
	}
}

// Sync pulls token's state from the gateway and upserts it for userID.
func (s *SubscriptionService) Sync(ctx context.Context, token string, userID uint) (*models.Subscription, error) {
	env, err := s.Env.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return s.SyncWith(ctx, env, token, userID)
}

// SyncWith is Sync against an already resolved environment.
func (s *SubscriptionService) SyncWith(ctx context.Context, env payfast.Environment, token string, userID uint) (*models.Subscription, error) {
	sub, err := s.syncWith(ctx, env, token, userID)
	if err != nil {
		metrics.SubscriptionSyncs.WithLabelValues("failed").Inc()
		s.Log.Warn("subscription sync failed", zap.String("token", token), zap.Uint("user_id", userID),
			zap.String("environment", env.Name()), zap.Error(err))
		return nil, err
	}
	metrics.SubscriptionSyncs.WithLabelValues("ok").Inc()
	s.Log.Info("subscription synced", zap.String("token", token), zap.Uint("user_id", userID),
		zap.Int("status", sub.StatusID), zap.Time("run_date", sub.RunDate))
	return sub, nil
}

func (s *SubscriptionService) syncWith(ctx context.Context, env payfast.Environment, token string, userID uint) (*models.Subscription, error) {
	if token == "" {
		return nil, &payfast.ValidationError{Field: "token", Reason: "required"}
	}

	remote, err := s.Gateway.FetchSubscription(ctx, env, token)
	if err != nil {
		return nil, err
	}

	var frequency models.SubscriptionFrequency
	err = s.DB.WithContext(ctx).Where("payfast_id = ?", remote.Frequency).First(&frequency).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &payfast.NotFoundError{Resource: "subscription frequency", Key: remote.Frequency}
	}
	if err != nil {
		return nil, fmt.Errorf("load frequency %d: %w", remote.Frequency, err)
	}

	row := models.Subscription{
		Token:          token,
		UserID:         userID,
		FrequencyID:    frequency.ID,
		Cycles:         remote.Cycles,
		CyclesComplete: remote.CyclesComplete,
		RunDate:        remote.RunDate.UTC(),
		StatusID:       remote.Status,
		StatusText:     remote.StatusText,
		StatusReason:   remote.StatusReason,
		Amount:         remote.Amount,
	}
	err = s.DB.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "token"}},
			DoUpdates: clause.AssignmentColumns(synced),
		}).
		Create(&row).Error
	if err != nil {
		return nil, fmt.Errorf("upsert subscription %s: %w", token, err)
	}

	return s.Get(ctx, token)
}

// Get loads the local subscription for token.
func (s *SubscriptionService) Get(ctx context.Context, token string) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.DB.WithContext(ctx).Preload("Frequency").Where("token = ?", token).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &payfast.NotFoundError{Resource: "subscription", Key: token}
	}
	if err != nil {
		return nil, fmt.Errorf("load subscription %s: %w", token, err)
	}
	return &sub, nil
}

// Resync refreshes an existing subscription, keeping its owner.
func (s *SubscriptionService) Resync(ctx context.Context, token string) (*models.Subscription, error) {
	existing, err := s.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.Sync(ctx, token, existing.UserID)
}

// Cancel cancels token at the gateway and then stores whatever state the
// gateway reports afterwards.
func (s *SubscriptionService) Cancel(ctx context.Context, token string) (*models.Subscription, error) {
	existing, err := s.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	env, err := s.Env.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.Gateway.CancelSubscription(ctx, env, token); err != nil {
		return nil, err
	}
	s.Log.Info("subscription cancelled at gateway", zap.String("token", token), zap.String("environment", env.Name()))
	return s.SyncWith(ctx, env, token, existing.UserID)
}

// HasValidSubscription is true while a paid period is running, or while any
// of the user's subscriptions awaits resync.
func (s *SubscriptionService) HasValidSubscription(ctx context.Context, userID uint) (bool, error) {
	var count int64
	err := s.DB.WithContext(ctx).Model(&models.Subscription{}).
		Where("user_id = ? AND (run_date > ? OR status_id = ?)", userID, s.Now().UTC(), models.SubscriptionStatusNeedsResync).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// HasActiveSubscription is true for an active subscription with a future run date.
func (s *SubscriptionService) HasActiveSubscription(ctx context.Context, userID uint) (bool, error) {
	var count int64
	err := s.DB.WithContext(ctx).Model(&models.Subscription{}).
		Where("user_id = ? AND run_date > ? AND status_id = ?", userID, s.Now().UTC(), models.SubscriptionStatusActive).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *SubscriptionService) ListForUser(ctx context.Context, userID uint, page common.Page) ([]models.Subscription, int64, error) {
	var (
		subs  []models.Subscription
		total int64
	)
	q := s.DB.WithContext(ctx).Model(&models.Subscription{}).Where("user_id = ?", userID).Session(&gorm.Session{})
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Preload("Frequency").Order("run_date DESC").Offset(page.Offset()).Limit(page.Limit).Find(&subs).Error
	if err != nil {
		return nil, 0, err
	}
	return subs, total, nil
}

// Tokens returns the tokens of every subscription, or only those with status
// when status is non-zero.
func (s *SubscriptionService) Tokens(ctx context.Context, status int) ([]string, error) {
	var tokens []string
	q := s.DB.WithContext(ctx).Model(&models.Subscription{}).Order("id")
	if status != 0 {
		q = q.Where("status_id = ?", status)
	}
	if err := q.Pluck("token", &tokens).Error; err != nil {
		return nil, err
	}
	return tokens, nil
}
