package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"payments-service/internal/models"
	"payments-service/internal/payfast"
)

// EnvironmentService picks the active gateway environment from
// GlobalSettings. Nothing is cached: every logical operation resolves once and
// passes the result along.
type EnvironmentService struct {
	DB        *gorm.DB
	Endpoints payfast.Endpoints
}

func NewEnvironmentService(db *gorm.DB, endpoints payfast.Endpoints) *EnvironmentService {
	return &EnvironmentService{DB: db, Endpoints: endpoints}
}

// IsSandbox defaults to true when no settings row exists.
func (s *EnvironmentService) IsSandbox(ctx context.Context) (bool, error) {
	var settings models.GlobalSettings
	err := s.DB.WithContext(ctx).Order("id").First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("read global settings: %w", err)
	}
	return settings.SandboxEnabled, nil
}

func (s *EnvironmentService) Resolve(ctx context.Context) (payfast.Environment, error) {
	sandbox, err := s.IsSandbox(ctx)
	if err != nil {
		return payfast.Environment{}, err
	}

	name := models.EnvironmentProduction
	if sandbox {
		name = models.EnvironmentSandbox
	}

	var integration models.PayfastIntegration
	err = s.DB.WithContext(ctx).Where("environment = ?", name).First(&integration).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return payfast.Environment{}, &payfast.NotFoundError{Resource: "payfast integration", Key: name}
	}
	if err != nil {
		return payfast.Environment{}, fmt.Errorf("read payfast integration: %w", err)
	}

	return payfast.Environment{
		Sandbox: sandbox,
		Credentials: payfast.Credentials{
			MerchantID:  integration.MerchantID,
			MerchantKey: integration.MerchantKey,
			Passphrase:  integration.Passphrase,
		},
		Endpoints: s.Endpoints,
	}, nil
}

// SetSandbox flips the active environment.
func (s *EnvironmentService) SetSandbox(ctx context.Context, sandbox bool) error {
	var settings models.GlobalSettings
	err := s.DB.WithContext(ctx).Order("id").First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.DB.WithContext(ctx).Create(&models.GlobalSettings{SandboxEnabled: sandbox}).Error
	}
	if err != nil {
		return err
	}
	return s.DB.WithContext(ctx).Model(&settings).Update("sandbox_enabled", sandbox).Error
}
