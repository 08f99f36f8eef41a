package database

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"payments-service/internal/logger"
	"payments-service/internal/models"
)

var DB *gorm.DB

// DefaultSubscriptionBasePrice is the yearly price used when product 2 has none.
var DefaultSubscriptionBasePrice = decimal.NewFromInt(708)

func Connect(dsn string, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.NewGormLogger(log),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	DB = db
	log.Info("Database connection established")
	return db, nil
}

// Migrate creates or updates every payments table.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Product{},
		&models.Invoice{},
		&models.InvoiceItem{},
		&models.Transaction{},
		&models.SubscriptionFrequency{},
		&models.Subscription{},
		&models.PayfastIntegration{},
		&models.GlobalSettings{},
		&models.ItnLog{},
	)
	if err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	return nil
}

// Seed inserts the reference rows the payment flows depend on. Existing rows
// are left untouched.
func Seed(db *gorm.DB) error {
	frequencies := []models.SubscriptionFrequency{
		{PayfastID: 3, Name: "monthly"},
		{PayfastID: 5, Name: "biannually"},
		{PayfastID: 6, Name: "yearly"},
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&frequencies).Error; err != nil {
		return fmt.Errorf("seed frequencies: %w", err)
	}

	products := []models.Product{
		{ID: 1, Name: "Tip", BasePrice: decimal.Zero},
		{ID: 2, Name: "Subscription", BasePrice: DefaultSubscriptionBasePrice},
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&products).Error; err != nil {
		return fmt.Errorf("seed products: %w", err)
	}

	var settings models.GlobalSettings
	err := db.First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := db.Create(&models.GlobalSettings{SandboxEnabled: true}).Error; err != nil {
			return fmt.Errorf("seed global settings: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("seed global settings: %w", err)
	}
	return nil
}
