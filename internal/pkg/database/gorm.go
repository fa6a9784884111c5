package database

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/contentpilot-ai/contentpilot/internal/domain/models"
	"github.com/contentpilot-ai/contentpilot/internal/pkg/config"
)

func NewGormDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dsn := cfg.DSN()

	gormConfig := &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Warn),
		DisableForeignKeyConstraintWhenMigrating: true,
		PrepareStmt:                              true,
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	log.Info().Msg("Database connected successfully")

	return db, nil
}

func AutoMigrate(db *gorm.DB) error {
	log.Info().Msg("Running database migrations...")

	err := db.AutoMigrate(
		&models.User{},
		&models.APIKey{},
		&models.Schedule{},
		&models.GenerationLog{},
		&models.Plan{},
		&models.Subscription{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info().Msg("Database migrations completed")
	return nil
}

func SeedPlans(db *gorm.DB) error {
	plans := []models.Plan{
		{
			ID:             "free",
			Name:           "Free",
			Description:    strPtr("Try it out"),
			PriceMonthly:   0,
			MonthlyCredits: 3,
			SchedulesLimit: 1,
			IsActive:       true,
			SortOrder:      1,
		},
		{
			ID:             "starter",
			Name:           "Starter",
			Description:    strPtr("For a single blog"),
			PriceMonthly:   1900, // $19
			MonthlyCredits: 30,
			SchedulesLimit: 3,
			IsActive:       true,
			SortOrder:      2,
		},
		{
			ID:             "growth",
			Name:           "Growth",
			Description:    strPtr("For content teams"),
			PriceMonthly:   4900, // $49
			MonthlyCredits: 120,
			SchedulesLimit: 10,
			IsActive:       true,
			SortOrder:      3,
		},
		{
			ID:             "agency",
			Name:           "Agency",
			Description:    strPtr("For agencies running many sites"),
			PriceMonthly:   14900, // $149
			MonthlyCredits: 500,
			SchedulesLimit: -1, // unlimited
			IsActive:       true,
			SortOrder:      4,
		},
	}

	for _, plan := range plans {
		var existing models.Plan
		if err := db.First(&existing, "id = ?", plan.ID).Error; err == gorm.ErrRecordNotFound {
			plan.CreatedAt = time.Now()
			plan.UpdatedAt = time.Now()
			if err := db.Create(&plan).Error; err != nil {
				return fmt.Errorf("failed to seed plan %s: %w", plan.ID, err)
			}
			log.Info().Str("plan", plan.ID).Msg("Created plan")
		}
	}

	return nil
}

func strPtr(s string) *string {
	return &s
}
