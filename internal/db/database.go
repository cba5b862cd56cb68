package db

import (
	"log"
	"time"

	"github.com/kimtwitch/object-sync-for-salesforce/internal/config"
	"github.com/kimtwitch/object-sync-for-salesforce/internal/metrics"
	"github.com/kimtwitch/object-sync-for-salesforce/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func InitDB() {
	var err error

	if config.AppConfig == nil || config.AppConfig.Database.DSN == "" {
		log.Fatalf("Database DSN is required")
	}

	dsn := config.AppConfig.Database.DSN

	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
		PrepareStmt:                              true,
		TranslateError:                           true,
		Logger:                                   logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}

	log.Println("Database connected successfully")

	if err := DB.AutoMigrate(
		&models.Fieldmap{},
		&models.ObjectMap{},
		&models.Transient{},
		&models.SyncEvent{},
		&models.Setting{},
	); err != nil {
		log.Fatalf("AutoMigrate failed: %v", err)
	}

	initDefaultSettings(DB)

	log.Println("Database schema migrated successfully")
}

// initDefaultSettings seeds plugin-level settings on first boot.
func initDefaultSettings(db *gorm.DB) {
	defaults := []models.Setting{
		{
			Key:         "salesforce_api_version",
			Value:       config.AppConfig.Salesforce.APIVersion,
			Description: "Salesforce REST API version used for sync calls",
			UpdatedBy:   "system",
		},
		{
			Key:         "push_enabled",
			Value:       "true",
			Description: "Whether push (WordPress to Salesforce) dispatch is enabled",
			UpdatedBy:   "system",
		},
		{
			Key:         "pull_enabled",
			Value:       "true",
			Description: "Whether pull (Salesforce to WordPress) dispatch is enabled",
			UpdatedBy:   "system",
		},
	}

	for _, setting := range defaults {
		var existing models.Setting
		if err := db.Where("config_key = ?", setting.Key).First(&existing).Error; err != nil {
			if err := db.Create(&setting).Error; err != nil {
				log.Printf("Failed to seed setting %s: %v", setting.Key, err)
			}
		}
	}
}

// StartPoolMetrics periodically exports connection pool stats. It returns
// immediately; the sampling loop runs until the process exits.
func StartPoolMetrics(interval time.Duration) {
	if DB == nil {
		return
	}
	sqlDB, err := DB.DB()
	if err != nil {
		log.Printf("Failed to get sql.DB for pool metrics: %v", err)
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			stats := sqlDB.Stats()
			metrics.DBConnectionPoolSize.Set(float64(stats.MaxOpenConnections))
			metrics.DBConnectionActive.Set(float64(stats.InUse))
			metrics.DBConnectionIdle.Set(float64(stats.Idle))
		}
	}()
}
