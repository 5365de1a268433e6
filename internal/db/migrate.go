package db

import (
	"fmt"
	"log"

	"go_certhub/internal/model"

	"gorm.io/gorm"
)

// Models lists every table managed by Migrate
func Models() []interface{} {
	return []interface{}{
		&model.Secret{},
		&model.AcmeAccount{},
		&model.DNSProvider{},
		&model.Certificate{},
		&model.WSEvent{},
	}
}

// Migrate runs database migrations for all models
func Migrate(db *gorm.DB) error {
	log.Println("Starting database migration...")

	models := Models()
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Printf("✓ Database migration completed successfully (%d tables)", len(models))
	return nil
}
