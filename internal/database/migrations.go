package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/entries"
	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/sentiment"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationStripProviderPrefix = "2026-04-11_strip_entry_owner_provider_prefix"
	migrationNormalizeSentiments = "2026-05-02_normalize_entry_sentiments"
	legacyProviderPrefix         = "google:"
	columnSentiment              = "sentiment"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func migrationsInOrder() []migrationDefinition {
	return []migrationDefinition{
		{name: migrationStripProviderPrefix, apply: stripEntryOwnerProviderPrefix},
		{name: migrationNormalizeSentiments, apply: normalizeEntrySentiments},
	}
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	for _, migration := range migrationsInOrder() {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		txErr := db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return fmt.Errorf("migration %s: %w", migration.name, err)
			}
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: time.Now().UTC().Unix()}).Error
		})
		if txErr != nil {
			return txErr
		}
		logger.Info("database migration applied", zap.String("migration", migration.name))
	}
	return nil
}

// stripEntryOwnerProviderPrefix rewrites owners stored as "google:<subject>"
// to the canonical subject that the identity service resolves.
func stripEntryOwnerProviderPrefix(db *gorm.DB) error {
	start := len(legacyProviderPrefix) + 1
	return db.Model(&entries.Entry{}).
		Where("user_id LIKE ?", legacyProviderPrefix+"%").
		Update("user_id", gorm.Expr("substr(user_id, ?)", start)).Error
}

// normalizeEntrySentiments lowercases stored labels and maps anything unknown to neutral.
func normalizeEntrySentiments(db *gorm.DB) error {
	if err := db.Model(&entries.Entry{}).
		Where("sentiment <> lower(trim(sentiment))").
		Update(columnSentiment, gorm.Expr("lower(trim(sentiment))")).Error; err != nil {
		return err
	}
	known := []string{
		sentiment.Positive.String(),
		sentiment.Negative.String(),
		sentiment.Neutral.String(),
	}
	return db.Model(&entries.Entry{}).
		Where("sentiment NOT IN ?", known).
		Update(columnSentiment, sentiment.Neutral.String()).Error
}
