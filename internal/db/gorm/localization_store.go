package gorm

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/appagent/aso/pkg/models"
)

// LocalizationStore reads and writes per-app-per-locale listing fields.
// The pipelines only read; the import flow (out of scope here) and
// tests write via Upsert.
type LocalizationStore struct {
	db *gorm.DB
}

// NewLocalizationStore creates a localization store wrapper.
func NewLocalizationStore(store *Store) *LocalizationStore {
	return &LocalizationStore{db: store.DB}
}

// GetLocalization returns the stored listing for (appID, locale).
func (s *LocalizationStore) GetLocalization(ctx context.Context, appID, localeCode string) (models.AppLocalization, error) {
	var row AppLocalization
	err := s.db.WithContext(ctx).
		Where("app_id = ? AND locale = ?", appID, localeCode).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.AppLocalization{}, fmt.Errorf("%w: localization %s/%s", models.ErrNotFound, appID, localeCode)
	}
	if err != nil {
		return models.AppLocalization{}, fmt.Errorf("find localization: %w", err)
	}
	return row.toModel(), nil
}

// Upsert writes a listing keyed by (appID, locale).
func (s *LocalizationStore) Upsert(ctx context.Context, loc models.AppLocalization) error {
	row := AppLocalization{
		AppID:       loc.AppID,
		Locale:      loc.Locale,
		Title:       loc.Title,
		Subtitle:    loc.Subtitle,
		Description: loc.Description,
		Keywords:    loc.Keywords,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "app_id"}, {Name: "locale"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "subtitle", "description", "keywords",
		}),
	}).Create(&row).Error
}
