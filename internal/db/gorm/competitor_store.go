package gorm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/appagent/aso/pkg/models"
)

// CompetitorStore provides CRUD over tracked competitors.
type CompetitorStore struct {
	db *gorm.DB
}

// NewCompetitorStore creates a competitor store wrapper.
func NewCompetitorStore(store *Store) *CompetitorStore {
	return &CompetitorStore{db: store.DB}
}

// AddCompetitor upserts a competitor by its natural key
// (appID, locale, competitorID). New rows are created with a zeroed
// display order; existing rows get their mutable display fields
// refreshed. A competitor without a source id is rejected.
func (s *CompetitorStore) AddCompetitor(ctx context.Context, appID, localeCode string, comp models.Competitor) (models.Competitor, error) {
	if strings.TrimSpace(comp.CompetitorID) == "" {
		return models.Competitor{}, fmt.Errorf("%w: competitor id is required", models.ErrInvalidInput)
	}

	var row Competitor
	err := s.db.WithContext(ctx).
		Where("app_id = ? AND locale = ? AND competitor_id = ?", appID, localeCode, comp.CompetitorID).
		First(&row).Error

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		row = Competitor{
			AppID:           appID,
			Locale:          localeCode,
			CompetitorID:    comp.CompetitorID,
			Title:           comp.Title,
			Subtitle:        comp.Subtitle,
			Description:     comp.Description,
			IconURL:         comp.IconURL,
			Reviews:         comp.Reviews,
			Store:           string(comp.Store),
			GuessedKeywords: comp.GuessedKeywords,
			DisplayOrder:    0,
		}
		if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
			return models.Competitor{}, fmt.Errorf("create competitor: %w", err)
		}
	case err != nil:
		return models.Competitor{}, fmt.Errorf("find competitor: %w", err)
	default:
		row.Title = comp.Title
		row.Subtitle = comp.Subtitle
		row.Description = comp.Description
		row.IconURL = comp.IconURL
		row.Reviews = comp.Reviews
		row.Store = string(comp.Store)
		if comp.GuessedKeywords != nil {
			row.GuessedKeywords = comp.GuessedKeywords
		}
		if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
			return models.Competitor{}, fmt.Errorf("update competitor: %w", err)
		}
	}

	return row.toModel(), nil
}

// GetTrackedCompetitors returns all competitors for (appID, locale)
// ordered by display order ascending.
func (s *CompetitorStore) GetTrackedCompetitors(ctx context.Context, appID, localeCode string) ([]models.Competitor, error) {
	var rows []Competitor
	err := s.db.WithContext(ctx).
		Where("app_id = ? AND locale = ?", appID, localeCode).
		Order("display_order ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list competitors: %w", err)
	}

	out := make([]models.Competitor, len(rows))
	for i, row := range rows {
		out[i] = row.toModel()
	}
	return out, nil
}

// UpdateCompetitors replaces the tracked set wholesale: all rows for
// the tuple are deleted and recreated in the given order, with display
// order assigned from the array index.
func (s *CompetitorStore) UpdateCompetitors(ctx context.Context, appID, localeCode string, comps []models.Competitor) ([]models.Competitor, error) {
	for _, comp := range comps {
		if strings.TrimSpace(comp.CompetitorID) == "" {
			return nil, fmt.Errorf("%w: competitor id is required", models.ErrInvalidInput)
		}
	}

	var rows []Competitor
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("app_id = ? AND locale = ?", appID, localeCode).
			Delete(&Competitor{}).Error; err != nil {
			return err
		}
		rows = make([]Competitor, len(comps))
		for i, comp := range comps {
			rows[i] = Competitor{
				AppID:           appID,
				Locale:          localeCode,
				CompetitorID:    comp.CompetitorID,
				Title:           comp.Title,
				Subtitle:        comp.Subtitle,
				Description:     comp.Description,
				IconURL:         comp.IconURL,
				Reviews:         comp.Reviews,
				Store:           string(comp.Store),
				GuessedKeywords: comp.GuessedKeywords,
				DisplayOrder:    i,
			}
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("replace competitors: %w", err)
	}

	out := make([]models.Competitor, len(rows))
	for i, row := range rows {
		out[i] = row.toModel()
	}
	return out, nil
}

// RemoveCompetitor deletes a competitor by primary id, scoped to
// (appID, locale) so a stale id cannot touch another app's rows.
// Returns whether a row was deleted.
func (s *CompetitorStore) RemoveCompetitor(ctx context.Context, appID, localeCode string, id int64) bool {
	result := s.db.WithContext(ctx).
		Where("id = ? AND app_id = ? AND locale = ?", id, appID, localeCode).
		Delete(&Competitor{})
	if result.Error != nil {
		return false
	}
	return result.RowsAffected > 0
}

// SetGuessedKeywords caches extracted keywords onto a competitor row.
func (s *CompetitorStore) SetGuessedKeywords(ctx context.Context, id int64, keywords []string) error {
	return s.db.WithContext(ctx).
		Model(&Competitor{}).
		Where("id = ?", id).
		Update("guessed_keywords", models.JSONStringArray(keywords)).Error
}
