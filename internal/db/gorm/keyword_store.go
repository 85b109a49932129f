package gorm

import (
	"context"
	"fmt"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/appagent/aso/pkg/models"
)

// KeywordStore persists scored keyword sets.
//
// ReplaceSet serializes per (appID, store, platform, locale): the
// wholesale delete-then-upsert is not safe against a concurrent run for
// the same tuple, so a per-tuple mutex enforces at most one active
// replace per tuple in this process.
type KeywordStore struct {
	db      *gorm.DB
	tupleMu sync.Map // tuple key -> *sync.Mutex
}

// NewKeywordStore creates a keyword store wrapper.
func NewKeywordStore(store *Store) *KeywordStore {
	return &KeywordStore{db: store.DB}
}

func tupleKey(appID string, store models.Store, platform models.Platform, localeCode string) string {
	return fmt.Sprintf("%s|%s|%s|%s", appID, store, platform, localeCode)
}

func (s *KeywordStore) lockTuple(key string) *sync.Mutex {
	mu, _ := s.tupleMu.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// ReplaceSet replaces the keyword set for the tuple wholesale: rows not
// present in the new set are deleted, present ones are upserted with
// fresh scores. Runs in one transaction under the tuple mutex.
func (s *KeywordStore) ReplaceSet(ctx context.Context, appID string, store models.Store, platform models.Platform, localeCode string, scores []models.KeywordScore) ([]models.AsoKeyword, error) {
	key := tupleKey(appID, store, platform, localeCode)
	mu := s.lockTuple(key)
	mu.Lock()
	defer mu.Unlock()

	keep := make([]string, 0, len(scores))
	rows := make([]AsoKeyword, 0, len(scores))
	for _, score := range scores {
		if score.Keyword == "" {
			continue
		}
		keep = append(keep, score.Keyword)
		kw := score.ToAsoKeyword(appID, store, platform, localeCode)
		rows = append(rows, AsoKeyword{
			AppID:           kw.AppID,
			Store:           string(kw.Store),
			Platform:        string(kw.Platform),
			Locale:          kw.Locale,
			Keyword:         kw.Keyword,
			TrafficScore:    kw.TrafficScore,
			DifficultyScore: kw.DifficultyScore,
			Position:        kw.Position,
			Overall:         kw.Overall,
		})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		del := tx.Where("app_id = ? AND store = ? AND platform = ? AND locale = ?",
			appID, string(store), string(platform), localeCode)
		if len(keep) > 0 {
			del = del.Where("keyword NOT IN ?", keep)
		}
		if err := del.Delete(&AsoKeyword{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "app_id"}, {Name: "store"}, {Name: "platform"},
				{Name: "locale"}, {Name: "keyword"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"traffic_score", "difficulty_score", "position", "overall",
			}),
		}).Create(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("replace keyword set: %w", err)
	}

	return s.GetKeywords(ctx, appID, store, platform, localeCode)
}

// GetKeywords returns the persisted set for the tuple ordered by
// overall score descending.
func (s *KeywordStore) GetKeywords(ctx context.Context, appID string, store models.Store, platform models.Platform, localeCode string) ([]models.AsoKeyword, error) {
	var rows []AsoKeyword
	err := s.db.WithContext(ctx).
		Where("app_id = ? AND store = ? AND platform = ? AND locale = ?",
			appID, string(store), string(platform), localeCode).
		Order("overall DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list keywords: %w", err)
	}

	out := make([]models.AsoKeyword, len(rows))
	for i, row := range rows {
		out[i] = row.toModel()
	}
	return out, nil
}
