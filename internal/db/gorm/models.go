package gorm

import (
	"github.com/appagent/aso/pkg/models"
)

// Competitor is a tracked rival app for (AppID, Locale); at most one
// row per (AppID, Locale, CompetitorID).
type Competitor struct {
	ID              int64                  `gorm:"primaryKey;autoIncrement"`
	AppID           string                 `gorm:"uniqueIndex:idx_competitor_key,priority:1;index:idx_competitor_app;not null"`
	Locale          string                 `gorm:"uniqueIndex:idx_competitor_key,priority:2;index:idx_competitor_app;not null"`
	CompetitorID    string                 `gorm:"uniqueIndex:idx_competitor_key,priority:3;not null"`
	Title           string                 `gorm:"not null"`
	Subtitle        string                 `gorm:"type:text"`
	Description     string                 `gorm:"type:text"`
	IconURL         string                 `gorm:"type:text"`
	Reviews         int                    `gorm:"default:0"`
	Store           string                 `gorm:"type:text;not null"`
	GuessedKeywords models.JSONStringArray `gorm:"type:text"`
	DisplayOrder    int                    `gorm:"column:display_order;default:0;index"`
}

func (Competitor) TableName() string { return "competitors" }

func (c Competitor) toModel() models.Competitor {
	return models.Competitor{
		ID:              c.ID,
		AppID:           c.AppID,
		Locale:          c.Locale,
		CompetitorID:    c.CompetitorID,
		Title:           c.Title,
		Subtitle:        c.Subtitle,
		Description:     c.Description,
		IconURL:         c.IconURL,
		Reviews:         c.Reviews,
		Store:           models.Store(c.Store),
		GuessedKeywords: c.GuessedKeywords,
		Order:           c.DisplayOrder,
	}
}

// AsoKeyword is one scored keyword row; the scoring pipelines replace
// all rows for (AppID, Store, Platform, Locale) wholesale on each run.
type AsoKeyword struct {
	ID              int64   `gorm:"primaryKey;autoIncrement"`
	AppID           string  `gorm:"uniqueIndex:idx_keyword_key,priority:1;not null"`
	Store           string  `gorm:"uniqueIndex:idx_keyword_key,priority:2;not null"`
	Platform        string  `gorm:"uniqueIndex:idx_keyword_key,priority:3;not null"`
	Locale          string  `gorm:"uniqueIndex:idx_keyword_key,priority:4;not null"`
	Keyword         string  `gorm:"uniqueIndex:idx_keyword_key,priority:5;not null"`
	TrafficScore    float64 `gorm:"type:real;default:0"`
	DifficultyScore float64 `gorm:"type:real;default:0"`
	Position        int     `gorm:"default:-1"`
	Overall         float64 `gorm:"type:real;default:0;index:idx_keyword_overall,sort:desc"`
}

func (AsoKeyword) TableName() string { return "aso_keywords" }

func (k AsoKeyword) toModel() models.AsoKeyword {
	return models.AsoKeyword{
		ID:              k.ID,
		AppID:           k.AppID,
		Store:           models.Store(k.Store),
		Platform:        models.Platform(k.Platform),
		Locale:          k.Locale,
		Keyword:         k.Keyword,
		TrafficScore:    k.TrafficScore,
		DifficultyScore: k.DifficultyScore,
		Position:        k.Position,
		Overall:         k.Overall,
	}
}

// AppLocalization is the stored per-app-per-locale listing the
// pipelines read (and the import flow writes).
type AppLocalization struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	AppID       string `gorm:"uniqueIndex:idx_localization_key,priority:1;not null"`
	Locale      string `gorm:"uniqueIndex:idx_localization_key,priority:2;not null"`
	Title       string `gorm:"type:text"`
	Subtitle    string `gorm:"type:text"`
	Description string `gorm:"type:text"`
	Keywords    string `gorm:"type:text"`
}

func (AppLocalization) TableName() string { return "app_localizations" }

func (l AppLocalization) toModel() models.AppLocalization {
	return models.AppLocalization{
		AppID:       l.AppID,
		Locale:      l.Locale,
		Title:       l.Title,
		Subtitle:    l.Subtitle,
		Description: l.Description,
		Keywords:    l.Keywords,
	}
}
