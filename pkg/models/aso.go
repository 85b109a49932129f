// Package models contains domain models for the AppAgent ASO pipeline.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// Store identifies which app store a record belongs to.
type Store string

const (
	StoreAppStore   Store = "APPSTORE"
	StoreGooglePlay Store = "GOOGLEPLAY"
)

// Platform identifies the device platform of the subject app.
type Platform string

const (
	PlatformIOS     Platform = "IOS"
	PlatformAndroid Platform = "ANDROID"
)

// AppIdentity identifies the subject app throughout the pipelines.
// The ID is the store-assigned app id; records are read-only to this core.
type AppIdentity struct {
	ID       string   `json:"id"`
	Locale   string   `json:"locale"`
	Store    Store    `json:"store"`
	Platform Platform `json:"platform"`
}

// AppSummary is a partial app record as returned by store search.
// Ephemeral; cached by the search client, never persisted directly.
type AppSummary struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Icon        string  `json:"icon"`
	Reviews     int     `json:"reviews"`
	Score       float64 `json:"score"`
}

// Competitor is a tracked rival app for a given app+locale.
// Keyed by (AppID, Locale, CompetitorID); at most one row per key.
type Competitor struct {
	ID              int64           `json:"id"`
	AppID           string          `json:"appId"`
	Locale          string          `json:"locale"`
	CompetitorID    string          `json:"competitorId"`
	Title           string          `json:"title"`
	Subtitle        string          `json:"subtitle"`
	Description     string          `json:"description"`
	IconURL         string          `json:"iconUrl"`
	Reviews         int             `json:"reviews"`
	Store           Store           `json:"store"`
	GuessedKeywords JSONStringArray `json:"guessedKeywords,omitempty"`
	Order           int             `json:"order"`
}

// AsoKeyword is a persisted scored keyword for an app.
// Keyed by (AppID, Store, Platform, Locale, Keyword). A scoring run
// replaces the whole set for its tuple rather than patching rows.
type AsoKeyword struct {
	ID              int64    `json:"id"`
	AppID           string   `json:"appId"`
	Store           Store    `json:"store"`
	Platform        Platform `json:"platform"`
	Locale          string   `json:"locale"`
	Keyword         string   `json:"keyword"`
	TrafficScore    float64  `json:"trafficScore"`
	DifficultyScore float64  `json:"difficultyScore"`
	// Position is the 1-based rank of the app in the keyword's search
	// results, or -1 when not found within the examined depth.
	Position int     `json:"position"`
	Overall  float64 `json:"overall"`
}

// KeywordScore is the transient scoring result flowing through the
// extraction -> reranking -> scoring stages. It maps 1:1 onto the
// persisted fields of AsoKeyword plus a cache-hit flag used upstream
// to decide whether to add inter-request delay.
type KeywordScore struct {
	Keyword         string  `json:"keyword"`
	TrafficScore    float64 `json:"trafficScore"`
	DifficultyScore float64 `json:"difficultyScore"`
	Position        int     `json:"position"`
	Overall         float64 `json:"overall"`
	CacheHit        bool    `json:"cacheHit"`
}

// ToAsoKeyword converts a transient score into a persistable row for the
// given identity tuple.
func (k KeywordScore) ToAsoKeyword(appID string, store Store, platform Platform, locale string) AsoKeyword {
	return AsoKeyword{
		AppID:           appID,
		Store:           store,
		Platform:        platform,
		Locale:          locale,
		Keyword:         k.Keyword,
		TrafficScore:    k.TrafficScore,
		DifficultyScore: k.DifficultyScore,
		Position:        k.Position,
		Overall:         k.Overall,
	}
}

// AsoContent is both the current-listing input shape and the generated
// output shape of content optimization. Keywords is a single delimited
// string, distinct from the AsoKeyword entities.
type AsoContent struct {
	Title       string `json:"title"`
	Subtitle    string `json:"subtitle"`
	Description string `json:"description"`
	Keywords    string `json:"keywords"`
}

// ContentField names a generatable listing field.
type ContentField string

const (
	FieldTitle       ContentField = "title"
	FieldSubtitle    ContentField = "subtitle"
	FieldDescription ContentField = "description"
	FieldKeywords    ContentField = "keywords"
)

// AppLocalization is the stored per-app-per-locale listing read by the
// pipelines. The discovery pipeline requires a non-empty Title.
type AppLocalization struct {
	AppID       string `json:"appId"`
	Locale      string `json:"locale"`
	Title       string `json:"title"`
	Subtitle    string `json:"subtitle"`
	Description string `json:"description"`
	Keywords    string `json:"keywords"`
}

// KeywordList splits the configured keywords string on ASCII and
// full-width commas, trimming and dropping empties.
func (l AppLocalization) KeywordList() []string {
	fields := strings.FieldsFunc(l.Keywords, func(r rune) bool {
		return r == ',' || r == '，'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// JSONStringArray stores a string slice as a JSON column.
type JSONStringArray []string

// Scan implements sql.Scanner for JSONStringArray.
func (j *JSONStringArray) Scan(src interface{}) error {
	if src == nil {
		*j = nil
		return nil
	}

	var data []byte
	switch v := src.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("JSONStringArray: unsupported type %T", src)
	}

	if len(data) == 0 {
		*j = nil
		return nil
	}

	return json.Unmarshal(data, j)
}

// Value implements driver.Valuer for JSONStringArray.
func (j JSONStringArray) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}
