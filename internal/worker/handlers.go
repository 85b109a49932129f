package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/appagent/aso/internal/appstore"
	"github.com/appagent/aso/internal/pipeline"
	"github.com/appagent/aso/pkg/models"
)

// Searcher is the store search surface the handlers consume directly.
type Searcher interface {
	SearchLocale(ctx context.Context, localeCode, term string, num int) (appstore.SearchResult, error)
}

// Scorer scores one keyword for an app in a locale.
type Scorer interface {
	ScoreKeyword(ctx context.Context, localeCode, keyword, appID string) (models.KeywordScore, error)
}

// writeJSON writes a JSON response with proper error handling.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError maps the error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var fieldErr *models.ContentFieldError
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrLLMRefusal), errors.As(err, &fieldErr):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrUpstream):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// decodeJSON decodes a request body, mapping failures onto the invalid
// input taxonomy.
func decodeJSON(r *http.Request, out any) error {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	return nil
}

// startStream prepares a newline-delimited JSON progress response.
// Consumers buffer until a newline and parse each line independently.
func startStream(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// handleHealth reports liveness.
func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.startTime).Round(time.Second).String(),
	})
}

// handleReady reports readiness; the database must answer a ping.
func (s *Service) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		if err := s.store.Ping(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// findCompetitorsPayload is the request body for competitor discovery.
type findCompetitorsPayload struct {
	AppID            string `json:"appId"`
	Locale           string `json:"locale"`
	ShortDescription string `json:"shortDescription"`
}

// handleFindCompetitors streams the competitor discovery pipeline.
// Errors after streaming starts surface as an error event on the
// stream; the HTTP status is already committed by then.
func (s *Service) handleFindCompetitors(w http.ResponseWriter, r *http.Request) {
	var payload findCompetitorsPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	startStream(w)
	sink := pipeline.NewStreamSink(r.Context(), w)
	if _, err := s.pipelines.FindCompetitors(r.Context(), pipeline.FindCompetitorsRequest{
		AppID:            payload.AppID,
		Locale:           payload.Locale,
		ShortDescription: payload.ShortDescription,
	}, sink); err != nil {
		log.Error().Err(err).Str("app_id", payload.AppID).Str("locale", payload.Locale).Msg("Competitor discovery failed")
	}
}

// selectKeywordsPayload is the request body for keyword selection.
type selectKeywordsPayload struct {
	AppID            string          `json:"appId"`
	Locale           string          `json:"locale"`
	Store            models.Store    `json:"store"`
	Platform         models.Platform `json:"platform"`
	ShortDescription string          `json:"shortDescription"`
}

func (p selectKeywordsPayload) identity() models.AppIdentity {
	return models.AppIdentity{ID: p.AppID, Locale: p.Locale, Store: p.Store, Platform: p.Platform}
}

// handleSelectKeywords streams the keyword selection and scoring
// pipeline.
func (s *Service) handleSelectKeywords(w http.ResponseWriter, r *http.Request) {
	var payload selectKeywordsPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	startStream(w)
	sink := pipeline.NewStreamSink(r.Context(), w)
	if _, err := s.pipelines.SelectAndScoreKeywords(r.Context(), pipeline.SelectKeywordsRequest{
		App:              payload.identity(),
		ShortDescription: payload.ShortDescription,
	}, sink); err != nil {
		log.Error().Err(err).Str("app_id", payload.AppID).Str("locale", payload.Locale).Msg("Keyword selection failed")
	}
}

// rescoreKeywordsPayload is the request body for re-scoring the stored
// keyword set.
type rescoreKeywordsPayload struct {
	AppID    string          `json:"appId"`
	Locale   string          `json:"locale"`
	Store    models.Store    `json:"store"`
	Platform models.Platform `json:"platform"`
}

// handleRescoreKeywords streams a refresh of the persisted keyword
// scores without re-running extraction.
func (s *Service) handleRescoreKeywords(w http.ResponseWriter, r *http.Request) {
	var payload rescoreKeywordsPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	startStream(w)
	sink := pipeline.NewStreamSink(r.Context(), w)
	if _, err := s.pipelines.RescoreKeywords(r.Context(), models.AppIdentity{
		ID:       payload.AppID,
		Locale:   payload.Locale,
		Store:    payload.Store,
		Platform: payload.Platform,
	}, sink); err != nil {
		log.Error().Err(err).Str("app_id", payload.AppID).Str("locale", payload.Locale).Msg("Keyword re-score failed")
	}
}

// suggestKeywordsPayload is the request body for the legacy suggestion
// pipeline.
type suggestKeywordsPayload struct {
	selectKeywordsPayload
	HasPublicVersion bool `json:"hasPublicVersion"`
}

// handleSuggestKeywords streams the lifecycle-aware suggestion
// pipeline.
func (s *Service) handleSuggestKeywords(w http.ResponseWriter, r *http.Request) {
	var payload suggestKeywordsPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	startStream(w)
	sink := pipeline.NewStreamSink(r.Context(), w)
	if _, err := s.pipelines.SuggestKeywords(r.Context(), pipeline.SuggestKeywordsRequest{
		App:              payload.identity(),
		ShortDescription: payload.ShortDescription,
		HasPublicVersion: payload.HasPublicVersion,
	}, sink); err != nil {
		log.Error().Err(err).Str("app_id", payload.AppID).Str("locale", payload.Locale).Msg("Keyword suggestion failed")
	}
}

// optimizeContentsPayload is the request body for content optimization.
type optimizeContentsPayload struct {
	Locale             string                `json:"locale"`
	Store              models.Store          `json:"store"`
	Title              string                `json:"title"`
	Keywords           []models.AsoKeyword   `json:"keywords"`
	Targets            []models.ContentField `json:"targets"`
	CurrentSubtitle    string                `json:"currentSubtitle"`
	CurrentKeywords    string                `json:"currentKeywords"`
	CurrentDescription string                `json:"currentDescription"`
	DescriptionOutline string                `json:"descriptionOutline"`
	PreviousResult     string                `json:"previousResult"`
	UserFeedback       string                `json:"userFeedback"`
}

// handleOptimizeContents runs content optimization and returns the
// generated listing as one JSON object (no streaming; a single
// generation round trip dominates the latency).
func (s *Service) handleOptimizeContents(w http.ResponseWriter, r *http.Request) {
	var payload optimizeContentsPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	content, err := s.pipelines.OptimizeContents(r.Context(), pipeline.OptimizeRequest{
		Locale:             payload.Locale,
		Store:              payload.Store,
		Title:              payload.Title,
		Keywords:           payload.Keywords,
		Targets:            payload.Targets,
		CurrentSubtitle:    payload.CurrentSubtitle,
		CurrentKeywords:    payload.CurrentKeywords,
		CurrentDescription: payload.CurrentDescription,
		DescriptionOutline: payload.DescriptionOutline,
		PreviousResult:     payload.PreviousResult,
		UserFeedback:       payload.UserFeedback,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, content)
}

// handleGetCompetitors lists tracked competitors for an app+locale.
func (s *Service) handleGetCompetitors(w http.ResponseWriter, r *http.Request) {
	appID := r.URL.Query().Get("appId")
	locale := r.URL.Query().Get("locale")
	if appID == "" || locale == "" {
		writeError(w, fmt.Errorf("%w: appId and locale are required", models.ErrInvalidInput))
		return
	}

	comps, err := s.competitors.GetTrackedCompetitors(r.Context(), appID, locale)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"competitors": comps})
}

// competitorPayload is the request body for manual competitor add.
type competitorPayload struct {
	AppID      string            `json:"appId"`
	Locale     string            `json:"locale"`
	Competitor models.Competitor `json:"competitor"`
}

// handleAddCompetitor manually adds (or refreshes) one competitor.
func (s *Service) handleAddCompetitor(w http.ResponseWriter, r *http.Request) {
	var payload competitorPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	comp, err := s.competitors.AddCompetitor(r.Context(), payload.AppID, payload.Locale, payload.Competitor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, comp)
}

// updateCompetitorsPayload is the request body for the full-replace
// reorder operation.
type updateCompetitorsPayload struct {
	AppID       string              `json:"appId"`
	Locale      string              `json:"locale"`
	Competitors []models.Competitor `json:"competitors"`
}

// handleUpdateCompetitors replaces the tracked set wholesale; array
// order becomes display order.
func (s *Service) handleUpdateCompetitors(w http.ResponseWriter, r *http.Request) {
	var payload updateCompetitorsPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	comps, err := s.competitors.UpdateCompetitors(r.Context(), payload.AppID, payload.Locale, payload.Competitors)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"competitors": comps})
}

// handleRemoveCompetitor deletes one competitor by row id, scoped to
// app+locale. Removal of an absent row reports ok=false, not an error.
func (s *Service) handleRemoveCompetitor(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, fmt.Errorf("%w: bad competitor id", models.ErrInvalidInput))
		return
	}
	appID := r.URL.Query().Get("appId")
	locale := r.URL.Query().Get("locale")
	if appID == "" || locale == "" {
		writeError(w, fmt.Errorf("%w: appId and locale are required", models.ErrInvalidInput))
		return
	}

	ok := s.competitors.RemoveCompetitor(r.Context(), appID, locale, id)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": ok})
}

// handleSearch runs a manual store search, used to find competitors by
// hand.
func (s *Service) handleSearch(w http.ResponseWriter, r *http.Request) {
	locale := r.URL.Query().Get("locale")
	term := r.URL.Query().Get("term")
	num, _ := strconv.Atoi(r.URL.Query().Get("num"))
	if num <= 0 {
		num = 10
	}

	res, err := s.search.SearchLocale(r.Context(), locale, term, num)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleGetKeywords returns the stored scored keyword set for an
// identity tuple, ordered by overall descending.
func (s *Service) handleGetKeywords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	appID := q.Get("appId")
	locale := q.Get("locale")
	if appID == "" || locale == "" {
		writeError(w, fmt.Errorf("%w: appId and locale are required", models.ErrInvalidInput))
		return
	}

	keywords, err := s.keywords.GetKeywords(r.Context(), appID, models.Store(q.Get("store")), models.Platform(q.Get("platform")), locale)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"keywords": keywords})
}

// scoreKeywordPayload is the request body for ad hoc keyword scoring.
type scoreKeywordPayload struct {
	AppID   string `json:"appId"`
	Locale  string `json:"locale"`
	Keyword string `json:"keyword"`
}

// handleScoreKeyword re-scores one keyword on demand without touching
// the stored set.
func (s *Service) handleScoreKeyword(w http.ResponseWriter, r *http.Request) {
	var payload scoreKeywordPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	score, err := s.scorer.ScoreKeyword(r.Context(), payload.Locale, payload.Keyword, payload.AppID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, score)
}

// handleUpsertLocalization stores the per-locale listing the pipelines
// read.
func (s *Service) handleUpsertLocalization(w http.ResponseWriter, r *http.Request) {
	var loc models.AppLocalization
	if err := decodeJSON(r, &loc); err != nil {
		writeError(w, err)
		return
	}
	if loc.AppID == "" || loc.Locale == "" {
		writeError(w, fmt.Errorf("%w: appId and locale are required", models.ErrInvalidInput))
		return
	}

	if err := s.localizations.Upsert(r.Context(), loc); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loc)
}
