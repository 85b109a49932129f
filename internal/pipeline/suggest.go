package pipeline

import (
	"context"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/appagent/aso/internal/llm"
	"github.com/appagent/aso/pkg/models"
)

// SuggestKeywordsRequest is the input to the lifecycle-aware suggestion
// pipeline. HasPublicVersion tells it whether live ranking signal
// exists for the app.
type SuggestKeywordsRequest struct {
	App              models.AppIdentity
	ShortDescription string
	HasPublicVersion bool
}

const suggestKeywordsSteps = 7

// SuggestKeywords is the alternate keyword entry point for apps with
// prior ASO state. Unlike SelectAndScoreKeywords it sources competitor
// apps ad hoc (similar apps plus searches over the app's configured
// keywords) instead of the tracked-competitor table, and it anchors on
// the app's current keywords, keeping those that still score well.
// Apps with no public version skip straight to AI generation.
func (p *Pipelines) SuggestKeywords(ctx context.Context, req SuggestKeywordsRequest, sink Sink) ([]models.AsoKeyword, error) {
	total := suggestKeywordsSteps
	run := p.suggestKeywords
	if !req.HasPublicVersion {
		total = changeStrategySteps
		run = p.suggestUnpublished
	}

	t := newTracker(sink, total)
	if err := validateSuggest(req); err != nil {
		t.fail(err)
		return nil, err
	}
	saved, err := run(ctx, t, req)
	if err != nil {
		t.fail(err)
		return nil, err
	}
	t.point(models.ProgressEvent{Type: models.EventFinalKeywords, Data: saved})
	return saved, nil
}

// validateSuggest rejects requests that would generate on empty input
// or persist under an empty identity tuple. Both lifecycle branches
// share it.
func validateSuggest(req SuggestKeywordsRequest) error {
	if strings.TrimSpace(req.ShortDescription) == "" {
		return fmt.Errorf("%w: short description is required", models.ErrInvalidInput)
	}
	if req.App.Store == "" || req.App.Platform == "" {
		return fmt.Errorf("%w: store and platform are required", models.ErrInvalidInput)
	}
	return nil
}

// suggestUnpublished handles apps with no released version: there is
// no ranking signal to anchor on, so generation is the only strategy.
func (p *Pipelines) suggestUnpublished(ctx context.Context, t *tracker, req SuggestKeywordsRequest) ([]models.AsoKeyword, error) {
	loc, err := p.localizations.GetLocalization(ctx, req.App.ID, req.App.Locale)
	if err != nil {
		return nil, err
	}
	return p.changeStrategy(ctx, t, req.App, loc.Title, req.ShortDescription, nil, false)
}

func (p *Pipelines) suggestKeywords(ctx context.Context, t *tracker, req SuggestKeywordsRequest) ([]models.AsoKeyword, error) {
	loc, err := p.localizations.GetLocalization(ctx, req.App.ID, req.App.Locale)
	if err != nil {
		return nil, err
	}
	currentKeywords := loc.KeywordList()

	// Current keywords that still perform stay in the set regardless of
	// what the competitor pool yields.
	t.start("scoreCurrentKeywords", "Scoring current keywords")
	currentScores, err := p.scoreCandidates(ctx, t, req.App.Locale, req.App.ID, llm.NormalizeKeywords(currentKeywords))
	if err != nil {
		return nil, err
	}
	kept := make([]models.KeywordScore, 0, len(currentScores))
	for _, s := range currentScores {
		if s.Overall >= keepCurrentScore {
			kept = append(kept, s)
		}
	}
	t.end("scoreCurrentKeywords", len(kept))

	t.start("collectApps", "Collecting competitor apps")
	pool := newAppPool(req.App.ID)
	similar, err := p.search.GetSimilarApps(ctx, req.App.ID, req.App.Locale)
	if err != nil {
		log.Debug().Err(err).Str("app_id", req.App.ID).Msg("Similar apps unavailable, continuing without")
		similar = nil
	}
	pool.add(similar...)
	hits, err := p.searchByKeywords(ctx, req.App.Locale, currentKeywords)
	if err != nil {
		return nil, err
	}
	pool.add(hits...)
	t.end("collectApps", pool.len())

	t.start("extractKeywords", "Extracting keywords from competitor apps")
	extracted, err := p.extractAppKeywords(ctx, req.App.Locale, pool.apps())
	if err != nil {
		return nil, err
	}
	for _, s := range kept {
		extracted = append(extracted, s.Keyword)
	}
	extracted = dedupeKeywords(llm.NormalizeKeywords(extracted))
	t.end("extractKeywords", len(extracted))

	t.start("rerankKeywords", "Ranking keyword candidates")
	candidates, err := p.rerankToBudget(ctx, loc.Title, req.ShortDescription, req.App.Locale, extracted)
	if err != nil {
		return nil, err
	}
	t.end("rerankKeywords", candidates)

	t.start("sanityCheck", "Verifying keyword language")
	confirmed, err := p.model.LocaleSanityCheck(ctx, req.App.Locale, candidates)
	if err != nil {
		return nil, err
	}
	passed := len(candidates) > 0 && float64(len(confirmed)) >= sanityPassRatio*float64(len(candidates))
	t.end("sanityCheck", len(confirmed))

	if !passed {
		// A sanity check already ran, so the fallback skips its own.
		t.grow()
		return p.changeStrategy(ctx, t, req.App, loc.Title, req.ShortDescription, kept, true)
	}

	candidates = sliceToBudget(candidates, int(scoringHeadroom*KeywordFieldBudget))

	t.start("scoreKeywords", "Scoring keywords")
	scores, err := p.scoreCandidates(ctx, t, req.App.Locale, req.App.ID, candidates)
	if err != nil {
		return nil, err
	}
	t.end("scoreKeywords", len(scores))

	// Low-value unranked candidates are noise.
	merged := make([]models.KeywordScore, 0, len(scores)+len(kept))
	seen := make(map[string]struct{}, len(scores)+len(kept))
	for _, s := range append(append([]models.KeywordScore{}, kept...), scores...) {
		if s.Overall < noiseOverall && s.Position == -1 {
			continue
		}
		if _, dup := seen[s.Keyword]; dup {
			continue
		}
		seen[s.Keyword] = struct{}{}
		merged = append(merged, s)
	}

	if fillRatio(merged) < budgetFillRatio {
		t.grow()
		t.grow()
		return p.changeStrategy(ctx, t, req.App, loc.Title, req.ShortDescription, merged, true)
	}

	t.start("saveKeywords", "Saving keyword set")
	saved, err := p.persistKeywords(ctx, req.App, merged)
	if err != nil {
		return nil, err
	}
	t.end("saveKeywords", len(saved))
	return saved, nil
}

// fillRatio is the fraction of the keyword-field budget used by the
// comma-joined keyword set.
func fillRatio(scores []models.KeywordScore) float64 {
	keywords := make([]string, len(scores))
	for i, s := range scores {
		keywords[i] = s.Keyword
	}
	return float64(joinedLen(keywords)) / float64(KeywordFieldBudget)
}

// extractAppKeywords extracts keywords from ad hoc competitor apps,
// going through the keyword cache when one is wired. These apps have
// no tracked-competitor row to carry guessed keywords, so the cache is
// the only reuse path.
func (p *Pipelines) extractAppKeywords(ctx context.Context, localeCode string, apps []models.AppSummary) ([]string, error) {
	results, err := forEachBatch(ctx, apps, batchOptions[[]string]{Size: extractBatchSize},
		func(ctx context.Context, app models.AppSummary) ([]string, error) {
			key := fmt.Sprintf("guess:%s:%s", localeCode, app.ID)
			if p.kwCache != nil {
				if data, ok, err := p.kwCache.Get(ctx, key); err == nil && ok {
					var cached []string
					if err := json.Unmarshal(data, &cached); err == nil {
						return cached, nil
					}
				}
			}

			keywords, err := p.model.ExtractKeywords(ctx, app.Title, app.Description)
			if err != nil {
				return nil, err
			}

			if p.kwCache != nil {
				if data, err := json.Marshal(keywords); err == nil {
					if err := p.kwCache.Set(ctx, key, data, p.kwCacheTTL); err != nil {
						log.Warn().Err(err).Str("key", key).Msg("Failed to cache extracted keywords")
					}
				}
			}
			return keywords, nil
		})
	if err != nil {
		return nil, err
	}

	var union []string
	for _, keywords := range results {
		union = append(union, keywords...)
	}
	return union, nil
}
