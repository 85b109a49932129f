package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/appagent/aso/pkg/models"
)

// SelectKeywordsRequest is the input to keyword selection and scoring.
type SelectKeywordsRequest struct {
	App              models.AppIdentity
	ShortDescription string
}

const selectKeywordsSteps = 5

// SelectAndScoreKeywords builds the app's scored keyword set from its
// tracked competitors: extract candidates, rerank, verify the language,
// score against live search results, persist wholesale. When the
// sanity check rejects too much of the pool the pipeline falls back to
// AI generation, adding one step to the run.
func (p *Pipelines) SelectAndScoreKeywords(ctx context.Context, req SelectKeywordsRequest, sink Sink) ([]models.AsoKeyword, error) {
	t := newTracker(sink, selectKeywordsSteps)
	saved, err := p.selectAndScoreKeywords(ctx, t, req)
	if err != nil {
		t.fail(err)
		return nil, err
	}
	t.point(models.ProgressEvent{Type: models.EventFinalKeywords, Data: saved})
	return saved, nil
}

const rescoreKeywordsSteps = 3

// RescoreKeywords refreshes the persisted scores of the app's current
// keyword set against live search results, skipping extraction and
// reranking entirely.
func (p *Pipelines) RescoreKeywords(ctx context.Context, app models.AppIdentity, sink Sink) ([]models.AsoKeyword, error) {
	t := newTracker(sink, rescoreKeywordsSteps)
	saved, err := p.rescoreKeywords(ctx, t, app)
	if err != nil {
		t.fail(err)
		return nil, err
	}
	t.point(models.ProgressEvent{Type: models.EventFinalKeywords, Data: saved})
	return saved, nil
}

func (p *Pipelines) rescoreKeywords(ctx context.Context, t *tracker, app models.AppIdentity) ([]models.AsoKeyword, error) {
	if app.Store == "" || app.Platform == "" {
		return nil, fmt.Errorf("%w: store and platform are required", models.ErrInvalidInput)
	}

	t.start("loadKeywords", "Loading current keyword set")
	rows, err := p.keywords.GetKeywords(ctx, app.ID, app.Store, app.Platform, app.Locale)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no keyword set to re-score", models.ErrNotFound)
	}
	candidates := make([]string, len(rows))
	for i, row := range rows {
		candidates[i] = row.Keyword
	}
	t.end("loadKeywords", len(candidates))

	t.start("scoreKeywords", "Scoring keywords")
	scores, err := p.scoreCandidates(ctx, t, app.Locale, app.ID, candidates)
	if err != nil {
		return nil, err
	}
	t.end("scoreKeywords", len(scores))

	t.start("saveKeywords", "Saving keyword set")
	saved, err := p.persistKeywords(ctx, app, scores)
	if err != nil {
		return nil, err
	}
	t.end("saveKeywords", len(saved))

	return saved, nil
}

func (p *Pipelines) selectAndScoreKeywords(ctx context.Context, t *tracker, req SelectKeywordsRequest) ([]models.AsoKeyword, error) {
	if strings.TrimSpace(req.ShortDescription) == "" {
		return nil, fmt.Errorf("%w: short description is required", models.ErrInvalidInput)
	}
	if req.App.Store == "" || req.App.Platform == "" {
		return nil, fmt.Errorf("%w: store and platform are required", models.ErrInvalidInput)
	}

	loc, err := p.localizations.GetLocalization(ctx, req.App.ID, req.App.Locale)
	if err != nil {
		return nil, err
	}

	t.start("extractKeywords", "Extracting keywords from competitors")
	comps, err := p.competitors.GetTrackedCompetitors(ctx, req.App.ID, req.App.Locale)
	if err != nil {
		return nil, err
	}
	if len(comps) > maxTrackedCompetitors {
		comps = comps[:maxTrackedCompetitors]
	}
	pool, err := p.extractCompetitorKeywords(ctx, comps)
	if err != nil {
		return nil, err
	}
	t.end("extractKeywords", len(pool))

	t.start("rerankKeywords", "Ranking keyword candidates")
	candidates, err := p.rerankToBudget(ctx, loc.Title, req.ShortDescription, req.App.Locale, pool)
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
		// Fallback branch: the pool is mostly out-of-language, so
		// generate candidates directly instead.
		t.grow()
		t.start("generateKeywords", "Generating keywords")
		t.point(models.ProgressEvent{Type: models.EventChangeStrategy, Message: "Candidates failed the language check, generating fresh keywords"})
		generated, err := p.model.GenerateAsoKeywords(ctx, req.App.Locale, loc.Title, req.ShortDescription)
		if err != nil {
			return nil, err
		}
		candidates = sliceToBudget(generated, KeywordFieldBudget)
		t.end("generateKeywords", candidates)
	}

	// Headroom over the field budget; scoring usually eliminates some.
	candidates = sliceToBudget(candidates, int(scoringHeadroom*KeywordFieldBudget))

	t.start("scoreKeywords", "Scoring keywords")
	scores, err := p.scoreCandidates(ctx, t, req.App.Locale, req.App.ID, candidates)
	if err != nil {
		return nil, err
	}
	t.end("scoreKeywords", len(scores))

	t.start("saveKeywords", "Saving keyword set")
	saved, err := p.persistKeywords(ctx, req.App, scores)
	if err != nil {
		return nil, err
	}
	t.end("saveKeywords", len(saved))

	return saved, nil
}
