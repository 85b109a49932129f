package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/appagent/aso/pkg/models"
)

// FindCompetitorsRequest is the input to competitor discovery.
type FindCompetitorsRequest struct {
	AppID            string
	Locale           string
	ShortDescription string
}

const findCompetitorsSteps = 6

// FindCompetitors discovers rival apps for an app+locale and persists
// the selected set. Similar-apps and own-record lookups may fail for
// apps without a public listing; those branches degrade to empty
// results instead of aborting.
func (p *Pipelines) FindCompetitors(ctx context.Context, req FindCompetitorsRequest, sink Sink) ([]models.Competitor, error) {
	t := newTracker(sink, findCompetitorsSteps)
	comps, err := p.findCompetitors(ctx, t, req)
	if err != nil {
		t.fail(err)
		return nil, err
	}
	t.point(models.ProgressEvent{Type: models.EventFinalCompetitors, Data: comps})
	return comps, nil
}

func (p *Pipelines) findCompetitors(ctx context.Context, t *tracker, req FindCompetitorsRequest) ([]models.Competitor, error) {
	if strings.TrimSpace(req.ShortDescription) == "" {
		return nil, fmt.Errorf("%w: short description is required", models.ErrInvalidInput)
	}

	t.start("getAppInfo", "Loading app listing")
	loc, err := p.localizations.GetLocalization(ctx, req.AppID, req.Locale)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(loc.Title) == "" {
		return nil, fmt.Errorf("%w: locale %s has no title", models.ErrInvalidInput, req.Locale)
	}
	currentKeywords := loc.KeywordList()
	t.end("getAppInfo", nil)

	pool := newAppPool(req.AppID)

	t.start("getSimilarApps", "Fetching similar apps")
	similar, err := p.search.GetSimilarApps(ctx, req.AppID, req.Locale)
	if err != nil {
		// Expected for apps with no public listing yet.
		log.Debug().Err(err).Str("app_id", req.AppID).Msg("Similar apps unavailable, continuing without")
		similar = nil
	}
	pool.add(similar...)
	t.end("getSimilarApps", len(similar))

	if pool.len() < minBeforeTitleSearch {
		t.start("searchByTitle", "Searching by app title")
		res, err := p.search.SearchLocale(ctx, req.Locale, loc.Title, titleSearchDepth)
		if err != nil {
			return nil, err
		}
		pool.add(res.Apps...)
		t.end("searchByTitle", pool.len())
	}

	terms := currentKeywords
	if len(terms) <= 4 {
		// Extra step beyond the nominal count; keep the reported total
		// ahead of the step counter.
		t.grow()
		t.start("generateKeywords", "Generating search keywords")
		generated, err := p.model.GenerateAsoKeywords(ctx, req.Locale, loc.Title, req.ShortDescription)
		if err != nil {
			return nil, err
		}
		if len(generated) > 10 {
			generated = generated[:10]
		}
		terms = generated
		t.end("generateKeywords", terms)
	}

	t.start("searchByKeywords", "Searching by keywords")
	hits, err := p.searchByKeywords(ctx, req.Locale, terms)
	if err != nil {
		return nil, err
	}
	pool.add(hits...)
	t.end("searchByKeywords", pool.len())

	apps := pool.apps()

	t.start("filterByReviews", "Filtering by review count")
	if own, err := p.search.GetApp(ctx, req.AppID, req.Locale); err != nil {
		// Unpublished apps have no own record; keep everything.
		log.Debug().Err(err).Str("app_id", req.AppID).Msg("Own app record unavailable, skipping review filter")
	} else {
		kept := apps[:0]
		for _, app := range apps {
			if app.Reviews >= own.Reviews {
				kept = append(kept, app)
			}
		}
		apps = kept
	}
	t.end("filterByReviews", len(apps))

	t.start("filterByFunction", "Filtering by functional relevance")
	apps, err = p.model.FilterApps(ctx, loc.Title, req.ShortDescription, apps)
	if err != nil {
		return nil, err
	}
	t.end("filterByFunction", len(apps))

	sort.SliceStable(apps, func(i, j int) bool { return apps[i].Reviews > apps[j].Reviews })
	if len(apps) > competitorSelectCount {
		apps = apps[:competitorSelectCount]
	}

	saved := make([]models.Competitor, 0, len(apps))
	for _, app := range apps {
		comp, err := p.competitors.AddCompetitor(ctx, req.AppID, req.Locale, models.Competitor{
			CompetitorID: app.ID,
			Title:        app.Title,
			Description:  app.Description,
			IconURL:      app.Icon,
			Reviews:      app.Reviews,
			Store:        models.StoreAppStore,
		})
		if err != nil {
			return nil, err
		}
		saved = append(saved, comp)
	}
	return saved, nil
}

// searchByKeywords fans out store searches over terms in batches,
// keeping results with enough reviews to be signal.
func (p *Pipelines) searchByKeywords(ctx context.Context, localeCode string, terms []string) ([]models.AppSummary, error) {
	results, err := forEachBatch(ctx, terms, batchOptions[[]models.AppSummary]{
		Size:  searchBatchSize,
		Delay: interBatchDelay,
		sleep: p.sleep,
	}, func(ctx context.Context, term string) ([]models.AppSummary, error) {
		res, err := p.search.SearchLocale(ctx, localeCode, term, titleSearchDepth)
		if err != nil {
			return nil, err
		}
		kept := make([]models.AppSummary, 0, len(res.Apps))
		for _, app := range res.Apps {
			if app.Reviews > minKeywordHitReviews {
				kept = append(kept, app)
			}
		}
		return kept, nil
	})
	if err != nil {
		return nil, err
	}

	var out []models.AppSummary
	for _, batch := range results {
		out = append(out, batch...)
	}
	return out, nil
}

// appPool accumulates candidate apps, deduplicating by id and always
// excluding the subject app.
type appPool struct {
	selfID string
	ids    map[string]struct{}
	list   []models.AppSummary
}

func newAppPool(selfID string) *appPool {
	return &appPool{selfID: selfID, ids: make(map[string]struct{})}
}

func (p *appPool) add(apps ...models.AppSummary) {
	for _, app := range apps {
		if app.ID == "" || app.ID == p.selfID {
			continue
		}
		if _, dup := p.ids[app.ID]; dup {
			continue
		}
		p.ids[app.ID] = struct{}{}
		p.list = append(p.list, app)
	}
}

func (p *appPool) len() int { return len(p.list) }

func (p *appPool) apps() []models.AppSummary {
	return append([]models.AppSummary(nil), p.list...)
}
