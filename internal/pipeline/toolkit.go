package pipeline

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/appagent/aso/internal/appstore"
	"github.com/appagent/aso/internal/llm"
	"github.com/appagent/aso/pkg/models"
)

// Batch and selection tuning. The inter-batch delay is crude rate
// limiting against the upstream search API, not a correctness need.
const (
	// KeywordFieldBudget is the App Store keyword field character cap.
	KeywordFieldBudget = 100

	maxTrackedCompetitors = 20
	competitorSelectCount = 16
	minBeforeTitleSearch  = 5
	titleSearchDepth      = 10
	minKeywordHitReviews  = 5

	extractBatchSize = 10
	searchBatchSize  = 5
	scoreBatchSize   = 3
	interBatchDelay  = time.Second

	sanityPassRatio  = 0.8
	minCandidates    = 16
	scoringHeadroom  = 1.5
	keepCurrentScore = 3.0
	noiseOverall     = 1.5
	budgetFillRatio  = 0.8
)

// StoreSearcher is the app store lookup surface the pipelines consume.
type StoreSearcher interface {
	SearchLocale(ctx context.Context, localeCode, term string, num int) (appstore.SearchResult, error)
	GetSimilarApps(ctx context.Context, appID, localeCode string) ([]models.AppSummary, error)
	GetApp(ctx context.Context, appID, localeCode string) (models.AppSummary, error)
}

// KeywordScorer scores a single keyword for an app in a locale.
type KeywordScorer interface {
	ScoreKeyword(ctx context.Context, localeCode, keyword, appID string) (models.KeywordScore, error)
}

// LanguageModel is the structured-output model surface. All operations
// may return models.ErrLLMRefusal.
type LanguageModel interface {
	ExtractKeywords(ctx context.Context, title, description string) ([]string, error)
	RerankKeywords(ctx context.Context, title, shortDescription, localeCode string, pool []string) ([]string, error)
	GenerateAsoKeywords(ctx context.Context, localeCode, title, shortDescription string) ([]string, error)
	LocaleSanityCheck(ctx context.Context, localeCode string, keywords []string) ([]string, error)
	KeywordFinalSanityCheck(ctx context.Context, localeCode string, keywords []string) ([]int, error)
	FilterApps(ctx context.Context, title, shortDescription string, apps []models.AppSummary) ([]models.AppSummary, error)
	GenerateContents(ctx context.Context, req llm.ContentsRequest) (llm.ContentsDraft, error)
}

// CompetitorRepo is the tracked-competitor persistence surface.
type CompetitorRepo interface {
	AddCompetitor(ctx context.Context, appID, localeCode string, comp models.Competitor) (models.Competitor, error)
	GetTrackedCompetitors(ctx context.Context, appID, localeCode string) ([]models.Competitor, error)
	SetGuessedKeywords(ctx context.Context, id int64, keywords []string) error
}

// KeywordRepo is the scored-keyword persistence surface.
type KeywordRepo interface {
	ReplaceSet(ctx context.Context, appID string, store models.Store, platform models.Platform, localeCode string, scores []models.KeywordScore) ([]models.AsoKeyword, error)
	GetKeywords(ctx context.Context, appID string, store models.Store, platform models.Platform, localeCode string) ([]models.AsoKeyword, error)
}

// LocalizationRepo reads the stored per-locale listing.
type LocalizationRepo interface {
	GetLocalization(ctx context.Context, appID, localeCode string) (models.AppLocalization, error)
}

// Deps wires a Pipelines instance.
type Deps struct {
	Search        StoreSearcher
	Model         LanguageModel
	Scorer        KeywordScorer
	Competitors   CompetitorRepo
	Keywords      KeywordRepo
	Localizations LocalizationRepo

	// KeywordCache, when set, caches ad hoc keyword extractions for
	// apps that have no tracked-competitor row to cache onto.
	KeywordCache    appstore.Cache
	KeywordCacheTTL time.Duration

	// Sleep is replaceable in tests; nil means time.Sleep.
	Sleep func(time.Duration)
}

// Pipelines holds the orchestration entry points. One instance serves
// all requests; per-run state lives on the stack.
type Pipelines struct {
	search        StoreSearcher
	model         LanguageModel
	scorer        KeywordScorer
	competitors   CompetitorRepo
	keywords      KeywordRepo
	localizations LocalizationRepo
	kwCache       appstore.Cache
	kwCacheTTL    time.Duration
	sleep         func(time.Duration)
}

func New(deps Deps) *Pipelines {
	sleep := deps.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	return &Pipelines{
		search:        deps.Search,
		model:         deps.Model,
		scorer:        deps.Scorer,
		competitors:   deps.Competitors,
		keywords:      deps.Keywords,
		localizations: deps.Localizations,
		kwCache:       deps.KeywordCache,
		kwCacheTTL:    deps.KeywordCacheTTL,
		sleep:         sleep,
	}
}

// joinedLen is the character length of keywords comma-joined. The
// store counts characters, not bytes, so multi-byte scripts must be
// measured in runes.
func joinedLen(keywords []string) int {
	if len(keywords) == 0 {
		return 0
	}
	n := len(keywords) - 1
	for _, kw := range keywords {
		n += utf8.RuneCountInString(kw)
	}
	return n
}

// sliceToBudget keeps keywords, in order, while the comma-joined string
// stays within budget characters.
func sliceToBudget(keywords []string, budget int) []string {
	out := make([]string, 0, len(keywords))
	used := 0
	for _, kw := range keywords {
		cost := utf8.RuneCountInString(kw)
		if len(out) > 0 {
			cost++
		}
		if used+cost > budget {
			break
		}
		out = append(out, kw)
		used += cost
	}
	return out
}

// dedupeKeywords drops repeats keeping first occurrence.
func dedupeKeywords(keywords []string) []string {
	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out
}

// extractCompetitorKeywords unions keyword extractions over competitors,
// batches of extractBatchSize concurrent. Competitors with cached
// guessedKeywords skip the model call; fresh extractions are cached back
// onto the row (cache write failures are logged, not fatal).
func (p *Pipelines) extractCompetitorKeywords(ctx context.Context, comps []models.Competitor) ([]string, error) {
	results, err := forEachBatch(ctx, comps, batchOptions[[]string]{Size: extractBatchSize},
		func(ctx context.Context, comp models.Competitor) ([]string, error) {
			if len(comp.GuessedKeywords) > 0 {
				return comp.GuessedKeywords, nil
			}
			keywords, err := p.model.ExtractKeywords(ctx, comp.Title, comp.Description)
			if err != nil {
				return nil, err
			}
			if comp.ID != 0 {
				if err := p.competitors.SetGuessedKeywords(ctx, comp.ID, keywords); err != nil {
					log.Warn().Err(err).Int64("competitor_id", comp.ID).Msg("Failed to cache extracted keywords")
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
	return dedupeKeywords(llm.NormalizeKeywords(union)), nil
}

// rerankToBudget reranks the pool and slices to the keyword-field
// budget. Sparse locales can slice down to almost nothing, so when
// fewer than minCandidates survive the slice the first minCandidates of
// the full reranked list are used instead.
func (p *Pipelines) rerankToBudget(ctx context.Context, title, shortDescription, localeCode string, pool []string) ([]string, error) {
	ranked, err := p.model.RerankKeywords(ctx, title, shortDescription, localeCode, pool)
	if err != nil {
		return nil, err
	}
	candidates := sliceToBudget(ranked, KeywordFieldBudget)
	if len(candidates) < minCandidates && len(ranked) > len(candidates) {
		if len(ranked) > minCandidates {
			candidates = ranked[:minCandidates]
		} else {
			candidates = ranked
		}
	}
	return candidates, nil
}

// scoreCandidates scores every candidate in batches of scoreBatchSize
// with an inter-batch delay, emitting a process:scoreKeyword event per
// completed keyword. The delay is skipped when a whole batch came from
// the search cache.
func (p *Pipelines) scoreCandidates(ctx context.Context, t *tracker, localeCode, appID string, candidates []string) ([]models.KeywordScore, error) {
	return forEachBatch(ctx, candidates, batchOptions[models.KeywordScore]{
		Size:  scoreBatchSize,
		Delay: interBatchDelay,
		sleep: p.sleep,
		SkipDelay: func(batch []models.KeywordScore) bool {
			for _, s := range batch {
				if !s.CacheHit {
					return false
				}
			}
			return true
		},
	}, func(ctx context.Context, keyword string) (models.KeywordScore, error) {
		score, err := p.scorer.ScoreKeyword(ctx, localeCode, keyword, appID)
		if err != nil {
			return models.KeywordScore{}, err
		}
		t.point(models.ProgressEvent{Type: models.EventScoreKeyword, Data: score})
		return score, nil
	})
}

// persistKeywords sorts by overall descending and replaces the stored
// set for the identity tuple.
func (p *Pipelines) persistKeywords(ctx context.Context, id models.AppIdentity, scores []models.KeywordScore) ([]models.AsoKeyword, error) {
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Overall > scores[j].Overall
	})
	return p.keywords.ReplaceSet(ctx, id.ID, id.Store, id.Platform, id.Locale, scores)
}

// changeStrategySteps is how many bracketed steps changeStrategy adds
// to a run.
const changeStrategySteps = 3

// changeStrategy is the shared AI-generation fallback: generate fresh
// keywords, score them, merge with whatever scores were already
// collected, optionally run the final sanity check, slice to budget,
// persist. Used when the normal candidate sources yield too little.
func (p *Pipelines) changeStrategy(ctx context.Context, t *tracker, id models.AppIdentity, title, shortDescription string, existing []models.KeywordScore, disableSanityCheck bool) ([]models.AsoKeyword, error) {
	t.point(models.ProgressEvent{Type: models.EventChangeStrategy, Message: "Not enough keyword signal, generating fresh candidates"})

	t.start("generateKeywords", "Generating keywords")
	generated, err := p.model.GenerateAsoKeywords(ctx, id.Locale, title, shortDescription)
	if err != nil {
		return nil, err
	}
	t.end("generateKeywords", generated)

	t.start("scoreKeywords", "Scoring keywords")
	scored, err := p.scoreCandidates(ctx, t, id.Locale, id.ID, generated)
	if err != nil {
		return nil, err
	}
	t.end("scoreKeywords", len(scored))

	merged := make([]models.KeywordScore, 0, len(existing)+len(scored))
	seen := make(map[string]struct{}, len(existing)+len(scored))
	for _, s := range append(append([]models.KeywordScore{}, existing...), scored...) {
		kw := strings.ToLower(strings.TrimSpace(s.Keyword))
		if kw == "" {
			continue
		}
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		s.Keyword = kw
		merged = append(merged, s)
	}

	t.start("saveKeywords", "Saving keyword set")
	if !disableSanityCheck {
		pool := make([]string, len(merged))
		for i, s := range merged {
			pool[i] = s.Keyword
		}
		keep, err := p.model.KeywordFinalSanityCheck(ctx, id.Locale, pool)
		if err != nil {
			return nil, err
		}
		kept := make([]models.KeywordScore, 0, len(keep))
		for _, idx := range keep {
			kept = append(kept, merged[idx-1])
		}
		merged = kept
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Overall > merged[j].Overall
	})

	// Slice by joined length, highest-value first.
	final := make([]models.KeywordScore, 0, len(merged))
	used := 0
	for _, s := range merged {
		cost := utf8.RuneCountInString(s.Keyword)
		if len(final) > 0 {
			cost++
		}
		if used+cost > KeywordFieldBudget {
			break
		}
		final = append(final, s)
		used += cost
	}

	saved, err := p.persistKeywords(ctx, id, final)
	if err != nil {
		return nil, err
	}
	t.end("saveKeywords", len(saved))
	return saved, nil
}
