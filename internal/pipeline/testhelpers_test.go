package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/appagent/aso/internal/appstore"
	"github.com/appagent/aso/internal/llm"
	"github.com/appagent/aso/pkg/models"
)

// fakeSearch is a canned StoreSearcher.
type fakeSearch struct {
	mu         sync.Mutex
	results    map[string][]models.AppSummary
	similar    []models.AppSummary
	similarErr error
	ownApp     models.AppSummary
	ownErr     error
	searches   []string
}

func (f *fakeSearch) SearchLocale(ctx context.Context, localeCode, term string, num int) (appstore.SearchResult, error) {
	f.mu.Lock()
	f.searches = append(f.searches, term)
	f.mu.Unlock()
	return appstore.SearchResult{Apps: f.results[term]}, nil
}

func (f *fakeSearch) GetSimilarApps(ctx context.Context, appID, localeCode string) ([]models.AppSummary, error) {
	return f.similar, f.similarErr
}

func (f *fakeSearch) GetApp(ctx context.Context, appID, localeCode string) (models.AppSummary, error) {
	return f.ownApp, f.ownErr
}

// fakeModel is a LanguageModel with overridable behavior per
// operation. Unset operations return pass-through defaults.
type fakeModel struct {
	mu            sync.Mutex
	extractFn     func(title, description string) ([]string, error)
	rerankFn      func(pool []string) ([]string, error)
	generateFn    func() ([]string, error)
	sanityFn      func(keywords []string) ([]string, error)
	finalSanityFn func(keywords []string) ([]int, error)
	filterFn      func(apps []models.AppSummary) ([]models.AppSummary, error)
	contentsFn    func(req llm.ContentsRequest) (llm.ContentsDraft, error)

	extractCalls  int
	generateCalls int
	contentsCalls int
}

func (f *fakeModel) ExtractKeywords(ctx context.Context, title, description string) ([]string, error) {
	f.mu.Lock()
	f.extractCalls++
	f.mu.Unlock()
	if f.extractFn != nil {
		return f.extractFn(title, description)
	}
	return []string{"keyword from " + title}, nil
}

func (f *fakeModel) RerankKeywords(ctx context.Context, title, shortDescription, localeCode string, pool []string) ([]string, error) {
	if f.rerankFn != nil {
		return f.rerankFn(pool)
	}
	return pool, nil
}

func (f *fakeModel) GenerateAsoKeywords(ctx context.Context, localeCode, title, shortDescription string) ([]string, error) {
	f.mu.Lock()
	f.generateCalls++
	f.mu.Unlock()
	if f.generateFn != nil {
		return f.generateFn()
	}
	return []string{"generated one", "generated two"}, nil
}

func (f *fakeModel) LocaleSanityCheck(ctx context.Context, localeCode string, keywords []string) ([]string, error) {
	if f.sanityFn != nil {
		return f.sanityFn(keywords)
	}
	return keywords, nil
}

func (f *fakeModel) KeywordFinalSanityCheck(ctx context.Context, localeCode string, keywords []string) ([]int, error) {
	if f.finalSanityFn != nil {
		return f.finalSanityFn(keywords)
	}
	indices := make([]int, len(keywords))
	for i := range keywords {
		indices[i] = i + 1
	}
	return indices, nil
}

func (f *fakeModel) FilterApps(ctx context.Context, title, shortDescription string, apps []models.AppSummary) ([]models.AppSummary, error) {
	if f.filterFn != nil {
		return f.filterFn(apps)
	}
	return apps, nil
}

func (f *fakeModel) GenerateContents(ctx context.Context, req llm.ContentsRequest) (llm.ContentsDraft, error) {
	f.mu.Lock()
	f.contentsCalls++
	f.mu.Unlock()
	if f.contentsFn != nil {
		return f.contentsFn(req)
	}
	return llm.ContentsDraft{}, nil
}

// fakeScorer returns canned scores, defaulting to a mid-range score.
type fakeScorer struct {
	mu     sync.Mutex
	scores map[string]models.KeywordScore
	calls  []string
}

func (f *fakeScorer) ScoreKeyword(ctx context.Context, localeCode, keyword, appID string) (models.KeywordScore, error) {
	f.mu.Lock()
	f.calls = append(f.calls, keyword)
	f.mu.Unlock()
	if s, ok := f.scores[keyword]; ok {
		s.Keyword = keyword
		return s, nil
	}
	return models.KeywordScore{Keyword: keyword, TrafficScore: 5, DifficultyScore: 5, Position: 4, Overall: 5, CacheHit: true}, nil
}

// memCompetitorRepo is an in-memory CompetitorRepo.
type memCompetitorRepo struct {
	mu      sync.Mutex
	nextID  int64
	rows    []models.Competitor
	guessed map[int64][]string
}

func newMemCompetitorRepo(rows ...models.Competitor) *memCompetitorRepo {
	repo := &memCompetitorRepo{guessed: make(map[int64][]string)}
	for _, row := range rows {
		repo.nextID++
		row.ID = repo.nextID
		repo.rows = append(repo.rows, row)
	}
	return repo
}

func (r *memCompetitorRepo) AddCompetitor(ctx context.Context, appID, localeCode string, comp models.Competitor) (models.Competitor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if comp.CompetitorID == "" {
		return models.Competitor{}, fmt.Errorf("%w: competitor id is required", models.ErrInvalidInput)
	}
	for i, row := range r.rows {
		if row.AppID == appID && row.Locale == localeCode && row.CompetitorID == comp.CompetitorID {
			comp.ID = row.ID
			comp.AppID = appID
			comp.Locale = localeCode
			r.rows[i] = comp
			return comp, nil
		}
	}
	r.nextID++
	comp.ID = r.nextID
	comp.AppID = appID
	comp.Locale = localeCode
	r.rows = append(r.rows, comp)
	return comp, nil
}

func (r *memCompetitorRepo) GetTrackedCompetitors(ctx context.Context, appID, localeCode string) ([]models.Competitor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Competitor
	for _, row := range r.rows {
		if row.AppID == appID && row.Locale == localeCode {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *memCompetitorRepo) SetGuessedKeywords(ctx context.Context, id int64, keywords []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.guessed[id] = keywords
	return nil
}

// memKeywordRepo is an in-memory KeywordRepo.
type memKeywordRepo struct {
	mu   sync.Mutex
	sets map[string][]models.AsoKeyword
}

func newMemKeywordRepo() *memKeywordRepo {
	return &memKeywordRepo{sets: make(map[string][]models.AsoKeyword)}
}

func tupleOf(appID string, store models.Store, platform models.Platform, localeCode string) string {
	return fmt.Sprintf("%s|%s|%s|%s", appID, store, platform, localeCode)
}

func (r *memKeywordRepo) ReplaceSet(ctx context.Context, appID string, store models.Store, platform models.Platform, localeCode string, scores []models.KeywordScore) ([]models.AsoKeyword, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rows := make([]models.AsoKeyword, len(scores))
	for i, s := range scores {
		rows[i] = s.ToAsoKeyword(appID, store, platform, localeCode)
		rows[i].ID = int64(i + 1)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Overall > rows[j].Overall })
	r.sets[tupleOf(appID, store, platform, localeCode)] = rows
	return rows, nil
}

func (r *memKeywordRepo) GetKeywords(ctx context.Context, appID string, store models.Store, platform models.Platform, localeCode string) ([]models.AsoKeyword, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sets[tupleOf(appID, store, platform, localeCode)], nil
}

// memLocalizationRepo is an in-memory LocalizationRepo.
type memLocalizationRepo struct {
	rows map[string]models.AppLocalization
}

func newMemLocalizationRepo(rows ...models.AppLocalization) *memLocalizationRepo {
	repo := &memLocalizationRepo{rows: make(map[string]models.AppLocalization)}
	for _, row := range rows {
		repo.rows[row.AppID+"|"+row.Locale] = row
	}
	return repo
}

func (r *memLocalizationRepo) GetLocalization(ctx context.Context, appID, localeCode string) (models.AppLocalization, error) {
	loc, ok := r.rows[appID+"|"+localeCode]
	if !ok {
		return models.AppLocalization{}, fmt.Errorf("%w: no localization for %s/%s", models.ErrNotFound, appID, localeCode)
	}
	return loc, nil
}

// newTestPipelines wires a Pipelines over the fakes with sleeping
// disabled.
func newTestPipelines(search *fakeSearch, model *fakeModel, scorer *fakeScorer, comps *memCompetitorRepo, kws *memKeywordRepo, locs *memLocalizationRepo) *Pipelines {
	return New(Deps{
		Search:        search,
		Model:         model,
		Scorer:        scorer,
		Competitors:   comps,
		Keywords:      kws,
		Localizations: locs,
		Sleep:         func(time.Duration) {},
	})
}
