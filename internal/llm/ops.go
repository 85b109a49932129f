package llm

import (
	"context"
	"fmt"

	"github.com/appagent/aso/internal/locale"
	"github.com/appagent/aso/pkg/models"
)

// DefaultGeneratedKeywordCount is how many keywords a generation call
// asks for.
const DefaultGeneratedKeywordCount = 16

// ExtractKeywords pulls search keywords out of a listing's title and
// description.
func (c *Client) ExtractKeywords(ctx context.Context, title, description string) ([]string, error) {
	var keywords []string
	if err := c.call(ctx, extractKeywordsPrompt(title, description), &keywords); err != nil {
		return nil, fmt.Errorf("extract keywords: %w", err)
	}
	return NormalizeKeywords(keywords), nil
}

// RerankKeywords orders a keyword pool by value for the app, dropping
// irrelevant or out-of-language candidates. The result is a subset of
// the input; anything the model invents is discarded.
func (c *Client) RerankKeywords(ctx context.Context, title, shortDescription, localeCode string, pool []string) ([]string, error) {
	if _, err := locale.Lookup(localeCode); err != nil {
		return nil, err
	}

	var ranked []string
	if err := c.call(ctx, rerankKeywordsPrompt(title, shortDescription, localeCode, pool), &ranked); err != nil {
		return nil, fmt.Errorf("rerank keywords: %w", err)
	}

	allowed := make(map[string]struct{}, len(pool))
	for _, kw := range NormalizeKeywords(pool) {
		allowed[kw] = struct{}{}
	}
	out := make([]string, 0, len(ranked))
	for _, kw := range NormalizeKeywords(ranked) {
		if _, ok := allowed[kw]; ok {
			out = append(out, kw)
		}
	}
	return out, nil
}

// GenerateAsoKeywords proposes fresh keywords from title and summary,
// filtered against the locale's blacklist.
func (c *Client) GenerateAsoKeywords(ctx context.Context, localeCode, title, shortDescription string) ([]string, error) {
	if _, err := locale.Lookup(localeCode); err != nil {
		return nil, err
	}

	var keywords []string
	prompt := generateKeywordsPrompt(localeCode, title, shortDescription, DefaultGeneratedKeywordCount)
	if err := c.call(ctx, prompt, &keywords); err != nil {
		return nil, fmt.Errorf("generate keywords: %w", err)
	}
	return locale.FilterBlacklisted(localeCode, NormalizeKeywords(keywords)), nil
}

// LocaleSanityCheck returns the subset of keywords confirmed to be in
// the target language.
func (c *Client) LocaleSanityCheck(ctx context.Context, localeCode string, keywords []string) ([]string, error) {
	if _, err := locale.Lookup(localeCode); err != nil {
		return nil, err
	}

	var confirmed []string
	if err := c.call(ctx, localeSanityCheckPrompt(localeCode, keywords), &confirmed); err != nil {
		return nil, fmt.Errorf("locale sanity check: %w", err)
	}

	allowed := make(map[string]struct{}, len(keywords))
	for _, kw := range NormalizeKeywords(keywords) {
		allowed[kw] = struct{}{}
	}
	out := make([]string, 0, len(confirmed))
	for _, kw := range NormalizeKeywords(confirmed) {
		if _, ok := allowed[kw]; ok {
			out = append(out, kw)
		}
	}
	return out, nil
}

// KeywordFinalSanityCheck reviews a numbered keyword list and returns
// the 1-based indices worth keeping. Out-of-range indices from the
// model are dropped.
func (c *Client) KeywordFinalSanityCheck(ctx context.Context, localeCode string, keywords []string) ([]int, error) {
	if _, err := locale.Lookup(localeCode); err != nil {
		return nil, err
	}

	var indices []int
	if err := c.call(ctx, finalSanityCheckPrompt(localeCode, keywords), &indices); err != nil {
		return nil, fmt.Errorf("final sanity check: %w", err)
	}

	out := make([]int, 0, len(indices))
	seen := make(map[int]struct{}, len(indices))
	for _, idx := range indices {
		if idx < 1 || idx > len(keywords) {
			continue
		}
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		out = append(out, idx)
	}
	return out, nil
}

// FilterApps keeps only the candidate apps functionally similar to the
// subject app described by title and shortDescription.
func (c *Client) FilterApps(ctx context.Context, title, shortDescription string, apps []models.AppSummary) ([]models.AppSummary, error) {
	if len(apps) == 0 {
		return nil, nil
	}

	var keepIDs []string
	if err := c.call(ctx, filterAppsPrompt(title, shortDescription, apps), &keepIDs); err != nil {
		return nil, fmt.Errorf("filter apps: %w", err)
	}

	keep := make(map[string]struct{}, len(keepIDs))
	for _, id := range keepIDs {
		keep[id] = struct{}{}
	}
	out := make([]models.AppSummary, 0, len(apps))
	for _, app := range apps {
		if _, ok := keep[app.ID]; ok {
			out = append(out, app)
		}
	}
	return out, nil
}

// ContentsRequest is the input to GenerateContents.
type ContentsRequest struct {
	Locale             string
	Store              models.Store
	Title              string
	Keywords           []string
	Targets            []models.ContentField
	CurrentSubtitle    string
	CurrentDescription string
	DescriptionOutline string
	PreviousResult     string
	UserFeedback       string
}

// ContentsDraft is the model's listing copy for the requested fields.
// Fields not requested (or not produced) are empty.
type ContentsDraft struct {
	Title       string `json:"title"`
	Subtitle    string `json:"subtitle"`
	Description string `json:"description"`
}

// GenerateContents asks the model for ASO-optimized listing copy for
// the requested fields. Length validation and retries live in the
// optimization pipeline, not here.
func (c *Client) GenerateContents(ctx context.Context, req ContentsRequest) (ContentsDraft, error) {
	if _, err := locale.Lookup(req.Locale); err != nil {
		return ContentsDraft{}, err
	}

	var draft ContentsDraft
	prompt := generateContentsPrompt(contentsPromptInput{
		LocaleCode:         req.Locale,
		Store:              req.Store,
		Title:              req.Title,
		Keywords:           req.Keywords,
		Targets:            req.Targets,
		CurrentSubtitle:    req.CurrentSubtitle,
		CurrentDescription: req.CurrentDescription,
		DescriptionOutline: req.DescriptionOutline,
		PreviousResult:     req.PreviousResult,
		UserFeedback:       req.UserFeedback,
	})
	if err := c.call(ctx, prompt, &draft); err != nil {
		return ContentsDraft{}, fmt.Errorf("generate contents: %w", err)
	}
	return draft, nil
}
