package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	json "github.com/goccy/go-json"

	"github.com/appagent/aso/internal/llm"
	"github.com/appagent/aso/pkg/models"
)

// Store listing length caps and the minimum fill each generated field
// must reach to be worth shipping.
const (
	TitleCap       = 30
	SubtitleCap    = 30
	DescriptionCap = 4000

	titleMinRatio       = 0.75
	subtitleMinRatio    = 0.6
	descriptionMinRatio = 0.75

	// MaxContentRetries bounds regeneration attempts after the initial
	// call: at most 1+MaxContentRetries generation calls per request.
	MaxContentRetries = 3
)

// OptimizeRequest is the input to content optimization.
type OptimizeRequest struct {
	Locale string
	Store  models.Store
	Title  string
	// Keywords is the app's scored keyword set; it feeds both the
	// generation prompt and the deterministic keyword-field packing.
	Keywords []models.AsoKeyword
	// Targets are the fields to (re)generate. FieldKeywords is ignored;
	// the keyword field is always computed, never generated.
	Targets            []models.ContentField
	CurrentSubtitle    string
	CurrentKeywords    string
	CurrentDescription string
	DescriptionOutline string
	// PreviousResult and UserFeedback turn the call into a guided
	// regeneration of an earlier draft.
	PreviousResult string
	UserFeedback   string
}

// OptimizeContents generates ASO-optimized listing copy for the
// requested fields, retrying fields that violate their length bounds
// with structured feedback, then derives the keyword field
// deterministically from the scored keyword set.
func (p *Pipelines) OptimizeContents(ctx context.Context, req OptimizeRequest) (models.AsoContent, error) {
	targets := make([]models.ContentField, 0, len(req.Targets))
	for _, f := range req.Targets {
		if f != models.FieldKeywords {
			targets = append(targets, f)
		}
	}
	if len(req.Targets) == 0 {
		return models.AsoContent{}, fmt.Errorf("%w: no target fields requested", models.ErrInvalidInput)
	}

	keywords := make([]string, len(req.Keywords))
	for i, kw := range req.Keywords {
		keywords[i] = kw.Keyword
	}

	// Keywords-only requests skip generation entirely; the keyword
	// field is a pure packing computation.
	if len(targets) == 0 {
		return models.AsoContent{
			Title:       req.Title,
			Subtitle:    req.CurrentSubtitle,
			Description: req.CurrentDescription,
			Keywords:    PackKeywords(req.Keywords, req.Title, req.CurrentSubtitle, KeywordFieldBudget),
		}, nil
	}

	draft, err := p.model.GenerateContents(ctx, llm.ContentsRequest{
		Locale:             req.Locale,
		Store:              req.Store,
		Title:              req.Title,
		Keywords:           keywords,
		Targets:            targets,
		CurrentSubtitle:    req.CurrentSubtitle,
		CurrentDescription: req.CurrentDescription,
		DescriptionOutline: req.DescriptionOutline,
		PreviousResult:     req.PreviousResult,
		UserFeedback:       req.UserFeedback,
	})
	if err != nil {
		return models.AsoContent{}, err
	}
	draft.Description = normalizeNewlines(draft.Description)

	for retry := 0; retry < MaxContentRetries; retry++ {
		failures := validateDraft(draft, targets)
		if len(failures) == 0 {
			break
		}

		failing := make([]models.ContentField, 0, len(failures))
		feedback := make([]string, 0, len(failures))
		for _, f := range failures {
			failing = append(failing, f.Field)
			feedback = append(feedback, f.Msg)
		}

		prior, _ := json.Marshal(draft)
		redone, err := p.model.GenerateContents(ctx, llm.ContentsRequest{
			Locale:             req.Locale,
			Store:              req.Store,
			Title:              req.Title,
			Keywords:           keywords,
			Targets:            failing,
			CurrentSubtitle:    req.CurrentSubtitle,
			CurrentDescription: req.CurrentDescription,
			DescriptionOutline: req.DescriptionOutline,
			PreviousResult:     string(prior),
			UserFeedback:       strings.Join(feedback, "\n"),
		})
		if err != nil {
			return models.AsoContent{}, err
		}

		// Only failing fields are replaced; passing fields keep their
		// earlier text.
		for _, f := range failing {
			switch f {
			case models.FieldTitle:
				draft.Title = redone.Title
			case models.FieldSubtitle:
				draft.Subtitle = redone.Subtitle
			case models.FieldDescription:
				draft.Description = normalizeNewlines(redone.Description)
			}
		}
	}

	if failures := validateDraft(draft, targets); len(failures) > 0 {
		return models.AsoContent{}, failures[0]
	}

	draft.Description = stripMarkdown(draft.Description)

	title := draft.Title
	if title == "" {
		title = req.Title
	}
	subtitle := draft.Subtitle
	if subtitle == "" {
		subtitle = req.CurrentSubtitle
	}

	return models.AsoContent{
		Title:       title,
		Subtitle:    subtitle,
		Description: draft.Description,
		Keywords:    PackKeywords(req.Keywords, title, subtitle, KeywordFieldBudget),
	}, nil
}

// validateDraft checks each requested field against its length bounds.
// A requested field that came back empty is also a failure.
func validateDraft(draft llm.ContentsDraft, targets []models.ContentField) []*models.ContentFieldError {
	var failures []*models.ContentFieldError
	for _, f := range targets {
		var (
			text     string
			maxLen   int
			minRatio float64
		)
		switch f {
		case models.FieldTitle:
			text, maxLen, minRatio = draft.Title, TitleCap, titleMinRatio
		case models.FieldSubtitle:
			text, maxLen, minRatio = draft.Subtitle, SubtitleCap, subtitleMinRatio
		case models.FieldDescription:
			text, maxLen, minRatio = draft.Description, DescriptionCap, descriptionMinRatio
		default:
			continue
		}

		n := utf8.RuneCountInString(text)
		minLen := int(minRatio * float64(maxLen))
		switch {
		case n == 0:
			failures = append(failures, models.NewContentFieldError(f, "field is missing from the generated output"))
		case n > maxLen:
			failures = append(failures, models.NewContentFieldError(f, "%d characters exceeds the %d character limit by %d", n, maxLen, n-maxLen))
		case n < minLen:
			failures = append(failures, models.NewContentFieldError(f, "%d characters is below the %d character minimum by %d", n, minLen, minLen-n))
		}
	}
	return failures
}

// normalizeNewlines converts escaped newline sequences the model
// sometimes emits into real newlines.
func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\\r\\n", "\n")
	return strings.ReplaceAll(s, "\\n", "\n")
}

var (
	markdownHeading  = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	markdownEmphasis = regexp.MustCompile(`(\*{1,3}|_{1,3})(\S(?:.*?\S)?)(\*{1,3}|_{1,3})`)
)

// stripMarkdown removes stray emphasis and heading markers from the
// description; store listings render plain text.
func stripMarkdown(s string) string {
	s = markdownHeading.ReplaceAllString(s, "")
	return markdownEmphasis.ReplaceAllString(s, "$2")
}

// PackKeywords synthesizes the keyword-field string from the scored
// keyword set: keywords already substring-present in the title or
// subtitle are wasted there, so they are dropped; the remainder is
// ordered by position ascending (unranked last) and greedily packed,
// comma-joined, into the budget.
func PackKeywords(scored []models.AsoKeyword, title, subtitle string, budget int) string {
	ltitle := strings.ToLower(title)
	lsubtitle := strings.ToLower(subtitle)

	eligible := make([]models.AsoKeyword, 0, len(scored))
	seen := make(map[string]struct{}, len(scored))
	for _, kw := range scored {
		k := strings.ToLower(strings.TrimSpace(kw.Keyword))
		if k == "" {
			continue
		}
		if strings.Contains(ltitle, k) || strings.Contains(lsubtitle, k) {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		kw.Keyword = k
		eligible = append(eligible, kw)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		pi, pj := eligible[i].Position, eligible[j].Position
		if pi == -1 {
			return false
		}
		if pj == -1 {
			return true
		}
		return pi < pj
	})

	var b strings.Builder
	used := 0
	for _, kw := range eligible {
		cost := utf8.RuneCountInString(kw.Keyword)
		if used > 0 {
			cost++
		}
		if used+cost > budget {
			continue
		}
		if used > 0 {
			b.WriteByte(',')
		}
		b.WriteString(kw.Keyword)
		used += cost
	}
	return b.String()
}
