package llm

import (
	"fmt"
	"strings"

	"github.com/appagent/aso/internal/locale"
	"github.com/appagent/aso/pkg/models"
)

const systemPrompt = `You are an App Store Optimization assistant. You receive one task at a time and reply with ONLY a single JSON value matching the requested schema. No explanations, no markdown fences, no commentary.

If you cannot or will not complete a task, reply with exactly: {"refused": true, "reason": "<short reason>"}`

// localeName resolves a display name for prompts; the raw code is used
// if lookup fails (ops validate the locale before prompting).
func localeName(code string) string {
	info, err := locale.Lookup(code)
	if err != nil {
		return code
	}
	return info.DisplayName
}

func extractKeywordsPrompt(title, description string) string {
	return fmt.Sprintf(`TASK: Extract search keywords from an app store listing.

APP TITLE: %s

APP DESCRIPTION:
%s

Extract the 5-15 search keywords or short keyword phrases a user would most plausibly type to find this app. Use the language of the listing. Lowercase, no duplicates.

Reply with a JSON array of strings.`, title, truncate(description, 4000))
}

func rerankKeywordsPrompt(title, shortDescription, localeCode string, pool []string) string {
	return fmt.Sprintf(`TASK: Rank keyword candidates for an app.

APP TITLE: %s
APP SUMMARY: %s
TARGET LANGUAGE: %s

CANDIDATES:
%s

Reorder the candidates from most to least valuable for this app's store search ranking. Drop candidates that are irrelevant to the app or not in the target language. Do not invent new keywords.

Reply with a JSON array of strings (a subset of the candidates, best first).`, title, shortDescription, localeName(localeCode), strings.Join(pool, "\n"))
}

func generateKeywordsPrompt(localeCode, title, shortDescription string, count int) string {
	return fmt.Sprintf(`TASK: Propose fresh search keywords for an app.

APP TITLE: %s
APP SUMMARY: %s
TARGET LANGUAGE: %s

Propose exactly %d search keywords or two-word phrases, all in the target language, that users would type to find an app like this. Lowercase, no duplicates, no brand names of other apps.

Reply with a JSON array of strings.`, title, shortDescription, localeName(localeCode), count)
}

func localeSanityCheckPrompt(localeCode string, keywords []string) string {
	return fmt.Sprintf(`TASK: Language check.

TARGET LANGUAGE: %s

KEYWORDS:
%s

Return only the keywords that are actually expressed in the target language (loanwords in common local usage count as in-language).

Reply with a JSON array of strings (a subset of the input).`, localeName(localeCode), strings.Join(keywords, "\n"))
}

func finalSanityCheckPrompt(localeCode string, keywords []string) string {
	var b strings.Builder
	for i, kw := range keywords {
		fmt.Fprintf(&b, "%d. %s\n", i+1, kw)
	}
	return fmt.Sprintf(`TASK: Final keyword review.

TARGET LANGUAGE: %s

NUMBERED KEYWORDS:
%s
Return the 1-based numbers of the keywords worth keeping: in the target language, plausibly searched, not filler.

Reply with a JSON array of integers.`, localeName(localeCode), b.String())
}

func filterAppsPrompt(title, shortDescription string, apps []models.AppSummary) string {
	var b strings.Builder
	for _, app := range apps {
		fmt.Fprintf(&b, "- id=%s title=%q description=%q\n", app.ID, app.Title, truncate(app.Description, 300))
	}
	return fmt.Sprintf(`TASK: Filter candidate competitor apps by functional similarity.

SUBJECT APP TITLE: %s
SUBJECT APP SUMMARY: %s

CANDIDATES:
%s
Return the ids of the candidates that solve roughly the same user problem as the subject app. Exclude apps in a different category that merely share words.

Reply with a JSON array of id strings.`, title, shortDescription, b.String())
}

// contentsPromptInput carries everything the copy-generation prompt
// needs, including optional prior output and user feedback for guided
// regeneration.
type contentsPromptInput struct {
	LocaleCode         string
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

func generateContentsPrompt(in contentsPromptInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, `TASK: Write ASO-optimized store listing copy.

TARGET LANGUAGE: %s
STORE: %s
APP TITLE (current): %s
TOP KEYWORDS (best first): %s
FIELDS TO WRITE: %s
`, localeName(in.LocaleCode), in.Store, in.Title, strings.Join(in.Keywords, ", "), fieldNames(in.Targets))

	if in.CurrentSubtitle != "" {
		fmt.Fprintf(&b, "CURRENT SUBTITLE: %s\n", in.CurrentSubtitle)
	}
	if in.CurrentDescription != "" {
		fmt.Fprintf(&b, "CURRENT DESCRIPTION:\n%s\n", truncate(in.CurrentDescription, 4000))
	}
	if in.DescriptionOutline != "" {
		fmt.Fprintf(&b, "DESCRIPTION OUTLINE TO FOLLOW:\n%s\n", in.DescriptionOutline)
	}
	if in.PreviousResult != "" {
		fmt.Fprintf(&b, "\nPREVIOUS ATTEMPT:\n%s\n", in.PreviousResult)
	}
	if in.UserFeedback != "" {
		fmt.Fprintf(&b, "\nFEEDBACK ON PREVIOUS ATTEMPT:\n%s\n", in.UserFeedback)
	}

	b.WriteString(`
Constraints: title at most 30 characters, subtitle at most 30 characters, description at most 4000 characters. Weave the top keywords in naturally; never keyword-stuff. Plain text only, no markdown.

Reply with a JSON object containing only the requested fields, e.g. {"title": "...", "subtitle": "...", "description": "..."}.`)
	return b.String()
}

func fieldNames(fields []models.ContentField) string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
