package llm

import "strings"

// NormalizeKeywords trims, lowercases, and deduplicates model output
// before it is used as a key anywhere downstream. Every boundary call
// that returns keywords goes through this once, centrally.
func NormalizeKeywords(keywords []string) []string {
	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out
}
