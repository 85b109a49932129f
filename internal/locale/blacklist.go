package locale

import "strings"

// blacklists holds per-locale stopwords that must never survive keyword
// generation. Mostly "free" translations and store boilerplate the
// model keeps suggesting despite instructions.
var blacklists = map[string][]string{
	"en-US":   {"free", "app", "best", "top"},
	"en-GB":   {"free", "app", "best", "top"},
	"en-AU":   {"free", "app", "best", "top"},
	"en-CA":   {"free", "app", "best", "top"},
	"de-DE":   {"kostenlos", "gratis", "app", "beste"},
	"es-ES":   {"gratis", "app", "mejor"},
	"es-MX":   {"gratis", "app", "mejor"},
	"fr-FR":   {"gratuit", "app", "meilleur"},
	"fr-CA":   {"gratuit", "app", "meilleur"},
	"it":      {"gratis", "app", "migliore"},
	"pt-BR":   {"grátis", "gratis", "app", "melhor"},
	"pt-PT":   {"grátis", "gratis", "app", "melhor"},
	"ja":      {"無料", "アプリ", "人気"},
	"ko":      {"무료", "앱", "인기"},
	"zh-Hans": {"免费", "应用", "最佳"},
	"zh-Hant": {"免費", "應用", "最佳"},
	"ru":      {"бесплатно", "приложение", "лучший"},
	"tr":      {"ücretsiz", "uygulama", "en iyi"},
	"nl-NL":   {"gratis", "app", "beste"},
	"sv":      {"gratis", "app", "bästa"},
	"da":      {"gratis", "app", "bedste"},
	"no":      {"gratis", "app", "beste"},
	"fi":      {"ilmainen", "sovellus", "paras"},
	"pl":      {"darmowy", "za darmo", "aplikacja"},
	"ar-SA":   {"مجانا", "مجاني", "تطبيق"},
	"hi":      {"मुफ्त", "ऐप"},
	"th":      {"ฟรี", "แอป"},
	"vi":      {"miễn phí", "ứng dụng"},
	"id":      {"gratis", "aplikasi", "terbaik"},
	"ms":      {"percuma", "aplikasi", "terbaik"},
	"uk":      {"безкоштовно", "додаток"},
	"el":      {"δωρεάν", "εφαρμογή"},
	"cs":      {"zdarma", "aplikace"},
	"sk":      {"zadarmo", "aplikácia"},
	"hu":      {"ingyenes", "alkalmazás"},
	"ro":      {"gratuit", "aplicație"},
	"hr":      {"besplatno", "aplikacija"},
	"he":      {"חינם", "אפליקציה"},
	"ca":      {"gratis", "gratuït", "app"},
}

// FilterBlacklisted drops keywords that match the locale's stopword
// list. Matching is case-insensitive on the whole keyword.
func FilterBlacklisted(code string, keywords []string) []string {
	banned := blacklists[code]
	if len(banned) == 0 {
		return keywords
	}
	bannedSet := make(map[string]struct{}, len(banned))
	for _, b := range banned {
		bannedSet[strings.ToLower(b)] = struct{}{}
	}

	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if _, hit := bannedSet[strings.ToLower(strings.TrimSpace(kw))]; hit {
			continue
		}
		out = append(out, kw)
	}
	return out
}
