// Package locale maps the closed set of store locales onto search
// countries, languages, and display names.
package locale

import "fmt"

// Info describes one supported store locale.
type Info struct {
	Code        string // BCP-47-like tag, e.g. "en-US", "zh-Hans"
	Country     string // ISO country code used to scope store search
	Language    string // language code sent to the search API
	DisplayName string
}

// table is the closed enumeration of supported locales. Codes outside
// this table are a configuration error, never silently defaulted.
var table = map[string]Info{
	"ar-SA":   {"ar-SA", "sa", "ar", "Arabic"},
	"ca":      {"ca", "es", "ca", "Catalan"},
	"cs":      {"cs", "cz", "cs", "Czech"},
	"da":      {"da", "dk", "da", "Danish"},
	"de-DE":   {"de-DE", "de", "de", "German"},
	"el":      {"el", "gr", "el", "Greek"},
	"en-AU":   {"en-AU", "au", "en", "English (Australia)"},
	"en-CA":   {"en-CA", "ca", "en", "English (Canada)"},
	"en-GB":   {"en-GB", "gb", "en", "English (U.K.)"},
	"en-US":   {"en-US", "us", "en", "English (U.S.)"},
	"es-ES":   {"es-ES", "es", "es", "Spanish (Spain)"},
	"es-MX":   {"es-MX", "mx", "es", "Spanish (Mexico)"},
	"fi":      {"fi", "fi", "fi", "Finnish"},
	"fr-CA":   {"fr-CA", "ca", "fr", "French (Canada)"},
	"fr-FR":   {"fr-FR", "fr", "fr", "French"},
	"he":      {"he", "il", "he", "Hebrew"},
	"hi":      {"hi", "in", "hi", "Hindi"},
	"hr":      {"hr", "hr", "hr", "Croatian"},
	"hu":      {"hu", "hu", "hu", "Hungarian"},
	"id":      {"id", "id", "id", "Indonesian"},
	"it":      {"it", "it", "it", "Italian"},
	"ja":      {"ja", "jp", "ja", "Japanese"},
	"ko":      {"ko", "kr", "ko", "Korean"},
	"ms":      {"ms", "my", "ms", "Malay"},
	"nl-NL":   {"nl-NL", "nl", "nl", "Dutch"},
	"no":      {"no", "no", "no", "Norwegian"},
	"pl":      {"pl", "pl", "pl", "Polish"},
	"pt-BR":   {"pt-BR", "br", "pt", "Portuguese (Brazil)"},
	"pt-PT":   {"pt-PT", "pt", "pt", "Portuguese (Portugal)"},
	"ro":      {"ro", "ro", "ro", "Romanian"},
	"ru":      {"ru", "ru", "ru", "Russian"},
	"sk":      {"sk", "sk", "sk", "Slovak"},
	"sv":      {"sv", "se", "sv", "Swedish"},
	"th":      {"th", "th", "th", "Thai"},
	"tr":      {"tr", "tr", "tr", "Turkish"},
	"uk":      {"uk", "ua", "uk", "Ukrainian"},
	"vi":      {"vi", "vn", "vi", "Vietnamese"},
	"zh-Hans": {"zh-Hans", "cn", "zh", "Chinese (Simplified)"},
	"zh-Hant": {"zh-Hant", "tw", "zh", "Chinese (Traditional)"},
}

// Lookup resolves a locale code. Unknown codes return an error; callers
// must treat that as fatal configuration, not fall back to a default.
func Lookup(code string) (Info, error) {
	info, ok := table[code]
	if !ok {
		return Info{}, fmt.Errorf("unsupported locale %q", code)
	}
	return info, nil
}

// IsSupported reports whether code is in the closed enumeration.
func IsSupported(code string) bool {
	_, ok := table[code]
	return ok
}

// All returns every supported locale code.
func All() []string {
	codes := make([]string, 0, len(table))
	for code := range table {
		codes = append(codes, code)
	}
	return codes
}
