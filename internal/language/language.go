package language

import (
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// words maps spelled-out names and bibliographic ISO 639-2 codes that
// language.Parse does not accept onto canonical codes.
var words = map[string]string{
	"english":    "en",
	"spanish":    "es",
	"french":     "fr",
	"fre":        "fr",
	"german":     "de",
	"ger":        "de",
	"italian":    "it",
	"portuguese": "pt",
	"japanese":   "ja",
	"korean":     "ko",
	"chinese":    "zh",
	"chi":        "zh",
	"russian":    "ru",
	"arabic":     "ar",
	"hindi":      "hi",
	"dutch":      "nl",
	"dut":        "nl",
	"polish":     "pl",
	"swedish":    "sv",
	"danish":     "da",
	"norwegian":  "no",
	"finnish":    "fi",
}

// paceRatios estimates how much longer translated speech runs compared to
// the same material in English. These are pacing heuristics used to predict
// slot fit before synthesis, not measurements.
var paceRatios = map[string]float64{
	"en": 1.00,
	"es": 1.03,
	"fr": 1.06,
	"de": 1.10,
	"it": 1.04,
	"pt": 1.03,
	"ja": 1.12,
	"ko": 1.08,
	"zh": 0.92,
	"ru": 1.06,
	"ar": 1.02,
	"hi": 1.05,
	"nl": 1.05,
	"pl": 1.07,
	"sv": 1.02,
	"da": 1.02,
	"no": 1.01,
	"fi": 1.09,
}

func canonicalInput(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if mapped, ok := words[code]; ok {
		return mapped
	}
	return code
}

// Normalize converts any recognized language code, BCP 47 tag, or spelled-out
// name to its base code ("en-US" -> "en", "spanish" -> "es"). It returns the
// empty string for unrecognized input.
func Normalize(code string) string {
	input := canonicalInput(code)
	if input == "" {
		return ""
	}
	tag, err := language.Parse(input)
	if err != nil {
		return ""
	}
	base, _ := tag.Base()
	if base.String() == "und" {
		return ""
	}
	return base.String()
}

// IsValid reports whether the input names a language this pipeline can
// address.
func IsValid(code string) bool {
	return Normalize(code) != ""
}

// DisplayName returns the English name for any recognized code. Empty input
// yields "Unknown" and unrecognized codes pass through uppercased.
func DisplayName(code string) string {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return "Unknown"
	}
	if tag, err := language.Parse(canonicalInput(trimmed)); err == nil {
		if name := display.English.Tags().Name(tag); name != "" {
			return name
		}
	}
	return strings.ToUpper(trimmed)
}

// NativeName returns the language's name in itself ("es" -> "español"),
// falling back to the English name.
func NativeName(code string) string {
	if tag, err := language.Parse(canonicalInput(code)); err == nil {
		if name := display.Self.Name(tag); name != "" {
			return name
		}
	}
	return DisplayName(code)
}

// NormalizeList deduplicates and normalizes a list of language codes.
// Unrecognized entries are dropped.
func NormalizeList(codes []string) []string {
	if len(codes) == 0 {
		return nil
	}
	normalized := make([]string, 0, len(codes))
	seen := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		base := Normalize(code)
		if base == "" {
			continue
		}
		if _, ok := seen[base]; ok {
			continue
		}
		seen[base] = struct{}{}
		normalized = append(normalized, base)
	}
	return normalized
}

// PaceRatio returns the expected duration ratio of speech in the given
// language relative to English. Unknown languages report 1.
func PaceRatio(code string) float64 {
	if ratio, ok := paceRatios[Normalize(code)]; ok {
		return ratio
	}
	return 1
}

// EstimateSpeechDuration predicts how long source speech will run once
// translated into the target language. Synthesis uses it to flag segments
// likely to overflow their slots before spending provider calls.
func EstimateSpeechDuration(source time.Duration, targetLang string) time.Duration {
	if source <= 0 {
		return 0
	}
	return time.Duration(float64(source) * PaceRatio(targetLang))
}
