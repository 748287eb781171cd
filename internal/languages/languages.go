// Package languages lists the language codes accepted for transcription and
// translation and gives them English display names.
package languages

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

const Auto = "auto"

var codes = []string{
	Auto,
	"en", "es", "fr", "de", "it", "pt", "ru", "ja", "ko", "zh", "zh-TW",
	"ar", "hi", "pl", "tr", "vi", "th", "nl", "sv", "no", "da", "fi",
	"el", "cs", "hu", "ro", "uk", "he", "id", "ms",
}

var nameOverrides = map[string]string{
	Auto:    "Auto-detect",
	"zh":    "Chinese (Simplified)",
	"zh-TW": "Chinese (Traditional)",
}

type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

func Valid(code string) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

// IsAuto reports whether code asks the speech service to detect the language.
func IsAuto(code string) bool {
	code = strings.TrimSpace(code)
	return code == "" || code == Auto
}

// Name returns the English display name for code, or code itself when it is
// not a recognizable BCP 47 tag.
func Name(code string) string {
	if n, ok := nameOverrides[code]; ok {
		return n
	}
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if n := display.English.Tags().Name(tag); n != "" {
		return n
	}
	return code
}

func All() []Language {
	out := make([]Language, 0, len(codes))
	for _, c := range codes {
		out = append(out, Language{Code: c, Name: Name(c)})
	}
	return out
}

// Same reports whether two codes name the same base language, so "en" and
// "en-US" or "English" as reported by some speech services compare equal.
func Same(a, b string) bool {
	a, b = canonical(a), canonical(b)
	return a != "" && a == b
}

func canonical(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	lower := strings.ToLower(code)
	for _, c := range codes {
		if c != Auto && strings.ToLower(Name(c)) == lower {
			code = c
			break
		}
	}
	tag, err := language.Parse(code)
	if err != nil {
		return lower
	}
	base, _ := tag.Base()
	return base.String()
}
