// Package langdetect guesses the language of article text.
package langdetect

import (
	"strings"
	"sync"
	"unicode"

	lingua "github.com/pemistahl/lingua-go"
	"golang.org/x/text/language"
)

// MinLetters is the shortest sample, in letters, worth classifying.
const MinLetters = 6

var (
	detectorOnce sync.Once
	detector     lingua.LanguageDetector
)

// DetectISO6391 returns the two-letter language code of text, or "" when the
// sample is too short or the language is unknown.
func DetectISO6391(text string) string {
	sample := strings.TrimSpace(text)
	if !enoughLetters(sample) {
		return ""
	}

	language, exists := getDetector().DetectLanguageOf(sample)
	if !exists {
		return ""
	}

	code := strings.ToLower(language.IsoCode639_1().String())
	if len(code) != 2 {
		return ""
	}
	return code
}

// Matches reports whether text is in want, a BCP 47 tag such as "en" or
// "en-US". Unknown languages and an empty or unparseable want always match.
func Matches(text, want string) bool {
	want = PrimaryCode(want)
	if want == "" {
		return true
	}
	got := DetectISO6391(text)
	return got == "" || got == want
}

// PrimaryCode returns the two-letter base language of a BCP 47 tag, or "".
func PrimaryCode(tag string) string {
	tag = strings.ReplaceAll(strings.TrimSpace(tag), "_", "-")
	if tag == "" {
		return ""
	}
	parsed, err := language.Parse(tag)
	if err != nil {
		return ""
	}
	base, confidence := parsed.Base()
	if confidence == language.No {
		return ""
	}
	code := base.String()
	if len(code) != 2 {
		return ""
	}
	return code
}

func enoughLetters(sample string) bool {
	letterCount := 0
	for _, r := range sample {
		if unicode.IsLetter(r) {
			letterCount++
			if letterCount >= MinLetters {
				return true
			}
		}
	}
	return false
}

func getDetector() lingua.LanguageDetector {
	detectorOnce.Do(func() {
		detector = lingua.NewLanguageDetectorBuilder().
			FromAllLanguages().
			WithPreloadedLanguageModels().
			Build()
	})
	return detector
}
