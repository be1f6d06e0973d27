// Package detector identifies the language of generated text so the
// quality metrics can flag translations that came back in the wrong
// language.
package detector

import (
	"strings"

	lingua "github.com/pemistahl/lingua-go"
)

type Detector struct {
	detector lingua.LanguageDetector
}

func New() *Detector {
	detector := lingua.NewLanguageDetectorBuilder().
		FromAllLanguages().
		Build()

	return &Detector{detector: detector}
}

func (d *Detector) Detect(text string) (lingua.Language, bool) {
	if text == "" {
		return lingua.Unknown, false
	}
	return d.detector.DetectLanguageOf(text)
}

// DetectISO returns the ISO 639-1 code of the detected language.
func (d *Detector) DetectISO(text string) (string, bool) {
	lang, ok := d.Detect(text)
	if !ok {
		return "", false
	}
	return lang.IsoCode639_1().String(), true
}

// Matches reports whether text reads as the given ISO 639-1 language.
// Undetectable text counts as a match: short or mixed fragments should
// not be penalized.
func (d *Detector) Matches(text, iso string) bool {
	got, ok := d.DetectISO(text)
	if !ok {
		return true
	}
	return strings.EqualFold(got, iso)
}
