// Package langdetect provides local language detection for transcript text
// the server did not tag.
package langdetect

import (
	"strings"

	"github.com/pemistahl/lingua-go"
)

// minConfidence is the floor below which a guess is discarded; short phrases
// produce low-confidence noise and are better left untagged.
const minConfidence = 0.65

// minTextLength skips detection on fragments too short to classify.
const minTextLength = 12

// Detector guesses the language of short transcript text, restricted to a
// known language set to keep accuracy usable on single sentences.
type Detector struct {
	detector lingua.LanguageDetector
}

// New builds a detector for the given ISO 639-1 codes. Unknown codes are
// ignored; at least two known codes are required for lingua to discriminate.
func New(codes []string) *Detector {
	var langs []lingua.Language
	for _, code := range codes {
		if lang, ok := languageFor(code); ok {
			langs = append(langs, lang)
		}
	}
	if len(langs) < 2 {
		return &Detector{}
	}
	return &Detector{
		detector: lingua.NewLanguageDetectorBuilder().
			FromLanguages(langs...).
			WithPreloadedLanguageModels().
			Build(),
	}
}

// Detect returns the ISO 639-1 code of text's language. ok is false when the
// text is too short, the detector is unusable, or confidence is below the
// floor.
func (d *Detector) Detect(text string) (string, bool) {
	if d.detector == nil {
		return "", false
	}
	text = strings.TrimSpace(text)
	if len(text) < minTextLength {
		return "", false
	}

	lang, ok := d.detector.DetectLanguageOf(text)
	if !ok {
		return "", false
	}
	if d.detector.ComputeLanguageConfidence(text, lang) < minConfidence {
		return "", false
	}
	return strings.ToLower(lang.IsoCode639_1().String()), true
}

func languageFor(code string) (lingua.Language, bool) {
	switch strings.ToLower(code) {
	case "en":
		return lingua.English, true
	case "zh":
		return lingua.Chinese, true
	case "es":
		return lingua.Spanish, true
	case "fr":
		return lingua.French, true
	case "de":
		return lingua.German, true
	case "ja":
		return lingua.Japanese, true
	case "ko":
		return lingua.Korean, true
	case "pt":
		return lingua.Portuguese, true
	case "ru":
		return lingua.Russian, true
	case "it":
		return lingua.Italian, true
	case "vi":
		return lingua.Vietnamese, true
	default:
		return lingua.Unknown, false
	}
}
