package text

import (
	"strings"

	"github.com/pemistahl/lingua-go"
)

// LanguageDetector classifies a text's language as a lowercase ISO 639-1
// code, or "unknown" when detection is inconclusive.
type LanguageDetector interface {
	Detect(s string) string
}

type linguaDetector struct {
	detector lingua.LanguageDetector
}

// NewLanguageDetector builds a detector restricted to the workspace's
// languages. The narrow candidate set keeps short-chunk detection reliable.
func NewLanguageDetector() LanguageDetector {
	d := lingua.NewLanguageDetectorBuilder().
		FromLanguages(lingua.English, lingua.Russian, lingua.Ukrainian).
		Build()
	return &linguaDetector{detector: d}
}

func (l *linguaDetector) Detect(s string) string {
	lang, ok := l.detector.DetectLanguageOf(s)
	if !ok {
		return "unknown"
	}
	return strings.ToLower(lang.IsoCode639_1().String())
}
