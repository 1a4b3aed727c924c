package vision

import (
	"image"
	"os"
	"strings"
)

// FixedMatcher implements script.Matcher without real template matching.
// It scores 0 for a missing screenshot, a blank template path or a template
// file that does not exist, and Confidence otherwise.
type FixedMatcher struct {
	Confidence float64
}

// NewFixedMatcher creates a matcher returning confidence for any usable template.
func NewFixedMatcher(confidence float64) *FixedMatcher {
	return &FixedMatcher{Confidence: confidence}
}

// Score implements script.Matcher.
func (m *FixedMatcher) Score(img image.Image, templatePath string) float64 {
	if img == nil || strings.TrimSpace(templatePath) == "" {
		return 0
	}
	if _, err := os.Stat(templatePath); err != nil {
		return 0
	}
	return m.Confidence
}
