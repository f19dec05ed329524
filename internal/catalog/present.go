package catalog

import (
	"regexp"
	"strings"
)

// DefaultBlurThreshold blurs suggestive or violent images and above.
const DefaultBlurThreshold = 1.0

// BlurPolicy decides whether an image is blurred. An image is blurred when
// the policy is enabled and either rating is at or above Threshold.
type BlurPolicy struct {
	Enabled   bool
	Threshold float64
}

// ShouldBlur reports whether img must be blurred. A nil image never is.
func (p BlurPolicy) ShouldBlur(img *Image) bool {
	if !p.Enabled || img == nil {
		return false
	}
	return img.Sexual >= p.Threshold || img.Violence >= p.Threshold
}

var markupTags = regexp.MustCompile(`(?i)\[(url|spoiler|quote|raw|code)(?:=[^\]]*)?]|\[/(url|spoiler|quote|raw|code)]`)

// StripMarkup removes the catalog's formatting tags from a description,
// keeping the enclosed text.
func StripMarkup(s string) string {
	return strings.TrimSpace(markupTags.ReplaceAllString(s, ""))
}

// MaxVisibleTags caps the tags shown on the detail view.
const MaxVisibleTags = 15

// VisibleTags returns the non-spoiler tags, at most MaxVisibleTags, in
// their original order.
func VisibleTags(tags []Tag) []Tag {
	out := make([]Tag, 0, min(len(tags), MaxVisibleTags))
	for _, t := range tags {
		if t.Spoiler != 0 {
			continue
		}
		out = append(out, t)
		if len(out) == MaxVisibleTags {
			break
		}
	}
	return out
}
