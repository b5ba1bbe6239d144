// Package dedup collapses near-duplicate alerts by title similarity.
package dedup

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/citypulse/viewport-alert-cache/internal/model"
)

// Threshold is the similarity ratio at or above which a candidate is
// considered a duplicate of an already-accepted alert.
const Threshold = 0.85

const maxTitleLen = 150

// Collapse removes near-duplicates, keeping the first-seen alert of
// each cluster. Alerts from the requests source are never collapsed:
// each carries an upstream-guaranteed unique identity (unique_key, one
// per real-world request).
//
// Quadratic over the non-exempt subset. Fine at the hundreds of alerts
// a viewport produces; revisit before feeding it tens of thousands.
func Collapse(alerts []model.Alert) []model.Alert {
	out := make([]model.Alert, 0, len(alerts))
	accepted := make([]string, 0, len(alerts))

	for _, a := range alerts {
		if a.Source == model.SourceRequests {
			out = append(out, a)
			continue
		}
		title := NormalizeTitle(a.Title)
		dup := false
		for _, prev := range accepted {
			if Similarity(title, prev) >= Threshold {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		accepted = append(accepted, title)
		out = append(out, a)
	}
	return out
}

// NormalizeTitle lowercases, trims, and truncates to a fixed rune
// count so equivalent headlines compare equal regardless of feed
// formatting. Truncation counts runes, not bytes; a multibyte
// character at the cut must not be split into invalid UTF-8.
func NormalizeTitle(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if utf8.RuneCountInString(s) > maxTitleLen {
		r := []rune(s)
		s = string(r[:maxTitleLen])
	}
	return s
}

// Similarity is a normalized edit-distance ratio in [0,1]; 1 means
// identical strings.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := len([]rune(a)), len([]rune(b))
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}
