// Package source defines the contract with the two backing collections.
package source

import (
	"context"
	"time"

	"github.com/citypulse/viewport-alert-cache/internal/model"
)

// Record is a normalized alert plus whether the backing document
// carried its own coordinates. Documents without coordinates cannot be
// placed on a map and are skipped by the spatial path; the alert still
// holds a borough-centroid default for non-spatial consumers.
type Record struct {
	Alert   model.Alert
	Located bool
}

// Source fetches records whose timestamps fall in [from, to). The time
// range is the only predicate the backing stores index well; spatial
// filtering happens in-process after the fetch.
type Source interface {
	Name() string
	Fetch(ctx context.Context, from, to time.Time, limit int) ([]Record, error)
}

// Stats is the per-source slice of a query breakdown.
type Stats struct {
	Fetched    int     `json:"fetched"`
	Kept       int     `json:"kept"`
	DurationMS float64 `json:"duration_ms"`
	Error      string  `json:"error,omitempty"`
}
