// Package fallback serves viewports outside the metro reference area.
package fallback

import (
	"context"
	"sort"

	"github.com/citypulse/viewport-alert-cache/internal/model"
	"github.com/citypulse/viewport-alert-cache/internal/query"
	"github.com/citypulse/viewport-alert-cache/internal/source"
)

// Provider answers out-of-region viewports with the most severe
// ongoing items from the whole metro area rather than nothing or an
// unbounded query. It queries the reference bbox itself, not the
// requested (larger) viewport.
type Provider struct {
	engine      *query.Engine
	fetchLimit  int
	cap         int
	minSeverity int
}

func New(engine *query.Engine, fetchLimit, resultCap, minSeverity int) *Provider {
	if fetchLimit <= 0 {
		fetchLimit = 2000
	}
	if resultCap <= 0 {
		resultCap = 100
	}
	if minSeverity <= 0 {
		minSeverity = 7
	}
	return &Provider{
		engine:      engine,
		fetchLimit:  fetchLimit,
		cap:         resultCap,
		minSeverity: minSeverity,
	}
}

// Fetch returns high-severity alerts across the metro area, sorted by
// (severity descending, timestamp descending) and capped.
func (p *Provider) Fetch(ctx context.Context, dates model.DateRange) ([]model.Alert, map[string]source.Stats) {
	res := p.engine.Query(ctx, model.MetroArea, dates, p.fetchLimit)

	kept := make([]model.Alert, 0, len(res.Alerts))
	for _, a := range res.Alerts {
		if a.Severity >= p.minSeverity {
			kept = append(kept, a)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Severity != kept[j].Severity {
			return kept[i].Severity > kept[j].Severity
		}
		return kept[i].Timestamp.After(kept[j].Timestamp)
	})

	if len(kept) > p.cap {
		kept = kept[:p.cap]
	}
	return kept, res.Breakdown
}
