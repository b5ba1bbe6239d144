// Package rank orders merged alerts for presentation.
package rank

import (
	"sort"

	"github.com/citypulse/viewport-alert-cache/internal/model"
)

// SourceRank is the fixed presentation ordering for sources. Lower
// ranks sort first.
func SourceRank(s model.Source) int {
	switch s {
	case model.SourceEmergency:
		return 0
	case model.SourceRequests:
		return 1
	case model.SourceNews:
		return 2
	default:
		return 3
	}
}

// Sort orders alerts by (source rank ascending, timestamp descending).
// The sort is stable, so equal keys preserve input order.
func Sort(alerts []model.Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		ri, rj := SourceRank(alerts[i].Source), SourceRank(alerts[j].Source)
		if ri != rj {
			return ri < rj
		}
		return alerts[i].Timestamp.After(alerts[j].Timestamp)
	})
}
