// Package keys derives canonical cache keys from viewport geometry.
//
// Two viewports that snap to the same grid cell at the same tier and
// share a date range produce identical keys, which is what turns map
// pans and zooms into cache hits.
package keys

import (
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/citypulse/viewport-alert-cache/internal/model"
)

// Tier is one cache-key granularity. Grid is the snapping cell size in
// degrees; MinArea is the smallest viewport area (square degrees)
// served at this tier.
type Tier struct {
	Name    string
	MinArea float64
	Grid    float64
}

// Largest-area tier first; grid sizes strictly decrease as the tier
// narrows.
var tiers = [4]Tier{
	{Name: "city", MinArea: 0.05, Grid: 0.1},
	{Name: "borough", MinArea: 0.01, Grid: 0.05},
	{Name: "neighborhood", MinArea: 0.002, Grid: 0.01},
	{Name: "street", MinArea: 0, Grid: 0.0025},
}

// TierForArea picks the tier for a viewport area.
func TierForArea(area float64) Tier {
	for _, t := range tiers {
		if area >= t.MinArea {
			return t
		}
	}
	return tiers[len(tiers)-1]
}

// Key is a structured cache key. Encode produces the canonical string
// form; the grid-snapping logic stays testable independent of it.
type Key struct {
	Metro bool
	Tier  string
	Grid  float64

	// snapped corners, meaningful when Metro is false
	Lat1, Lng1, Lat2, Lng2 float64

	Dates model.DateRange
}

func (k Key) Encode() string {
	if k.Metro {
		return "metro_area:" + k.Dates.String()
	}
	return fmt.Sprintf("viewport:%s:%g:%.4f,%.4f,%.4f,%.4f:%s",
		k.Tier, k.Grid, k.Lat1, k.Lng1, k.Lat2, k.Lng2, k.Dates.String())
}

// Resolve maps a normalized viewport and date range onto a cache key.
// Viewports not fully inside the metro reference area collapse to a
// single metro key per date range.
func Resolve(vp model.Viewport, dates model.DateRange) Key {
	vp = vp.Normalize()
	if !model.MetroArea.ContainsViewport(vp) {
		return Key{Metro: true, Dates: dates}
	}

	t := TierForArea(vp.Area())
	return Key{
		Tier:  t.Name,
		Grid:  t.Grid,
		Lat1:  snapDown(vp.Lat1, t.Grid),
		Lng1:  snapDown(vp.Lng1, t.Grid),
		Lat2:  snapUp(vp.Lat2, t.Grid),
		Lng2:  snapUp(vp.Lng2, t.Grid),
		Dates: dates,
	}
}

// HashFallback builds a key from a raw bbox string that failed to
// parse. Key generation must never fail, so anything unparsable is
// reduced to a content hash. Resolve itself cannot see malformed
// input because it takes a typed Viewport; this is the escape hatch
// for callers that hold raw request text and choose to serve rather
// than reject it.
func HashFallback(rawBBox string, dates model.DateRange) string {
	sum := xxhash.Sum64String(rawBBox + ":" + dates.String())
	return fmt.Sprintf("fallback:%016x:%s", sum, dates.String())
}

// snapDown floors v to the nearest multiple of grid, rounded to kill
// float noise from the multiply.
func snapDown(v, grid float64) float64 {
	return roundGrid(math.Floor(v/grid) * grid)
}

func snapUp(v, grid float64) float64 {
	return roundGrid(math.Ceil(v/grid) * grid)
}

// all grid sizes are exact at four decimals
func roundGrid(v float64) float64 {
	return math.Round(v*10000) / 10000
}
