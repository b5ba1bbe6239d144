// Package model defines core domain types shared across the service.
package model

import (
	"fmt"
	"time"
)

// Source identifies where an alert originated.
type Source string

const (
	SourceEmergency Source = "emergency"
	SourceNews      Source = "news"
	SourceSocial    Source = "social"
	SourceRequests  Source = "requests"
)

// Priority buckets derived from numeric severity.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// PriorityFromSeverity maps severity to priority for incident-derived
// alerts (9/7/5/3 buckets).
func PriorityFromSeverity(sev int) Priority {
	switch {
	case sev >= 9:
		return PriorityCritical
	case sev >= 7:
		return PriorityHigh
	case sev >= 5:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// RequestPriorityFromSeverity maps severity to priority for service
// requests (8/6/4 buckets). Kept separate from PriorityFromSeverity on
// purpose: the two flows have always bucketed differently and unifying
// them silently would change user-visible priorities.
func RequestPriorityFromSeverity(sev int) Priority {
	switch {
	case sev >= 8:
		return PriorityCritical
	case sev >= 6:
		return PriorityHigh
	case sev >= 4:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// Category is the closed set of alert categories.
type Category string

const (
	CategoryInfrastructure Category = "infrastructure"
	CategoryTransportation Category = "transportation"
	CategoryEmergency      Category = "emergency"
	CategoryWeather        Category = "weather"
	CategoryCrime          Category = "crime"
	CategoryHealth         Category = "health"
	CategoryHousing        Category = "housing"
	CategoryNoise          Category = "noise"
	CategoryUtilities      Category = "utilities"
	CategoryOther          Category = "other"
)

// Alert is the unified output shape served to clients.
type Alert struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	Source       Source    `json:"source"`
	Priority     Priority  `json:"priority"`
	Severity     int       `json:"severity"`
	Timestamp    time.Time `json:"timestamp"`
	Lat          float64   `json:"lat"`
	Lng          float64   `json:"lng"`
	Neighborhood string    `json:"neighborhood,omitempty"`
	Borough      string    `json:"borough,omitempty"`
	Category     Category  `json:"category"`
}

// Viewport is a rectangular geographic region. Normalized form has
// Lat1<=Lat2 and Lng1<=Lng2.
type Viewport struct {
	Lat1, Lng1 float64
	Lat2, Lng2 float64
}

func (v Viewport) String() string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", v.Lat1, v.Lng1, v.Lat2, v.Lng2)
}

// Normalize returns the viewport with corners ordered so that
// Lat1<=Lat2 and Lng1<=Lng2.
func (v Viewport) Normalize() Viewport {
	if v.Lat1 > v.Lat2 {
		v.Lat1, v.Lat2 = v.Lat2, v.Lat1
	}
	if v.Lng1 > v.Lng2 {
		v.Lng1, v.Lng2 = v.Lng2, v.Lng1
	}
	return v
}

// Valid reports whether all four corners are valid lat/lng magnitudes.
func (v Viewport) Valid() bool {
	return v.Lat1 >= -90 && v.Lat1 <= 90 &&
		v.Lat2 >= -90 && v.Lat2 <= 90 &&
		v.Lng1 >= -180 && v.Lng1 <= 180 &&
		v.Lng2 >= -180 && v.Lng2 <= 180
}

// Area in square degrees. Assumes normalized form.
func (v Viewport) Area() float64 {
	return (v.Lat2 - v.Lat1) * (v.Lng2 - v.Lng1)
}

// Contains reports whether the point falls inside the viewport,
// inclusive on all edges. Assumes normalized form.
func (v Viewport) Contains(lat, lng float64) bool {
	return lat >= v.Lat1 && lat <= v.Lat2 && lng >= v.Lng1 && lng <= v.Lng2
}

// ContainsViewport reports whether other lies fully inside v.
func (v Viewport) ContainsViewport(other Viewport) bool {
	return other.Lat1 >= v.Lat1 && other.Lat2 <= v.Lat2 &&
		other.Lng1 >= v.Lng1 && other.Lng2 <= v.Lng2
}

// MetroArea is the reference service area. Viewports outside it are
// served by the metro fallback path.
var MetroArea = Viewport{
	Lat1: 40.477399, Lng1: -74.259090,
	Lat2: 40.917577, Lng2: -73.700272,
}

// DateRange is an inclusive calendar-date range.
type DateRange struct {
	Start time.Time
	End   time.Time
}

const dateLayout = "2006-01-02"

func (d DateRange) String() string {
	return d.Start.Format(dateLayout) + ":" + d.End.Format(dateLayout)
}

// ParseDateRange parses "YYYY-MM-DD" start/end values.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := time.Parse(dateLayout, start)
	if err != nil {
		return DateRange{}, fmt.Errorf("parse start date %q: %w", start, err)
	}
	e, err := time.Parse(dateLayout, end)
	if err != nil {
		return DateRange{}, fmt.Errorf("parse end date %q: %w", end, err)
	}
	if e.Before(s) {
		return DateRange{}, fmt.Errorf("end date %s precedes start date %s", end, start)
	}
	return DateRange{Start: s, End: e}, nil
}

// Window returns the half-open instant range covering the inclusive
// calendar dates.
func (d DateRange) Window() (time.Time, time.Time) {
	return d.Start, d.End.AddDate(0, 0, 1)
}

// BoroughCentroid returns the centroid used when a record lacks
// coordinates. Unknown boroughs fall back to the metro area center.
func BoroughCentroid(borough string) (lat, lng float64) {
	switch borough {
	case "Manhattan", "MANHATTAN":
		return 40.7831, -73.9712
	case "Brooklyn", "BROOKLYN":
		return 40.6782, -73.9442
	case "Queens", "QUEENS":
		return 40.7282, -73.7949
	case "Bronx", "BRONX":
		return 40.8448, -73.8648
	case "Staten Island", "STATEN ISLAND":
		return 40.5795, -74.1502
	default:
		return (MetroArea.Lat1 + MetroArea.Lat2) / 2, (MetroArea.Lng1 + MetroArea.Lng2) / 2
	}
}
