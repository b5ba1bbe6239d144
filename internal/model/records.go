package model

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EventRecord is the raw document shape of the incidents collection.
// Severity and category are filled in by the upstream enrichment step
// and may be missing on fresh documents.
type EventRecord struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Title       string             `bson:"title"`
	Description string             `bson:"description,omitempty"`
	Severity    *int               `bson:"severity,omitempty"`
	Category    string             `bson:"category,omitempty"`
	Timestamp   time.Time          `bson:"timestamp"`
	Location    EventLocation      `bson:"location"`
	Channels    []EventChannel     `bson:"channels,omitempty"`
}

// EventLocation nests coordinates one level below the document root.
type EventLocation struct {
	Lat          *float64 `bson:"lat,omitempty"`
	Lng          *float64 `bson:"lng,omitempty"`
	Neighborhood string   `bson:"neighborhood,omitempty"`
	Borough      string   `bson:"borough,omitempty"`
}

// EventChannel records which upstream feed produced the document. The
// first entry with a non-empty name is the originating channel.
type EventChannel struct {
	Name      string    `bson:"name,omitempty"`
	FetchedAt time.Time `bson:"fetched_at,omitempty"`
}

// Coordinates returns the record's point, if present.
func (e EventRecord) Coordinates() (lat, lng float64, ok bool) {
	if e.Location.Lat == nil || e.Location.Lng == nil {
		return 0, 0, false
	}
	return *e.Location.Lat, *e.Location.Lng, true
}

// OriginSource extracts the originating channel from the nested array
// and maps it onto the Source enum. Documents with no usable channel
// entry are attributed to the emergency feed.
func (e EventRecord) OriginSource() Source {
	for _, ch := range e.Channels {
		switch strings.ToLower(strings.TrimSpace(ch.Name)) {
		case "":
			continue
		case "emergency", "911", "fdny", "nypd":
			return SourceEmergency
		case "news", "rss":
			return SourceNews
		case "social", "twitter", "x", "reddit":
			return SourceSocial
		default:
			return SourceNews
		}
	}
	return SourceEmergency
}

// RequestRecord is the raw document shape of the service-requests
// collection. UniqueKey is the upstream identity; the collection is
// deduplicated before it ever reaches us.
type RequestRecord struct {
	UniqueKey     string    `bson:"unique_key"`
	ComplaintType string    `bson:"complaint_type"`
	Descriptor    string    `bson:"descriptor,omitempty"`
	Severity      *int      `bson:"severity,omitempty"`
	Category      string    `bson:"category,omitempty"`
	CreatedDate   time.Time `bson:"created_date"`
	Latitude      *float64  `bson:"latitude,omitempty"`
	Longitude     *float64  `bson:"longitude,omitempty"`
	Neighborhood  string    `bson:"neighborhood,omitempty"`
	Borough       string    `bson:"borough,omitempty"`
}

// Coordinates returns the record's point, if present.
func (r RequestRecord) Coordinates() (lat, lng float64, ok bool) {
	if r.Latitude == nil || r.Longitude == nil {
		return 0, 0, false
	}
	return *r.Latitude, *r.Longitude, true
}

// AlertFromEvent normalizes an incident document into the unified
// shape. Missing coordinates default to the borough centroid so the
// alert can always be placed on a map.
func AlertFromEvent(e EventRecord) Alert {
	sev := 0
	if e.Severity != nil {
		sev = clampSeverity(*e.Severity)
	}
	lat, lng, ok := e.Coordinates()
	if !ok {
		lat, lng = BoroughCentroid(e.Location.Borough)
	}
	cat := Category(strings.ToLower(strings.TrimSpace(e.Category)))
	if !knownCategory(cat) {
		cat = Categorize(e.Title + " " + e.Description)
	}
	return Alert{
		ID:           e.ID.Hex(),
		Title:        e.Title,
		Description:  e.Description,
		Source:       e.OriginSource(),
		Priority:     PriorityFromSeverity(sev),
		Severity:     sev,
		Timestamp:    e.Timestamp,
		Lat:          lat,
		Lng:          lng,
		Neighborhood: e.Location.Neighborhood,
		Borough:      e.Location.Borough,
		Category:     cat,
	}
}

// AlertFromRequest normalizes a service-request document. Requests use
// their own severity buckets when the upstream enrichment has not run.
func AlertFromRequest(r RequestRecord) Alert {
	sev := 2
	if r.Severity != nil {
		sev = clampSeverity(*r.Severity)
	}
	lat, lng, ok := r.Coordinates()
	if !ok {
		lat, lng = BoroughCentroid(r.Borough)
	}
	cat := Category(strings.ToLower(strings.TrimSpace(r.Category)))
	if !knownCategory(cat) {
		cat = Categorize(r.ComplaintType + " " + r.Descriptor)
	}
	return Alert{
		ID:           r.UniqueKey,
		Title:        r.ComplaintType,
		Description:  r.Descriptor,
		Source:       SourceRequests,
		Priority:     RequestPriorityFromSeverity(sev),
		Severity:     sev,
		Timestamp:    r.CreatedDate,
		Lat:          lat,
		Lng:          lng,
		Neighborhood: r.Neighborhood,
		Borough:      r.Borough,
		Category:     cat,
	}
}

func clampSeverity(s int) int {
	if s < 0 {
		return 0
	}
	if s > 10 {
		return 10
	}
	return s
}

func knownCategory(c Category) bool {
	switch c {
	case CategoryInfrastructure, CategoryTransportation, CategoryEmergency,
		CategoryWeather, CategoryCrime, CategoryHealth, CategoryHousing,
		CategoryNoise, CategoryUtilities, CategoryOther:
		return true
	}
	return false
}

var categoryKeywords = []struct {
	cat   Category
	words []string
}{
	{CategoryEmergency, []string{"fire", "explosion", "collapse", "evacuat", "rescue"}},
	{CategoryCrime, []string{"shooting", "robbery", "assault", "theft", "burglary"}},
	{CategoryTransportation, []string{"traffic", "subway", "bus", "collision", "road closure", "derail"}},
	{CategoryWeather, []string{"flood", "storm", "snow", "heat advisory", "hurricane", "wind"}},
	{CategoryUtilities, []string{"power outage", "gas leak", "water main", "electric", "con ed"}},
	{CategoryHousing, []string{"heat complaint", "hot water", "landlord", "eviction", "mold"}},
	{CategoryNoise, []string{"noise", "loud music", "party"}},
	{CategoryHealth, []string{"rodent", "food poisoning", "air quality", "asbestos"}},
	{CategoryInfrastructure, []string{"pothole", "sidewalk", "street light", "bridge", "scaffold"}},
}

// Categorize is the deterministic fallback used when a record reaches
// us before enrichment has assigned a category.
func Categorize(text string) Category {
	t := strings.ToLower(text)
	for _, ck := range categoryKeywords {
		for _, w := range ck.words {
			if strings.Contains(t, w) {
				return ck.cat
			}
		}
	}
	return CategoryOther
}
