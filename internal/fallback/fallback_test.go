package fallback

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/citypulse/viewport-alert-cache/internal/model"
	"github.com/citypulse/viewport-alert-cache/internal/query"
	"github.com/citypulse/viewport-alert-cache/internal/source"
)

type fakeSource struct {
	name    string
	records []source.Record
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(_ context.Context, _, _ time.Time, _ int) ([]source.Record, error) {
	return f.records, nil
}

func metroRec(id string, severity int, ts time.Time) source.Record {
	// a point well inside the metro reference bbox
	return source.Record{
		Alert: model.Alert{
			ID: id, Title: id, Source: model.SourceEmergency,
			Severity: severity, Timestamp: ts,
			Lat: 40.72, Lng: -73.97,
		},
		Located: true,
	}
}

func newProvider(events, requests []source.Record, resultCap int) *Provider {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := query.New(logger,
		&fakeSource{name: "events", records: events},
		&fakeSource{name: "requests", records: requests})
	return New(e, 0, resultCap, 0)
}

func testDates(t *testing.T) model.DateRange {
	t.Helper()
	d, err := model.ParseDateRange("2024-01-01", "2024-01-07")
	if err != nil {
		t.Fatalf("dates: %v", err)
	}
	return d
}

func TestFetch_FiltersBelowMinSeverity(t *testing.T) {
	now := time.Now()
	events := []source.Record{
		metroRec("sev9", 9, now),
		metroRec("sev7", 7, now),
		metroRec("sev6", 6, now),
		metroRec("sev0", 0, now),
	}
	p := newProvider(events, nil, 0)

	alerts, breakdown := p.Fetch(context.Background(), testDates(t))
	if len(alerts) != 2 {
		t.Fatalf("alerts = %d, want 2 (severity 7 and up)", len(alerts))
	}
	for _, a := range alerts {
		if a.Severity < 7 {
			t.Fatalf("%s with severity %d slipped through", a.ID, a.Severity)
		}
	}
	if _, ok := breakdown["events"]; !ok {
		t.Fatal("breakdown must be passed through")
	}
}

func TestFetch_SortsBySeverityThenNewest(t *testing.T) {
	now := time.Now()
	events := []source.Record{
		metroRec("sev8-old", 8, now.Add(-time.Hour)),
		metroRec("sev9", 9, now.Add(-2*time.Hour)),
		metroRec("sev8-new", 8, now),
	}
	p := newProvider(events, nil, 0)

	alerts, _ := p.Fetch(context.Background(), testDates(t))
	want := []string{"sev9", "sev8-new", "sev8-old"}
	if len(alerts) != len(want) {
		t.Fatalf("alerts = %d, want %d", len(alerts), len(want))
	}
	for i, id := range want {
		if alerts[i].ID != id {
			t.Fatalf("alerts[%d] = %s, want %s", i, alerts[i].ID, id)
		}
	}
}

func TestFetch_CapsResults(t *testing.T) {
	now := time.Now()
	var events []source.Record
	for i := range 10 {
		events = append(events, metroRec(fmt.Sprintf("e%d", i), 9, now))
	}
	p := newProvider(events, nil, 3)

	alerts, _ := p.Fetch(context.Background(), testDates(t))
	if len(alerts) != 3 {
		t.Fatalf("alerts = %d, want cap of 3", len(alerts))
	}
}

func TestFetch_EmptyWhenNothingSevere(t *testing.T) {
	events := []source.Record{metroRec("mild", 2, time.Now())}
	p := newProvider(events, nil, 0)

	alerts, _ := p.Fetch(context.Background(), testDates(t))
	if len(alerts) != 0 {
		t.Fatalf("alerts = %d, want 0", len(alerts))
	}
}
