package router

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/citypulse/viewport-alert-cache/internal/cache/memstore"
	"github.com/citypulse/viewport-alert-cache/internal/fallback"
	"github.com/citypulse/viewport-alert-cache/internal/model"
	"github.com/citypulse/viewport-alert-cache/internal/query"
	"github.com/citypulse/viewport-alert-cache/internal/service"
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

func located(id string, src model.Source, severity int) source.Record {
	return source.Record{
		Alert: model.Alert{
			ID: id, Title: id, Source: src,
			Severity: severity, Timestamp: time.Now(),
			Lat: 40.72, Lng: -73.97,
		},
		Located: true,
	}
}

func newHandlers(events, requests []source.Record) *Handlers {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := query.New(logger,
		&fakeSource{name: "events", records: events},
		&fakeSource{name: "requests", records: requests})
	svc := service.New(logger, memstore.New(0), e, fallback.New(e, 0, 0, 0), service.Config{})
	return New(logger, svc, 0)
}

type viewportResponse struct {
	Alerts      []model.Alert       `json:"alerts"`
	Performance service.Performance `json:"performance"`
}

func getViewport(t *testing.T, h *Handlers, target string) (*httptest.ResponseRecorder, viewportResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.Viewport(rec, httptest.NewRequest(http.MethodGet, target, nil))

	var body viewportResponse
	if rec.Code == http.StatusOK {
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return rec, body
}

func TestViewport_ParamValidation(t *testing.T) {
	h := newHandlers(nil, nil)
	cases := []struct {
		name   string
		target string
	}{
		{"missing bbox", "/alerts/viewport"},
		{"three values", "/alerts/viewport?bbox=40.70,-74.00,40.76"},
		{"non-numeric", "/alerts/viewport?bbox=a,b,c,d"},
		{"lat out of range", "/alerts/viewport?bbox=95.0,-74.00,96.0,-73.95"},
		{"lng out of range", "/alerts/viewport?bbox=40.70,-190.0,40.76,-185.0"},
		{"bad date", "/alerts/viewport?bbox=40.70,-74.00,40.76,-73.95&start_date=01-01-2024"},
		{"inverted dates", "/alerts/viewport?bbox=40.70,-74.00,40.76,-73.95&start_date=2024-01-07&end_date=2024-01-01"},
		{"zero limit", "/alerts/viewport?bbox=40.70,-74.00,40.76,-73.95&limit=0"},
		{"limit too large", "/alerts/viewport?bbox=40.70,-74.00,40.76,-73.95&limit=99999999"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, _ := getViewport(t, h, tc.target)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestViewport_MissThenHit(t *testing.T) {
	h := newHandlers(
		[]source.Record{located("e1", model.SourceEmergency, 8)},
		[]source.Record{located("r1", model.SourceRequests, 5)},
	)
	target := "/alerts/viewport?bbox=40.70,-74.00,40.76,-73.95&start_date=2024-01-01&end_date=2024-01-07"

	rec, body := getViewport(t, h, target)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if body.Performance.CacheHit {
		t.Fatal("first call must report cache_hit=false")
	}
	if body.Performance.CacheKey == "" {
		t.Fatal("performance block must carry the cache key")
	}
	if len(body.Alerts) != 2 {
		t.Fatalf("alerts = %d, want 2", len(body.Alerts))
	}

	rec, body = getViewport(t, h, target)
	if rec.Code != http.StatusOK {
		t.Fatalf("second status = %d", rec.Code)
	}
	if !body.Performance.CacheHit {
		t.Fatal("second call must report cache_hit=true")
	}
	if body.Performance.CacheAgeSeconds < 0 {
		t.Fatalf("cache_age_seconds = %f", body.Performance.CacheAgeSeconds)
	}
}

func TestViewport_DefaultDates(t *testing.T) {
	h := newHandlers(nil, nil)

	rec, body := getViewport(t, h, "/alerts/viewport?bbox=40.70,-74.00,40.76,-73.95")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	// omitted dates default to a 7-day window ending today
	today := time.Now().UTC().Format("2006-01-02")
	start := time.Now().UTC().AddDate(0, 0, -6).Format("2006-01-02")
	wantSuffix := start + ":" + today
	key := body.Performance.CacheKey
	if len(key) < len(wantSuffix) || key[len(key)-len(wantSuffix):] != wantSuffix {
		t.Fatalf("cache key %s does not end in default window %s", key, wantSuffix)
	}
}

func TestViewport_OutOfRegionFallback(t *testing.T) {
	h := newHandlers(
		[]source.Record{located("severe", model.SourceEmergency, 9), located("mild", model.SourceNews, 2)},
		nil,
	)

	rec, body := getViewport(t, h, "/alerts/viewport?bbox=30.0,-80.0,31.0,-79.0&start_date=2024-01-01&end_date=2024-01-07")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !body.Performance.Fallback {
		t.Fatal("out-of-region bbox must report fallback=true")
	}
	for _, a := range body.Alerts {
		if a.Severity < 7 {
			t.Fatalf("fallback served %s with severity %d", a.ID, a.Severity)
		}
	}
}

func TestRecent_HappyPathAndValidation(t *testing.T) {
	h := newHandlers([]source.Record{located("e1", model.SourceEmergency, 8)}, nil)

	rec := httptest.NewRecorder()
	h.Recent(rec, httptest.NewRequest(http.MethodGet, "/alerts/recent?limit=10&hours=24", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Alerts []service.RecentAlert `json:"alerts"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Alerts) != 1 || body.Alerts[0].ID != "e1" {
		t.Fatalf("alerts = %+v", body.Alerts)
	}

	for _, target := range []string{
		"/alerts/recent?limit=abc",
		"/alerts/recent?hours=0",
		"/alerts/recent?hours=100000",
	} {
		rec := httptest.NewRecorder()
		h.Recent(rec, httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", target, rec.Code)
		}
	}
}

func TestClearCache_ReportsCount(t *testing.T) {
	h := newHandlers([]source.Record{located("e1", model.SourceEmergency, 8)}, nil)

	// populate one entry first
	rec, _ := getViewport(t, h, "/alerts/viewport?bbox=40.70,-74.00,40.76,-73.95&start_date=2024-01-01&end_date=2024-01-07")
	if rec.Code != http.StatusOK {
		t.Fatalf("populate: status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ClearCache(rec, httptest.NewRequest(http.MethodDelete, "/alerts/cache", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Cleared int `json:"cleared"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Cleared != 1 {
		t.Fatalf("cleared = %d, want 1", body.Cleared)
	}
}

func TestLiveness(t *testing.T) {
	rec := httptest.NewRecorder()
	Liveness()(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %s", ct)
	}
}

func TestParseBBox_NormalizesCornerOrder(t *testing.T) {
	a, err := ParseBBox("40.76,-73.95,40.70,-74.00")
	if err != nil {
		t.Fatalf("ParseBBox: %v", err)
	}
	b, err := ParseBBox("40.70,-74.00,40.76,-73.95")
	if err != nil {
		t.Fatalf("ParseBBox: %v", err)
	}
	if a != b {
		t.Fatalf("corner order changed the viewport: %+v vs %+v", a, b)
	}
}
