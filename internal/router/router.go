// Package router validates query parameters and serves the HTTP API.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/citypulse/viewport-alert-cache/internal/model"
	"github.com/citypulse/viewport-alert-cache/internal/observability"
	"github.com/citypulse/viewport-alert-cache/internal/service"
)

// AlertService is the boundary the handlers talk to.
type AlertService interface {
	Serve(ctx context.Context, vp model.Viewport, dates model.DateRange, limit int) ([]model.Alert, service.Performance, error)
	Recent(ctx context.Context, limit, hours int) ([]service.RecentAlert, error)
	ClearCache() (int, error)
}

type Handlers struct {
	logger   *slog.Logger
	svc      AlertService
	maxLimit int
}

func New(logger *slog.Logger, svc AlertService, maxLimit int) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	if maxLimit <= 0 {
		maxLimit = 50000
	}
	return &Handlers{logger: logger, svc: svc, maxLimit: maxLimit}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Viewport handles GET /alerts/viewport.
func (h *Handlers) Viewport(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
	defer func() {
		observability.ObserveHTTP(r.Method, "/alerts/viewport", sw.code, time.Since(start).Seconds())
	}()

	vp, dates, limit, err := h.parseViewportRequest(r)
	if err != nil {
		http.Error(sw, err.Error(), http.StatusBadRequest)
		return
	}

	alerts, perf, err := h.svc.Serve(r.Context(), vp, dates, limit)
	if err != nil {
		if errors.Is(err, service.ErrInvalidViewport) {
			http.Error(sw, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("serve viewport failed", "err", err)
		http.Error(sw, "internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(sw, http.StatusOK, struct {
		Alerts      []model.Alert       `json:"alerts"`
		Performance service.Performance `json:"performance"`
	}{Alerts: alerts, Performance: perf})
}

// Recent handles GET /alerts/recent.
func (h *Handlers) Recent(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
	defer func() {
		observability.ObserveHTTP(r.Method, "/alerts/recent", sw.code, time.Since(start).Seconds())
	}()

	limit, err := parseIntParam(r, "limit", 100, 1, h.maxLimit)
	if err != nil {
		http.Error(sw, err.Error(), http.StatusBadRequest)
		return
	}
	hours, err := parseIntParam(r, "hours", 24, 1, 24*30)
	if err != nil {
		http.Error(sw, err.Error(), http.StatusBadRequest)
		return
	}

	alerts, err := h.svc.Recent(r.Context(), limit, hours)
	if err != nil {
		h.logger.Error("serve recent failed", "err", err)
		http.Error(sw, "internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(sw, http.StatusOK, struct {
		Alerts []service.RecentAlert `json:"alerts"`
	}{Alerts: alerts})
}

// ClearCache handles DELETE /alerts/cache.
func (h *Handlers) ClearCache(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
	defer func() {
		observability.ObserveHTTP(r.Method, "/alerts/cache", sw.code, time.Since(start).Seconds())
	}()

	n, err := h.svc.ClearCache()
	if err != nil {
		h.logger.Error("clear cache failed", "err", err)
		http.Error(sw, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(sw, http.StatusOK, struct {
		Cleared int `json:"cleared"`
	}{Cleared: n})
}

// Liveness handles GET /healthz.
func Liveness() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}

func (h *Handlers) parseViewportRequest(r *http.Request) (model.Viewport, model.DateRange, int, error) {
	rawBBox := strings.TrimSpace(r.URL.Query().Get("bbox"))
	if rawBBox == "" {
		return model.Viewport{}, model.DateRange{}, 0, errors.New("missing required parameter: bbox")
	}
	vp, err := ParseBBox(rawBBox)
	if err != nil {
		return model.Viewport{}, model.DateRange{}, 0, fmt.Errorf("invalid bbox: %w", err)
	}

	startDate := strings.TrimSpace(r.URL.Query().Get("start_date"))
	endDate := strings.TrimSpace(r.URL.Query().Get("end_date"))
	if endDate == "" {
		endDate = time.Now().UTC().Format("2006-01-02")
	}
	if startDate == "" {
		end, _ := time.Parse("2006-01-02", endDate)
		startDate = end.AddDate(0, 0, -6).Format("2006-01-02")
	}
	dates, err := model.ParseDateRange(startDate, endDate)
	if err != nil {
		return model.Viewport{}, model.DateRange{}, 0, fmt.Errorf("invalid date range: %w", err)
	}

	limit, err := parseIntParam(r, "limit", 0, 1, h.maxLimit)
	if err != nil {
		return model.Viewport{}, model.DateRange{}, 0, err
	}
	return vp, dates, limit, nil
}

// ParseBBox parses "lat1,lng1,lat2,lng2" and validates magnitudes. The
// corners may arrive in any order; the viewport is normalized here.
func ParseBBox(raw string) (model.Viewport, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return model.Viewport{}, errors.New("expected 4 comma-separated values: lat1,lng1,lat2,lng2")
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return model.Viewport{}, fmt.Errorf("value %d: %w", i+1, err)
		}
		vals[i] = f
	}
	vp := model.Viewport{Lat1: vals[0], Lng1: vals[1], Lat2: vals[2], Lng2: vals[3]}.Normalize()
	if !vp.Valid() {
		return model.Viewport{}, errors.New("latitude must be in [-90,90] and longitude in [-180,180]")
	}
	return vp, nil
}

func parseIntParam(r *http.Request, name string, def, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if n < min || n > max {
		return 0, fmt.Errorf("%s must be between %d and %d", name, min, max)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
