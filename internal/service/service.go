// Package service orchestrates cache, query, dedup, and ranking into
// the viewport alert-serving contract.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/citypulse/viewport-alert-cache/internal/cache"
	"github.com/citypulse/viewport-alert-cache/internal/cache/keys"
	"github.com/citypulse/viewport-alert-cache/internal/dedup"
	"github.com/citypulse/viewport-alert-cache/internal/fallback"
	"github.com/citypulse/viewport-alert-cache/internal/model"
	"github.com/citypulse/viewport-alert-cache/internal/observability"
	"github.com/citypulse/viewport-alert-cache/internal/query"
	"github.com/citypulse/viewport-alert-cache/internal/rank"
	"github.com/citypulse/viewport-alert-cache/internal/source"
)

var ErrInvalidViewport = errors.New("viewport coordinates out of range")

// Phases breaks down where a cache-miss request spent its time.
type Phases struct {
	CacheLookupMS float64 `json:"cache_lookup_ms"`
	QueryMS       float64 `json:"query_ms"`
	DedupMS       float64 `json:"dedup_ms"`
	SortMS        float64 `json:"sort_ms"`
	CacheWriteMS  float64 `json:"cache_write_ms"`
}

// Performance is the instrumentation block returned with every
// response. Backend degradation is visible only here: a failed source
// keeps an error marker in QueryBreakdown while the request succeeds.
type Performance struct {
	CacheHit        bool                    `json:"cache_hit"`
	CacheKey        string                  `json:"cache_key"`
	CacheAgeSeconds float64                 `json:"cache_age_seconds"`
	Fallback        bool                    `json:"fallback,omitempty"`
	TotalMS         float64                 `json:"total_ms"`
	Phases          Phases                  `json:"phases"`
	QueryBreakdown  map[string]source.Stats `json:"query_breakdown,omitempty"`
}

// payload is the cached representation of one computed response.
type payload struct {
	Alerts    []model.Alert           `json:"alerts"`
	Breakdown map[string]source.Stats `json:"breakdown,omitempty"`
	Fallback  bool                    `json:"fallback,omitempty"`
}

type Config struct {
	TTLRecent      time.Duration // TTL for ranges touching recent data
	TTLHistorical  time.Duration // TTL for ranges that no longer change
	RecentLookback time.Duration // how far back "recent" reaches
	DefaultLimit   int
	MaxLimit       int
}

type Service struct {
	logger *slog.Logger
	store  cache.Store
	engine *query.Engine
	fb     *fallback.Provider
	cfg    Config

	// memoizes /alerts/recent payloads per (limit, hours)
	recent *expirable.LRU[string, []byte]

	nowFunc func() time.Time
}

func New(logger *slog.Logger, store cache.Store, engine *query.Engine, fb *fallback.Provider, cfg Config) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TTLRecent <= 0 {
		cfg.TTLRecent = time.Hour
	}
	if cfg.TTLHistorical <= 0 {
		cfg.TTLHistorical = 24 * time.Hour
	}
	if cfg.RecentLookback <= 0 {
		cfg.RecentLookback = 7 * 24 * time.Hour
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 500
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 50000
	}
	return &Service{
		logger:  logger,
		store:   store,
		engine:  engine,
		fb:      fb,
		cfg:     cfg,
		recent:  expirable.NewLRU[string, []byte](64, nil, 30*time.Second),
		nowFunc: time.Now,
	}
}

// Serve handles one viewport request end to end.
func (s *Service) Serve(ctx context.Context, vp model.Viewport, dates model.DateRange, limit int) ([]model.Alert, Performance, error) {
	start := time.Now()

	vp = vp.Normalize()
	if !vp.Valid() {
		return nil, Performance{}, ErrInvalidViewport
	}
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}
	if limit > s.cfg.MaxLimit {
		limit = s.cfg.MaxLimit
	}

	key := keys.Resolve(vp, dates)
	ks := key.Encode()
	perf := Performance{CacheKey: ks}

	lookupStart := time.Now()
	raw, age, found, err := s.store.Get(ks)
	perf.Phases.CacheLookupMS = msSince(lookupStart)
	if err != nil {
		// a broken cache degrades to the fetch path
		s.logger.Warn("cache get failed", "key", ks, "err", err)
		found = false
	}
	if found {
		var p payload
		if err := json.Unmarshal(raw, &p); err == nil {
			observability.IncCacheHit()
			perf.CacheHit = true
			perf.CacheAgeSeconds = age.Seconds()
			perf.Fallback = p.Fallback
			perf.QueryBreakdown = p.Breakdown
			perf.TotalMS = msSince(start)
			return p.Alerts, perf, nil
		}
		s.logger.Warn("cache payload corrupt, refetching", "key", ks)
	}
	observability.IncCacheMiss()

	var p payload
	if key.Metro {
		queryStart := time.Now()
		alerts, breakdown := s.fb.Fetch(ctx, dates)
		perf.Phases.QueryMS = msSince(queryStart)
		p = payload{Alerts: alerts, Breakdown: breakdown, Fallback: true}
	} else {
		queryStart := time.Now()
		res := s.engine.Query(ctx, vp, dates, limit)
		perf.Phases.QueryMS = msSince(queryStart)

		dedupStart := time.Now()
		alerts := dedup.Collapse(res.Alerts)
		perf.Phases.DedupMS = msSince(dedupStart)

		sortStart := time.Now()
		rank.Sort(alerts)
		perf.Phases.SortMS = msSince(sortStart)

		p = payload{Alerts: alerts, Breakdown: res.Breakdown}
	}
	if p.Alerts == nil {
		p.Alerts = []model.Alert{}
	}

	writeStart := time.Now()
	raw, err = json.Marshal(p)
	if err != nil {
		return nil, Performance{}, fmt.Errorf("marshal payload: %w", err)
	}
	if err := s.store.Set(ks, raw, s.ttlFor(key, dates)); err != nil {
		// the response is still valid, only the next request pays again
		s.logger.Warn("cache set failed", "key", ks, "err", err)
	}
	if removed, err := s.store.Sweep(); err == nil {
		observability.AddSweepRemoved(removed)
	}
	perf.Phases.CacheWriteMS = msSince(writeStart)

	perf.Fallback = p.Fallback
	perf.QueryBreakdown = p.Breakdown
	perf.TotalMS = msSince(start)
	return p.Alerts, perf, nil
}

// ttlFor picks the write TTL: ranges starting inside the lookback
// window still receive new records and expire fast; historical ranges
// do not change and can live a day. The metro fallback payload is
// severity-filtered live data, so it always takes the short TTL.
func (s *Service) ttlFor(key keys.Key, dates model.DateRange) time.Duration {
	if key.Metro {
		return s.cfg.TTLRecent
	}
	if s.nowFunc().Sub(dates.Start) <= s.cfg.RecentLookback {
		return s.cfg.TTLRecent
	}
	return s.cfg.TTLHistorical
}

// RecentAlert carries only the fields a map redraw needs.
type RecentAlert struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Source    model.Source   `json:"source"`
	Priority  model.Priority `json:"priority"`
	Severity  int            `json:"severity"`
	Timestamp time.Time      `json:"timestamp"`
	Lat       float64        `json:"lat"`
	Lng       float64        `json:"lng"`
	Category  model.Category `json:"category"`
}

// Recent returns the latest alerts across the whole service area,
// time-window only, no spatial filter.
func (s *Service) Recent(ctx context.Context, limit, hours int) ([]RecentAlert, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > s.cfg.MaxLimit {
		limit = s.cfg.MaxLimit
	}
	if hours <= 0 {
		hours = 24
	}

	ck := fmt.Sprintf("l=%d:h=%d", limit, hours)
	if raw, ok := s.recent.Get(ck); ok {
		var out []RecentAlert
		if err := json.Unmarshal(raw, &out); err == nil {
			return out, nil
		}
	}

	now := s.nowFunc()
	res := s.engine.QueryWindow(ctx, now.Add(-time.Duration(hours)*time.Hour), now, limit)
	alerts := dedup.Collapse(res.Alerts)
	rank.Sort(alerts)
	if len(alerts) > limit {
		alerts = alerts[:limit]
	}

	out := make([]RecentAlert, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, RecentAlert{
			ID:        a.ID,
			Title:     a.Title,
			Source:    a.Source,
			Priority:  a.Priority,
			Severity:  a.Severity,
			Timestamp: a.Timestamp,
			Lat:       a.Lat,
			Lng:       a.Lng,
			Category:  a.Category,
		})
	}
	if raw, err := json.Marshal(out); err == nil {
		s.recent.Add(ck, raw)
	}
	return out, nil
}

// ClearCache drops every cache entry and reports how many were removed.
func (s *Service) ClearCache() (int, error) {
	s.recent.Purge()
	n, err := s.store.Purge()
	if err != nil {
		return 0, fmt.Errorf("purge cache: %w", err)
	}
	s.logger.Info("cache cleared", "entries", n)
	return n, nil
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}
