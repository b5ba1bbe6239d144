// Package query runs the dual-source spatial fan-out.
package query

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/citypulse/viewport-alert-cache/internal/model"
	"github.com/citypulse/viewport-alert-cache/internal/observability"
	"github.com/citypulse/viewport-alert-cache/internal/source"
)

// Engine splits a result limit across the events and requests
// collections, queries both concurrently by time range, and filters to
// the viewport in-process. The backing stores index time well and space
// not at all, which is why each side over-fetches.
type Engine struct {
	logger   *slog.Logger
	events   source.Source
	requests source.Source

	eventShare float64       // fraction of the limit sent to events
	overFetch  int           // fetch multiplier per source
	timeout    time.Duration // per-source query budget
}

type Option func(*Engine)

func WithEventShare(f float64) Option {
	return func(e *Engine) {
		if f > 0 && f < 1 {
			e.eventShare = f
		}
	}
}

func WithOverFetch(n int) Option {
	return func(e *Engine) {
		if n >= 1 {
			e.overFetch = n
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

func New(logger *slog.Logger, events, requests source.Source, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		logger:     logger,
		events:     events,
		requests:   requests,
		eventShare: 0.3,
		overFetch:  2,
		timeout:    30 * time.Second,
	}
	for _, f := range opts {
		f(e)
	}
	return e
}

// Result is the merged outcome of one fan-out.
type Result struct {
	Alerts []model.Alert
	// Breakdown always has an entry per source; Error is set on the
	// failed side while the other side's alerts are still served.
	Breakdown map[string]source.Stats
}

type sideResult struct {
	name    string
	records []source.Record
	stats   source.Stats
}

// Query fans out to both sources concurrently. End-to-end latency is
// bounded by the slower side, not the sum, and each side is cancelled
// independently if the inbound request goes away.
func (e *Engine) Query(ctx context.Context, vp model.Viewport, dates model.DateRange, limit int) Result {
	vp = vp.Normalize()
	from, to := dates.Window()

	eventLimit, requestLimit := e.splitLimit(limit)
	sides := e.fanOut(ctx, from, to, eventLimit, requestLimit)

	res := Result{Breakdown: make(map[string]source.Stats, 2)}
	for _, s := range []struct {
		name  string
		limit int
	}{
		{e.events.Name(), eventLimit},
		{e.requests.Name(), requestLimit},
	} {
		side := sides[s.name]
		kept := filterViewport(side.records, vp, s.limit)
		side.stats.Kept = len(kept)
		res.Alerts = append(res.Alerts, kept...)
		res.Breakdown[s.name] = side.stats
	}
	// the per-side minimums can overshoot tiny limits
	if len(res.Alerts) > limit {
		res.Alerts = res.Alerts[:limit]
	}
	return res
}

// QueryWindow fetches by time range only, skipping the spatial filter.
// Used by the recent-alerts path for fast map redraws.
func (e *Engine) QueryWindow(ctx context.Context, from, to time.Time, limit int) Result {
	eventLimit, requestLimit := e.splitLimit(limit)
	sides := e.fanOut(ctx, from, to, eventLimit, requestLimit)

	res := Result{Breakdown: make(map[string]source.Stats, 2)}
	for _, s := range []struct {
		name  string
		limit int
	}{
		{e.events.Name(), eventLimit},
		{e.requests.Name(), requestLimit},
	} {
		side := sides[s.name]
		// sources over-fetch; cap each side at its share like the
		// viewport path does
		records := side.records
		if len(records) > s.limit {
			records = records[:s.limit]
		}
		for _, rec := range records {
			res.Alerts = append(res.Alerts, rec.Alert)
		}
		side.stats.Kept = len(records)
		res.Breakdown[s.name] = side.stats
	}
	if len(res.Alerts) > limit {
		res.Alerts = res.Alerts[:limit]
	}
	return res
}

func (e *Engine) splitLimit(limit int) (eventLimit, requestLimit int) {
	eventLimit = int(math.Ceil(float64(limit) * e.eventShare))
	if eventLimit < 1 {
		eventLimit = 1
	}
	requestLimit = limit - eventLimit
	if requestLimit < 1 {
		requestLimit = 1
	}
	return eventLimit, requestLimit
}

func (e *Engine) fanOut(ctx context.Context, from, to time.Time, eventLimit, requestLimit int) map[string]sideResult {
	ch := make(chan sideResult, 2)
	go e.fetchSide(ctx, e.events, from, to, eventLimit, ch)
	go e.fetchSide(ctx, e.requests, from, to, requestLimit, ch)

	sides := make(map[string]sideResult, 2)
	for range 2 {
		r := <-ch
		sides[r.name] = r
	}
	return sides
}

func (e *Engine) fetchSide(ctx context.Context, src source.Source, from, to time.Time, limit int, ch chan<- sideResult) {
	sctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	records, err := src.Fetch(sctx, from, to, limit*e.overFetch)
	dur := time.Since(start)
	observability.ObserveSourceQuery(src.Name(), err, dur.Seconds())

	stats := source.Stats{Fetched: len(records), DurationMS: float64(dur.Microseconds()) / 1000}
	if err != nil {
		// one side failing must not abort the other; serve what we have
		stats.Error = err.Error()
		e.logger.Warn("source query failed", "source", src.Name(), "err", err)
		records = nil
		stats.Fetched = 0
	}
	ch <- sideResult{name: src.Name(), records: records, stats: stats}
}

// filterViewport keeps located records inside the viewport, stopping
// once the per-source limit is reached.
func filterViewport(records []source.Record, vp model.Viewport, limit int) []model.Alert {
	out := make([]model.Alert, 0, limit)
	for _, rec := range records {
		if !rec.Located {
			continue
		}
		if !vp.Contains(rec.Alert.Lat, rec.Alert.Lng) {
			continue
		}
		out = append(out, rec.Alert)
		if len(out) >= limit {
			break
		}
	}
	return out
}
