// Package invalidation defines the ingest-side event that triggers a
// cache purge.
package invalidation

import "time"

// Event is published by the ingestion pipelines whenever they write a
// batch of new records. The cache cannot map a single record onto the
// set of viewport keys that would show it, so the consumer reacts by
// purging, throttled to a minimum interval.
type Event struct {
	ID      string    `json:"id"`
	Source  string    `json:"source"`
	Borough string    `json:"borough,omitempty"`
	Count   int       `json:"count,omitempty"`
	TS      time.Time `json:"ts"`
}
