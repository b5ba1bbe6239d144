// Package kafkaconsumer purges the alert cache when ingestion
// pipelines announce new records, so fresh incidents can appear before
// a TTL would have expired them.
package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/citypulse/viewport-alert-cache/internal/cache"
	"github.com/citypulse/viewport-alert-cache/internal/invalidation"
	"github.com/citypulse/viewport-alert-cache/internal/observability"
)

type Config struct {
	Brokers             []string
	Topic               string
	GroupID             string
	MinInterval         time.Duration
	SessionTimeout      time.Duration
	Heartbeat           time.Duration
	InitialOffsetOldest bool
}

func (c *Config) applyDefaults() {
	if c.MinInterval <= 0 {
		c.MinInterval = 30 * time.Second
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = 10 * time.Second
	}
	if c.Heartbeat <= 0 {
		c.Heartbeat = 3 * time.Second
	}
}

type Consumer struct {
	cfg    Config
	logger *slog.Logger
	store  cache.Store
	seen   *lru.Cache[string, struct{}]

	mu        sync.Mutex
	lastPurge time.Time
}

func New(cfg Config, logger *slog.Logger, store cache.Store) (*Consumer, error) {
	if store == nil {
		return nil, errors.New("kafkaconsumer: cache store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	// redelivered events must not re-purge; the window is small because
	// the interval throttle already absorbs bursts
	seen, err := lru.New[string, struct{}](4096)
	if err != nil {
		return nil, fmt.Errorf("kafkaconsumer: seen lru: %w", err)
	}
	return &Consumer{cfg: cfg, logger: logger, store: store, seen: seen}, nil
}

// Start consumes until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	handler := &groupHandler{process: c.ProcessOne}

	c.logger.Info("invalidation consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("invalidation consumer shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
				c.logger.Error("consumer error", "err", err)
				time.Sleep(2 * time.Second)
			}
		}
	}
}

// ProcessOne handles a single ingest event.
func (c *Consumer) ProcessOne(_ context.Context, msg *sarama.ConsumerMessage) error {
	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		observability.ObserveInvalidation("decode_error")
		return fmt.Errorf("json decode: %w", err)
	}

	if ev.ID != "" {
		if _, dup := c.seen.Get(ev.ID); dup {
			observability.ObserveInvalidation("duplicate")
			return nil
		}
	}

	if !c.takePurgeSlot() {
		c.markSeen(ev.ID)
		observability.ObserveInvalidation("throttled")
		c.logger.Debug("invalidation throttled", "source", ev.Source, "borough", ev.Borough)
		return nil
	}

	n, err := c.store.Purge()
	if err != nil {
		// not marked seen and the slot is released, so a Kafka
		// redelivery of this event retries the purge
		c.releasePurgeSlot()
		observability.ObserveInvalidation("purge_error")
		return fmt.Errorf("cache purge: %w", err)
	}
	c.markSeen(ev.ID)
	observability.ObserveInvalidation("purged")
	c.logger.Info("cache purged on ingest event",
		"source", ev.Source, "borough", ev.Borough, "records", ev.Count, "entries", n)
	return nil
}

func (c *Consumer) markSeen(id string) {
	if id != "" {
		c.seen.Add(id, struct{}{})
	}
}

// takePurgeSlot enforces at most one purge per MinInterval.
func (c *Consumer) takePurgeSlot() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	if now.Sub(c.lastPurge) < c.cfg.MinInterval {
		return false
	}
	c.lastPurge = now
	return true
}

// releasePurgeSlot undoes takePurgeSlot after a failed purge.
func (c *Consumer) releasePurgeSlot() {
	c.mu.Lock()
	c.lastPurge = time.Time{}
	c.mu.Unlock()
}
