// Package mongostore adapts the two MongoDB collections to the source
// interface.
package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/citypulse/viewport-alert-cache/internal/model"
	"github.com/citypulse/viewport-alert-cache/internal/source"
)

// Connect dials the cluster and verifies it with a ping.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	cli, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := cli.Ping(ctx, nil); err != nil {
		_ = cli.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return cli, nil
}

// EventSource serves the incidents collection.
type EventSource struct {
	coll *mongo.Collection
}

func NewEventSource(coll *mongo.Collection) *EventSource {
	return &EventSource{coll: coll}
}

func (s *EventSource) Name() string { return "events" }

func (s *EventSource) Fetch(ctx context.Context, from, to time.Time, limit int) ([]source.Record, error) {
	filter := bson.M{"timestamp": bson.M{"$gte": from, "$lt": to}}
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(limit))

	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("events find: %w", err)
	}
	defer func() { _ = cur.Close(ctx) }()

	out := make([]source.Record, 0, limit)
	for cur.Next(ctx) {
		var e model.EventRecord
		if err := cur.Decode(&e); err != nil {
			// a single malformed document must not sink the batch
			continue
		}
		_, _, located := e.Coordinates()
		out = append(out, source.Record{Alert: model.AlertFromEvent(e), Located: located})
	}
	if err := cur.Err(); err != nil {
		return out, fmt.Errorf("events cursor: %w", err)
	}
	return out, nil
}

// RequestSource serves the civic service-requests collection.
type RequestSource struct {
	coll *mongo.Collection
}

func NewRequestSource(coll *mongo.Collection) *RequestSource {
	return &RequestSource{coll: coll}
}

func (s *RequestSource) Name() string { return "requests" }

func (s *RequestSource) Fetch(ctx context.Context, from, to time.Time, limit int) ([]source.Record, error) {
	filter := bson.M{"created_date": bson.M{"$gte": from, "$lt": to}}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_date", Value: -1}}).
		SetLimit(int64(limit))

	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("requests find: %w", err)
	}
	defer func() { _ = cur.Close(ctx) }()

	out := make([]source.Record, 0, limit)
	for cur.Next(ctx) {
		var r model.RequestRecord
		if err := cur.Decode(&r); err != nil {
			continue
		}
		if r.UniqueKey == "" {
			// unique_key is the identity; a record without one is junk
			continue
		}
		_, _, located := r.Coordinates()
		out = append(out, source.Record{Alert: model.AlertFromRequest(r), Located: located})
	}
	if err := cur.Err(); err != nil {
		return out, fmt.Errorf("requests cursor: %w", err)
	}
	return out, nil
}
