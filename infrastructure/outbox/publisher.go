// Package outbox is the transactional outbox relay for the durable
// Postgres event store: a ticker-poll-mark worker that polls
// eventstore/pg's outbox table for unpublished rows and republishes
// them onto the configured eventbus.Bus interface, so the same
// Publisher works against rabbitbus in production or membus in a
// single-process demo.
//
// This only matters for writers that route through the outbox table
// instead of publishing directly; the domain reducers in this module
// publish inline via effect.Publish immediately after a successful
// append (package domain/order et al.), so in the reference wiring this
// Publisher exists to demonstrate the pattern and to relay any event a
// future writer inserts into the table without also calling Bus.Publish
// itself.
package outbox

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/rakhimjonshokirov/eventkit/eventbus"
	"github.com/rakhimjonshokirov/eventkit/eventstore"
)

// Publisher polls the outbox table and republishes unpublished rows.
type Publisher struct {
	db       *sql.DB
	bus      eventbus.Bus
	interval time.Duration
	log      *zap.Logger
}

// New builds a Publisher polling every interval (100ms if zero).
func New(db *sql.DB, bus eventbus.Bus, interval time.Duration, log *zap.Logger) *Publisher {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{db: db, bus: bus, interval: interval, log: log}
}

// Start runs the poll loop until ctx is cancelled.
func (p *Publisher) Start(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.log.Info("outbox publisher started")

	for {
		select {
		case <-ticker.C:
			if err := p.publishPending(ctx); err != nil {
				p.log.Error("outbox publisher: publish pending", zap.Error(err))
			}
		case <-ctx.Done():
			p.log.Info("outbox publisher stopped")
			return nil
		}
	}
}

func (p *Publisher) publishPending(ctx context.Context) error {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, aggregate_id, event_type, event_data
		  FROM outbox
		 WHERE published = false
		 ORDER BY created_at ASC
		 LIMIT 100
	`)
	if err != nil {
		return eventstore.BackendUnavailable("query pending outbox rows", err)
	}
	defer rows.Close()

	var publishedIDs []int64
	for rows.Next() {
		var (
			id          int64
			aggregateID string
			eventType   string
			data        []byte
		)
		if err := rows.Scan(&id, &aggregateID, &eventType, &data); err != nil {
			p.log.Warn("outbox publisher: scan row", zap.Error(err))
			continue
		}

		topic := eventbus.EventsTopic(aggregatePrefix(aggregateID))
		if err := p.bus.Publish(ctx, topic, eventstore.SerializedEvent{EventType: eventType, Data: data}); err != nil {
			p.log.Warn("outbox publisher: publish", zap.String("aggregate_id", aggregateID), zap.Error(err))
			continue
		}
		publishedIDs = append(publishedIDs, id)
	}
	if err := rows.Err(); err != nil {
		return eventstore.BackendUnavailable("iterate outbox rows", err)
	}

	if len(publishedIDs) == 0 {
		return nil
	}
	if _, err := p.db.ExecContext(ctx,
		`UPDATE outbox SET published = true, published_at = NOW() WHERE id = ANY($1)`,
		pq.Array(publishedIDs),
	); err != nil {
		return eventstore.BackendUnavailable("mark outbox rows published", err)
	}
	p.log.Debug("published outbox events", zap.Int("count", len(publishedIDs)))
	return nil
}

// aggregatePrefix strips the "-<id>" suffix off a stream id
// ("order-ord-42" -> "order"), the convention every domain package's
// StreamID follows, so the republished event lands on the same
// topic the aggregate's own direct-publish path would have used.
func aggregatePrefix(streamID string) string {
	for i := 0; i < len(streamID); i++ {
		if streamID[i] == '-' {
			return streamID[:i]
		}
	}
	return streamID
}
