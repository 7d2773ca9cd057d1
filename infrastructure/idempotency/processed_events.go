// Package idempotency is the durable counterpart to saga.SeenEvents
// (package saga): that tracker lives inside a saga's in-memory State, so
// it is lost whenever the process restarts.
// ProcessedEvents persists the same "have I applied this event id
// already" fact in Postgres, for callers that need duplicate detection
// to survive a restart.
package idempotency

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/rakhimjonshokirov/eventkit/eventstore"
)

// Schema is the table this package reads and writes.
const Schema = `
CREATE TABLE IF NOT EXISTS processed_events (
	event_id     TEXT PRIMARY KEY,
	aggregate_id TEXT NOT NULL,
	event_type   TEXT NOT NULL,
	processed_by TEXT NOT NULL,
	processed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS processed_events_aggregate_id_idx ON processed_events (aggregate_id);
`

// ProcessedEvents records which event ids a consumer has already applied.
type ProcessedEvents struct {
	db  *sql.DB
	log *zap.Logger
}

func New(db *sql.DB, log *zap.Logger) *ProcessedEvents {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProcessedEvents{db: db, log: log}
}

// IsProcessed reports whether eventID has already been recorded.
func (r *ProcessedEvents) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)`, eventID,
	).Scan(&exists)
	if err != nil {
		return false, eventstore.BackendUnavailable("check processed event", err)
	}
	return exists, nil
}

// MarkAsProcessed records eventID as applied by processedBy. A duplicate
// insert is a no-op, not an
// error.
func (r *ProcessedEvents) MarkAsProcessed(ctx context.Context, eventID, aggregateID, eventType, processedBy string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO processed_events (event_id, aggregate_id, event_type, processed_by, processed_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, aggregateID, eventType, processedBy)
	if err != nil {
		return eventstore.BackendUnavailable("mark event processed", err)
	}
	r.log.Debug("marked event processed", zap.String("event_id", eventID), zap.String("processed_by", processedBy))
	return nil
}

// ProcessedEvent is one audit row returned by ForAggregate.
type ProcessedEvent struct {
	EventID     string
	AggregateID string
	EventType   string
	ProcessedBy string
	ProcessedAt time.Time
}

// ForAggregate returns every processed-event record for aggregateID,
// oldest first, for audit and debugging.
func (r *ProcessedEvents) ForAggregate(ctx context.Context, aggregateID string) ([]ProcessedEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT event_id, aggregate_id, event_type, processed_by, processed_at
		  FROM processed_events
		 WHERE aggregate_id = $1
		 ORDER BY processed_at ASC
	`, aggregateID)
	if err != nil {
		return nil, eventstore.BackendUnavailable("query processed events", err)
	}
	defer rows.Close()

	var events []ProcessedEvent
	for rows.Next() {
		var e ProcessedEvent
		if err := rows.Scan(&e.EventID, &e.AggregateID, &e.EventType, &e.ProcessedBy, &e.ProcessedAt); err != nil {
			return nil, eventstore.BackendUnavailable("scan processed event", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
