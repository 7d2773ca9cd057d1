// Package pg is the durable EventStore implementation,
// backed by PostgreSQL via database/sql + github.com/lib/pq. Append reads
// the stream's current version, compares it with the expected version,
// then INSERTs; a duplicate-key error from the unique(stream_id, version)
// constraint is also translated into KindConcurrencyConflict.
package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/rakhimjonshokirov/eventkit/eventstore"
)

// Schema defines the durable store's tables: events are append-only with
// a unique(stream_id, version) constraint and secondary indexes on
// created_at and event_type for audit queries; snapshots are upserted by
// stream_id.
const Schema = `
CREATE TABLE IF NOT EXISTS events (
	id SERIAL PRIMARY KEY,
	stream_id TEXT NOT NULL,
	version BIGINT NOT NULL,
	event_type TEXT NOT NULL,
	event_data BYTEA NOT NULL,
	metadata JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (stream_id, version)
);
CREATE INDEX IF NOT EXISTS events_created_at_idx ON events (created_at);
CREATE INDEX IF NOT EXISTS events_event_type_idx ON events (event_type);

CREATE TABLE IF NOT EXISTS snapshots (
	stream_id TEXT PRIMARY KEY,
	version BIGINT NOT NULL,
	state_data BYTEA NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS outbox (
	id BIGSERIAL PRIMARY KEY,
	event_id TEXT NOT NULL,
	aggregate_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	event_data BYTEA NOT NULL,
	published BOOLEAN NOT NULL DEFAULT false,
	published_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS outbox_unpublished_idx ON outbox (created_at) WHERE NOT published;
`

// Config carries the durable event store's connection pool tuning knobs.
type Config struct {
	ConnectionString string `env:"DATABASE_URL,required"`
	MaxConnections   int    `env:"EVENTSTORE_MAX_CONNECTIONS,default=10"`
	MinConnections   int    `env:"EVENTSTORE_MIN_CONNECTIONS,default=1"`
	MaxLifetime      int    `env:"EVENTSTORE_MAX_LIFETIME_SECONDS,default=3600"`
	IdleTimeout      int    `env:"EVENTSTORE_IDLE_TIMEOUT_SECONDS,default=300"`
}

// Store is the durable EventStore.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

var _ eventstore.EventStore = (*Store)(nil)

// New wraps an already-opened *sql.DB; callers are expected to dial with
// sql.Open("postgres", ...) and their own ping-retry loop before handing
// the live connection in here.
func New(db *sql.DB, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: db, log: log}
}

func (s *Store) AppendEvents(ctx context.Context, stream eventstore.StreamID, expectedVersion *eventstore.Version, events []eventstore.SerializedEvent) (eventstore.Version, error) {
	if len(events) == 0 {
		return 0, eventstore.EmptyEventList(stream)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eventstore.BackendUnavailable("begin transaction", err)
	}
	defer tx.Rollback()

	var tail eventstore.Version
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM events WHERE stream_id = $1`, string(stream),
	).Scan(&tail)
	if err != nil {
		return 0, eventstore.BackendUnavailable("read current tail version", err)
	}

	if expectedVersion != nil && *expectedVersion != tail {
		return 0, eventstore.ConcurrencyConflict(stream, *expectedVersion)
	}

	version := tail
	for _, e := range events {
		version++

		metadata, merr := marshalMetadata(e.Metadata)
		if merr != nil {
			return 0, eventstore.SerializationErr("marshal event metadata", merr)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO events (stream_id, version, event_type, event_data, metadata) VALUES ($1, $2, $3, $4, $5)`,
			string(stream), int64(version), e.EventType, e.Data, metadata,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return 0, eventstore.ConcurrencyConflict(stream, version-1)
			}
			return 0, eventstore.BackendUnavailable("insert event", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eventstore.BackendUnavailable("commit append", err)
	}

	s.log.Debug("appended events",
		zap.String("stream", string(stream)), zap.Int("count", len(events)), zap.Int64("version", int64(version)))
	return version, nil
}

func (s *Store) LoadEvents(ctx context.Context, stream eventstore.StreamID, fromVersion *eventstore.Version) ([]eventstore.StoredEvent, error) {
	from := eventstore.Version(0)
	if fromVersion != nil {
		from = *fromVersion
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT version, event_type, event_data, metadata, created_at
		   FROM events
		  WHERE stream_id = $1 AND version > $2
		  ORDER BY version ASC`,
		string(stream), int64(from),
	)
	if err != nil {
		return nil, eventstore.BackendUnavailable("load events", err)
	}
	defer rows.Close()

	var out []eventstore.StoredEvent
	for rows.Next() {
		var (
			version   int64
			eventType string
			data      []byte
			metadata  []byte
			createdAt time.Time
		)
		if err := rows.Scan(&version, &eventType, &data, &metadata, &createdAt); err != nil {
			return nil, eventstore.BackendUnavailable("scan event row", err)
		}
		out = append(out, eventstore.StoredEvent{
			SerializedEvent: eventstore.SerializedEvent{EventType: eventType, Data: data, Metadata: unmarshalMetadata(metadata)},
			Stream:          stream,
			Version:         eventstore.Version(version),
			CreatedAt:       createdAt,
		})
	}
	return out, rows.Err()
}

func (s *Store) SaveSnapshot(ctx context.Context, stream eventstore.StreamID, version eventstore.Version, state []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (stream_id, version, state_data, created_at) VALUES ($1, $2, $3, now())
		 ON CONFLICT (stream_id) DO UPDATE SET version = EXCLUDED.version, state_data = EXCLUDED.state_data, created_at = EXCLUDED.created_at`,
		string(stream), int64(version), state,
	)
	if err != nil {
		return eventstore.BackendUnavailable("save snapshot", err)
	}
	return nil
}

func (s *Store) LoadSnapshot(ctx context.Context, stream eventstore.StreamID) (eventstore.Snapshot, bool, error) {
	var (
		version int64
		state   []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT version, state_data FROM snapshots WHERE stream_id = $1`, string(stream),
	).Scan(&version, &state)
	if err == sql.ErrNoRows {
		return eventstore.Snapshot{}, false, nil
	}
	if err != nil {
		return eventstore.Snapshot{}, false, eventstore.BackendUnavailable("load snapshot", err)
	}
	return eventstore.Snapshot{Stream: stream, Version: eventstore.Version(version), State: state}, true, nil
}

func marshalMetadata(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func unmarshalMetadata(b []byte) map[string]any {
	if len(b) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}

// isUniqueViolation recognizes PostgreSQL's 23505 (unique_violation) via
// pq.Error's typed Code field, falling back to a substring match for
// drivers that don't surface a typed error.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "duplicate key value violates unique constraint")
}
