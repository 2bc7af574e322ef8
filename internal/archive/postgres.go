// internal/archive/postgres.go
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/tamzrod/modbus-uplink/internal/sample"
	"github.com/tamzrod/modbus-uplink/internal/uplink"
)

const schema = `
CREATE TABLE IF NOT EXISTS uplink_payloads (
	id          UUID PRIMARY KEY,
	node_id     TEXT        NOT NULL,
	message_id  SMALLINT    NOT NULL,
	sent_at     TIMESTAMPTZ NOT NULL,
	payload     BYTEA       NOT NULL
);

CREATE TABLE IF NOT EXISTS device_events (
	id          UUID PRIMARY KEY,
	node_id     TEXT        NOT NULL,
	device_id   SMALLINT    NOT NULL,
	event       TEXT        NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
);`

const (
	eventTimeout = 5 * time.Second
	eventQueue   = 64
)

type deviceEvent struct {
	deviceID uint8
	event    string
	at       time.Time
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Store archives emitted payloads and device evictions in PostgreSQL.
type Store struct {
	db   execer
	node string
	now  func() time.Time
	conn *sql.DB

	events chan deviceEvent
}

// Open connects and pings the database.
func Open(dsn, node string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("archive: open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: ping database: %w", err)
	}

	return newStore(db, node, db), nil
}

func newStore(db execer, node string, conn *sql.DB) *Store {
	return &Store{
		db:     db,
		node:   node,
		now:    time.Now,
		conn:   conn,
		events: make(chan deviceEvent, eventQueue),
	}
}

func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("archive: create schema: %w", err)
	}
	return nil
}

// Send makes the store an uplink sink.
func (s *Store) Send(ctx context.Context, msg uplink.Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO uplink_payloads (id, node_id, message_id, sent_at, payload) VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), s.node, int16(msg.ID), msg.At.UTC(), msg.Payload,
	)
	if err != nil {
		return fmt.Errorf("archive: insert payload %d: %w", msg.ID, err)
	}
	return nil
}

// Run inserts queued device events until ctx ends.
func (s *Store) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.events:
			s.recordEvent(ctx, ev)
		}
	}
}

func (s *Store) recordEvent(ctx context.Context, ev deviceEvent) {
	ctx, cancel := context.WithTimeout(ctx, eventTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO device_events (id, node_id, device_id, event, created_at) VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), s.node, int16(ev.deviceID), ev.event, ev.at.UTC(),
	)
	if err != nil {
		log.Error().Err(err).Uint8("device", ev.deviceID).Str("event", ev.event).Msg("archive: insert device event")
	}
}

// queueEvent hands an event to Run without blocking; a full queue drops it.
func (s *Store) queueEvent(deviceID uint8, event string) {
	ev := deviceEvent{deviceID: deviceID, event: event, at: s.now()}
	select {
	case s.events <- ev:
	default:
		log.Warn().Uint8("device", deviceID).Str("event", event).Msg("archive: event queue full, dropped")
	}
}

// ---- scheduler.Observer ----

func (s *Store) SampleOK(sample.Decoded)                {}
func (s *Store) SampleFailed(uint8, uint8, error, int) {}

func (s *Store) DeviceEvicted(deviceID uint8) {
	s.queueEvent(deviceID, "evicted")
}
