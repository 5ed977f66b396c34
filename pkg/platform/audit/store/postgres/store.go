package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "crvs/pkg/domain"
	audit "crvs/pkg/platform/audit"
	txcontext "crvs/pkg/platform/tx"
)

// Store implements audit.Store using the transactional outbox pattern.
// Events are written to the outbox table in the caller's transaction and
// published to Kafka by the outbox relay.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new PostgreSQL audit store that writes to the outbox.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Payload is the JSON document published to Kafka.
type Payload struct {
	ID            string `json:"id"`
	Category      string `json:"category"`
	Timestamp     string `json:"timestamp"`
	Action        string `json:"action"`
	ActorID       string `json:"actorId,omitempty"`
	ActorRole     string `json:"actorRole,omitempty"`
	EventID       string `json:"eventId"`
	EventType     string `json:"eventType,omitempty"`
	ActionID      string `json:"actionId,omitempty"`
	ActionType    string `json:"actionType,omitempty"`
	ActionStatus  string `json:"actionStatus,omitempty"`
	TransactionID string `json:"transactionId,omitempty"`
	RequestID     string `json:"requestId,omitempty"`
}

// Append writes an audit event to the outbox table for Kafka publishing.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	entryID := uuid.New()
	category := audit.AuditEvent(event.Action).Category()

	payload := Payload{
		ID:            entryID.String(),
		Category:      string(category),
		Timestamp:     event.Timestamp.UTC().Format(time.RFC3339Nano),
		Action:        event.Action,
		ActorID:       event.ActorID.String(),
		ActorRole:     event.ActorRole,
		EventID:       event.EventID.String(),
		EventType:     event.EventType,
		ActionType:    event.ActionType,
		ActionStatus:  event.ActionStatus,
		TransactionID: event.TransactionID,
		RequestID:     event.RequestID,
	}
	if !event.ActionID.IsNil() {
		payload.ActionID = event.ActionID.String()
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	query := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		entryID,
		"event",
		event.EventID.String(),
		event.Action,
		payloadBytes,
		s.now(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// ListByEvent returns the outbox history of one registration record.
func (s *Store) ListByEvent(ctx context.Context, eventID id.EventID) ([]audit.Event, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT payload FROM outbox
		WHERE aggregate_type = 'event' AND aggregate_id = $1
		ORDER BY created_at, id
	`, eventID.String())
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan outbox payload: %w", err)
		}
		ev, err := decodePayload(raw)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return events, nil
}

func decodePayload(raw []byte) (audit.Event, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return audit.Event{}, fmt.Errorf("decode outbox payload: %w", err)
	}
	ev := audit.Event{
		ID:            p.ID,
		Category:      audit.EventCategory(p.Category),
		Action:        p.Action,
		ActorID:       id.UserID(p.ActorID),
		ActorRole:     p.ActorRole,
		EventType:     p.EventType,
		ActionType:    p.ActionType,
		ActionStatus:  p.ActionStatus,
		TransactionID: p.TransactionID,
		RequestID:     p.RequestID,
	}
	if ts, err := time.Parse(time.RFC3339Nano, p.Timestamp); err == nil {
		ev.Timestamp = ts
	}
	if eid, err := id.ParseEventID(p.EventID); err == nil {
		ev.EventID = eid
	}
	if p.ActionID != "" {
		if aid, err := id.ParseActionID(p.ActionID); err == nil {
			ev.ActionID = aid
		}
	}
	return ev, nil
}

// Entry is an outbox row awaiting publication.
type Entry struct {
	ID          uuid.UUID
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

// FetchUnpublished locks up to limit unpublished rows for the calling
// transaction. Concurrent relays skip locked rows.
func (s *Store) FetchUnpublished(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT id, aggregate_id, event_type, payload, created_at
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at, id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query unpublished outbox: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return entries, nil
}

// MarkPublished stamps the given rows as delivered.
func (s *Store) MarkPublished(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	raw := make([]string, len(ids))
	for i, entryID := range ids {
		raw[i] = entryID.String()
	}
	_, err := s.execer(ctx).ExecContext(ctx,
		`UPDATE outbox SET published_at = $1 WHERE id = ANY($2::uuid[])`,
		s.now(), pq.Array(raw),
	)
	if err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}

// RunInTx runs fn with a transaction carried in ctx.
func (s *Store) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin outbox transaction: %w", err)
	}
	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit outbox transaction: %w", err)
	}
	return nil
}
