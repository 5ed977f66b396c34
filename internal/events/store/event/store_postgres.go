package event

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"crvs/internal/events/models"
	id "crvs/pkg/domain"
	dErrors "crvs/pkg/domain-errors"
	"crvs/pkg/platform/sentinel"
	txcontext "crvs/pkg/platform/tx"
)

const uniqueViolation = "23505"

// PostgresStore persists events in the events and event_actions tables.
// RunInTx takes a transaction-scoped advisory lock on the event id so appends
// to one event are serialised across instances.
type PostgresStore struct {
	db      *sql.DB
	timeout time.Duration
}

type PostgresOption func(*PostgresStore)

func WithPostgresTxTimeout(d time.Duration) PostgresOption {
	return func(s *PostgresStore) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func NewPostgres(db *sql.DB, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{db: db, timeout: DefaultTxTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// RunInTx begins a transaction, locks eventID and runs fn with the
// transaction in ctx. Stores sharing the connection (the audit outbox) join
// the same transaction through ctx.
func (s *PostgresStore) RunInTx(ctx context.Context, eventID id.EventID, fn func(txCtx context.Context) error) error {
	if tx, ok := txcontext.From(ctx); ok {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, eventID.String()); err != nil {
			return fmt.Errorf("lock event: %w", err)
		}
		return fn(ctx)
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		if ctx.Err() != nil {
			return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
		}
		return fmt.Errorf("begin event transaction: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, eventID.String()); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("lock event: %w", err)
	}
	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, e *models.Event) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO events (id, type, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
	`, uuid.UUID(e.ID), e.Type, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert event: %w", err)
	}
	for i, a := range e.Actions {
		if err := s.insertAction(ctx, e.ID, int64(i+1), a); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, eventID id.EventID) (*models.Event, error) {
	e := &models.Event{ID: eventID}
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT type, created_at, updated_at FROM events WHERE id = $1
	`, uuid.UUID(eventID)).Scan(&e.Type, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	e.CreatedAt, e.UpdatedAt = e.CreatedAt.UTC(), e.UpdatedAt.UTC()

	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT `+actionColumns+`
		FROM event_actions
		WHERE event_id = $1
		ORDER BY seq
	`, uuid.UUID(eventID))
	if err != nil {
		return nil, fmt.Errorf("query event actions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		_, a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		e.Actions = append(e.Actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event actions: %w", err)
	}
	return e, nil
}

// Append inserts a at the next sequence number. Unique index violations
// (transaction id, resolution, correction decision) map to
// sentinel.ErrAlreadyUsed.
func (s *PostgresStore) Append(ctx context.Context, eventID id.EventID, a models.Action) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE events SET updated_at = GREATEST(updated_at, $2) WHERE id = $1
	`, uuid.UUID(eventID), a.CreatedAt)
	if err != nil {
		return fmt.Errorf("touch event: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("touch event rows affected: %w", err)
	} else if n == 0 {
		return sentinel.ErrNotFound
	}

	var seq int64
	if err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) + 1 FROM event_actions WHERE event_id = $1
	`, uuid.UUID(eventID)).Scan(&seq); err != nil {
		return fmt.Errorf("next action seq: %w", err)
	}
	return s.insertAction(ctx, eventID, seq, a)
}

// List returns events in creation order; an empty eventType lists all.
func (s *PostgresStore) List(ctx context.Context, eventType string) ([]*models.Event, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT e.id, e.type, e.created_at, e.updated_at, `+prefixedActionColumns+`
		FROM events e
		JOIN event_actions a ON a.event_id = e.id
		WHERE $1 = '' OR e.type = $1
		ORDER BY e.created_at, e.id, a.seq
	`, eventType)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var (
		out     []*models.Event
		current *models.Event
	)
	for rows.Next() {
		var (
			eventUUID uuid.UUID
			header    models.Event
		)
		dest := []any{&eventUUID, &header.Type, &header.CreatedAt, &header.UpdatedAt}
		_, a, err := scanActionInto(rows, dest)
		if err != nil {
			return nil, err
		}
		if current == nil || uuid.UUID(current.ID) != eventUUID {
			header.ID = id.EventID(eventUUID)
			header.CreatedAt, header.UpdatedAt = header.CreatedAt.UTC(), header.UpdatedAt.UTC()
			current = &header
			out = append(out, current)
		}
		current.Actions = append(current.Actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

const actionColumns = `seq, id, type, status, transaction_id, created_by, created_by_role,
		created_at_location, created_at, declaration, annotation, custom_action_type,
		request_id, assigned_to, reason`

const prefixedActionColumns = `a.seq, a.id, a.type, a.status, a.transaction_id, a.created_by,
		a.created_by_role, a.created_at_location, a.created_at, a.declaration, a.annotation,
		a.custom_action_type, a.request_id, a.assigned_to, a.reason`

func (s *PostgresStore) insertAction(ctx context.Context, eventID id.EventID, seq int64, a models.Action) error {
	declaration, err := marshalPayload(a.Declaration)
	if err != nil {
		return fmt.Errorf("marshal declaration: %w", err)
	}
	annotation, err := marshalPayload(a.Annotation)
	if err != nil {
		return fmt.Errorf("marshal annotation: %w", err)
	}
	var requestID *uuid.UUID
	if !a.RequestID.IsNil() {
		rid := uuid.UUID(a.RequestID)
		requestID = &rid
	}

	_, err = s.execer(ctx).ExecContext(ctx, `
		INSERT INTO event_actions (
			id, event_id, seq, type, status, transaction_id, created_by, created_by_role,
			created_at_location, created_at, declaration, annotation, custom_action_type,
			request_id, assigned_to, reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		uuid.UUID(a.ID), uuid.UUID(eventID), seq, string(a.Type), string(a.Status), a.TransactionID,
		a.CreatedBy.String(), a.CreatedByRole, a.CreatedAtLocation, a.CreatedAt,
		declaration, annotation, a.CustomActionType, requestID, a.AssignedTo.String(), a.Reason,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert action: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAction(row rowScanner) (int64, models.Action, error) {
	return scanActionInto(row, nil)
}

// scanActionInto scans leading columns into prefix followed by the action
// columns.
func scanActionInto(row rowScanner, prefix []any) (int64, models.Action, error) {
	var (
		seq                     int64
		a                       models.Action
		actionID                uuid.UUID
		actionType, status      string
		createdBy, assignedTo   string
		declaration, annotation []byte
		requestID               uuid.NullUUID
	)
	dest := append(prefix,
		&seq, &actionID, &actionType, &status, &a.TransactionID, &createdBy, &a.CreatedByRole,
		&a.CreatedAtLocation, &a.CreatedAt, &declaration, &annotation, &a.CustomActionType,
		&requestID, &assignedTo, &a.Reason,
	)
	if err := row.Scan(dest...); err != nil {
		return 0, models.Action{}, fmt.Errorf("scan action: %w", err)
	}
	a.ID = id.ActionID(actionID)
	a.Type = models.ActionType(actionType)
	a.Status = models.ActionStatus(status)
	a.CreatedBy = id.UserID(createdBy)
	a.AssignedTo = id.UserID(assignedTo)
	a.CreatedAt = a.CreatedAt.UTC()
	if requestID.Valid {
		a.RequestID = id.ActionID(requestID.UUID)
	}
	if err := unmarshalPayload(declaration, &a.Declaration); err != nil {
		return 0, models.Action{}, fmt.Errorf("decode declaration: %w", err)
	}
	if err := unmarshalPayload(annotation, &a.Annotation); err != nil {
		return 0, models.Action{}, fmt.Errorf("decode annotation: %w", err)
	}
	return seq, a, nil
}

func marshalPayload(m map[string]any) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return json.Marshal(m)
}

func unmarshalPayload(raw []byte, dst *map[string]any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
