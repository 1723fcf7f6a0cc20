package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	nerr "github.com/next-trace/scg-planning-notify/contract/errors"
	"github.com/next-trace/scg-planning-notify/contract/notify"

	_ "modernc.org/sqlite"
)

// Repository is the events search index, backed by SQLite.
type Repository struct {
	db         *sql.DB
	indexDelay time.Duration
	now        func() time.Time
}

// RepositoryOption configures a Repository.
type RepositoryOption func(*Repository)

// WithIndexDelay hides written records from searches for d, the way a search index lags writes.
// Lookups by id are not delayed.
func WithIndexDelay(d time.Duration) RepositoryOption {
	return func(r *Repository) { r.indexDelay = d }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) RepositoryOption {
	return func(r *Repository) { r.now = now }
}

// OpenRepository opens the SQLite database at dsn and applies the schema.
// Use ":memory:" for a throwaway index.
func OpenRepository(dsn string, opts ...RepositoryOption) (*Repository, func(), error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite %s: %w", dsn, errors.Join(nerr.ErrQueryFailed, err))
	}

	// a single connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	repo, err := NewRepository(db, opts...)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	return repo, func() { _ = db.Close() }, nil
}

// NewRepository wraps an open database and applies the schema.
func NewRepository(db *sql.DB, opts ...RepositoryOption) (*Repository, error) {
	if err := initSchema(db); err != nil {
		return nil, errors.Join(nerr.ErrQueryFailed, err)
	}

	r := &Repository{db: db, now: time.Now}
	for _, o := range opts {
		o(r)
	}

	return r, nil
}

// Put inserts or replaces a record.
func (r *Repository) Put(ctx context.Context, e notify.Event) error {
	if e.ID == "" {
		return fmt.Errorf("put: record without id: %w", nerr.ErrQueryFailed)
	}

	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("put %s: %w", e.ID, errors.Join(nerr.ErrSerializationFailed, err))
	}

	visible := r.now().Add(r.indexDelay).UnixNano()

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO events (id, etag, recurrence_id, state, starts_at, body, visible_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			etag = excluded.etag,
			recurrence_id = excluded.recurrence_id,
			state = excluded.state,
			starts_at = excluded.starts_at,
			body = excluded.body`,
		e.ID, e.ETag, e.RecurrenceID, stateOrDraft(e.State), e.Dates.Start.UnixNano(), string(body), visible,
	)
	if err != nil {
		return wrapQueryErr("put "+e.ID, err)
	}

	return nil
}

// Get returns the record with id.
func (r *Repository) Get(ctx context.Context, id string) (notify.Event, error) {
	var body string

	err := r.db.QueryRowContext(ctx, `SELECT body FROM events WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return notify.Event{}, fmt.Errorf("get %s: %w", id, nerr.ErrEventNotFound)
	}

	if err != nil {
		return notify.Event{}, wrapQueryErr("get "+id, err)
	}

	return decodeBody(id, body)
}

// Search returns visible records matching q ordered by start time, at most limit rows
// (limit <= 0 means no limit).
func (r *Repository) Search(ctx context.Context, q notify.Query, limit int) ([]notify.Event, error) {
	now := r.now()

	where := []string{"visible_at <= ?"}
	args := []any{now.UnixNano()}

	if q.RecurrenceID != "" {
		where = append(where, "recurrence_id = ?")
		args = append(args, q.RecurrenceID)
	}

	if q.OnlyFuture {
		where = append(where, "starts_at >= ?")
		args = append(args, now.UnixNano())
	}

	switch q.SpikeState {
	case notify.SpikedStateSpiked:
		where = append(where, "state = ?")
		args = append(args, notify.StateSpiked)
	case notify.SpikedStateBoth:
	default:
		where = append(where, "state <> ?")
		args = append(args, notify.StateSpiked)
	}

	if len(q.IDs) > 0 {
		where = append(where, "id IN ("+strings.TrimSuffix(strings.Repeat("?,", len(q.IDs)), ",")+")")
		for _, id := range q.IDs {
			args = append(args, id)
		}
	}

	query := "SELECT id, body FROM events WHERE " + strings.Join(where, " AND ") + " ORDER BY starts_at, id"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapQueryErr("search", err)
	}
	defer rows.Close()

	events := []notify.Event{}

	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, wrapQueryErr("search scan", err)
		}

		e, err := decodeBody(id, body)
		if err != nil {
			return nil, err
		}

		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, wrapQueryErr("search rows", err)
	}

	return events, nil
}

func decodeBody(id, body string) (notify.Event, error) {
	var e notify.Event
	if err := json.Unmarshal([]byte(body), &e); err != nil {
		return notify.Event{}, fmt.Errorf("decode %s: %w", id, errors.Join(nerr.ErrDecodeFailed, err))
	}

	return e, nil
}

func stateOrDraft(s string) string {
	if s == "" {
		return notify.StateDraft
	}

	return s
}

func wrapQueryErr(label string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return fmt.Errorf("sqlite %s: %w", label, errors.Join(nerr.ErrQueryFailed, err))
}
