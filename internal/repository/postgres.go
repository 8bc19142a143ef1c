package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/concert-ticket-booking/internal/database"
	"github.com/Shivanand-hulikatti/concert-ticket-booking/internal/metrics"
	"github.com/Shivanand-hulikatti/concert-ticket-booking/internal/model"
)

// pgForeignKeyViolation is the SQLSTATE for foreign_key_violation.
const pgForeignKeyViolation = "23503"

// PostgresStore is the PostgreSQL-backed Store.
//
// Every operation acquires its own pooled connection under the retry
// budget; statements that fail after a connection is held are not retried,
// so a write is never applied twice.
type PostgresStore struct {
	db      *pgxpool.Pool
	retry   database.Retry
	metrics metrics.Recorder
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(db *pgxpool.Pool, retry database.Retry, rec metrics.Recorder) *PostgresStore {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &PostgresStore{db: db, retry: retry, metrics: rec}
}

func (s *PostgresStore) acquire(ctx context.Context) (*pgxpool.Conn, error) {
	var conn *pgxpool.Conn
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		start := time.Now()
		c, err := s.db.Acquire(ctx)
		if err != nil {
			s.metrics.ConnectionError()
			return err
		}
		s.metrics.ObserveQuery("connect", "none", time.Since(start))
		conn = c
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrStorageUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return conn, nil
}

func (s *PostgresStore) observe(operation, table string, start time.Time) {
	s.metrics.ObserveQuery(operation, table, time.Since(start))
}

// CreateEvent resets both tables and seeds one event in a single transaction.
func (s *PostgresStore) CreateEvent(ctx context.Context, name string, totalTickets int) (_ *model.Event, err error) {
	conn, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, storageError("begin transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	start := time.Now()
	if _, err = tx.Exec(ctx, `DELETE FROM bookings`); err != nil {
		return nil, storageError("clear bookings", err)
	}
	s.observe("delete", "bookings", start)

	start = time.Now()
	if _, err = tx.Exec(ctx, `DELETE FROM events`); err != nil {
		return nil, storageError("clear events", err)
	}
	s.observe("delete", "events", start)

	event := &model.Event{
		ID:               uuid.New().String(),
		Name:             name,
		TotalTickets:     totalTickets,
		AvailableTickets: totalTickets,
		CreatedAt:        time.Now().UTC(),
	}
	start = time.Now()
	_, err = tx.Exec(ctx,
		`INSERT INTO events (id, name, total_tickets, available_tickets, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		event.ID, event.Name, event.TotalTickets, event.AvailableTickets, event.CreatedAt,
	)
	if err != nil {
		return nil, storageError("insert event", err)
	}
	s.observe("insert", "events", start)

	if err = tx.Commit(ctx); err != nil {
		return nil, storageError("commit transaction", err)
	}
	return event, nil
}

// ReadRemaining returns available_tickets for one event.
func (s *PostgresStore) ReadRemaining(ctx context.Context, eventID string) (int, error) {
	conn, err := s.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Release()
	defer s.observe("select", "events", time.Now())

	var remaining int
	err = conn.QueryRow(ctx,
		`SELECT available_tickets FROM events WHERE id = $1`,
		eventID,
	).Scan(&remaining)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, storageError("read remaining", err)
	}
	return remaining, nil
}

// DecrementAndLog takes one ticket inside a transaction that holds a row
// lock on the event.
//
// SELECT ... FOR UPDATE blocks every other DecrementAndLog on the same
// event until this transaction commits or rolls back, so the capacity
// check and the decrement see the same value and concurrent callers are
// admitted one at a time. The ledger insert commits with the decrement.
func (s *PostgresStore) DecrementAndLog(ctx context.Context, eventID string, userID int64) (_ int, err error) {
	conn, err := s.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return 0, storageError("begin transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var available int
	start := time.Now()
	err = tx.QueryRow(ctx,
		`SELECT available_tickets
		 FROM events
		 WHERE id = $1
		 FOR UPDATE`,
		eventID,
	).Scan(&available)
	s.observe("select", "events", start)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, storageError("lock event row", err)
	}

	if available <= 0 {
		err = ErrSoldOut
		return 0, err
	}

	var remaining int
	start = time.Now()
	err = tx.QueryRow(ctx,
		`UPDATE events SET available_tickets = available_tickets - 1
		 WHERE id = $1
		 RETURNING available_tickets`,
		eventID,
	).Scan(&remaining)
	if err != nil {
		return 0, storageError("decrement available_tickets", err)
	}
	s.observe("update", "events", start)

	start = time.Now()
	_, err = tx.Exec(ctx,
		`INSERT INTO bookings (id, user_id, event_id, booked_at)
		 VALUES ($1, $2, $3, $4)`,
		uuid.New().String(), userID, eventID, time.Now().UTC(),
	)
	if err != nil {
		return 0, storageError("insert booking", err)
	}
	s.observe("insert", "bookings", start)

	if err = tx.Commit(ctx); err != nil {
		return 0, storageError("commit transaction", err)
	}
	return remaining, nil
}

// Decrement subtracts one ticket with no capacity check.
func (s *PostgresStore) Decrement(ctx context.Context, eventID string) error {
	conn, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	defer s.observe("update", "events", time.Now())

	tag, err := conn.Exec(ctx,
		`UPDATE events SET available_tickets = available_tickets - 1 WHERE id = $1`,
		eventID,
	)
	if err != nil {
		return storageError("decrement available_tickets", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendBooking inserts one ledger row in its own implicit transaction.
func (s *PostgresStore) AppendBooking(ctx context.Context, eventID string, userID int64) (*model.Booking, error) {
	conn, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()
	defer s.observe("insert", "bookings", time.Now())

	b := &model.Booking{
		ID:       uuid.New().String(),
		UserID:   userID,
		EventID:  eventID,
		BookedAt: time.Now().UTC(),
	}
	_, err = conn.Exec(ctx,
		`INSERT INTO bookings (id, user_id, event_id, booked_at)
		 VALUES ($1, $2, $3, $4)`,
		b.ID, b.UserID, b.EventID, b.BookedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return nil, ErrNotFound
		}
		return nil, storageError("insert booking", err)
	}
	return b, nil
}

// ListEvents returns all events ordered by creation time.
func (s *PostgresStore) ListEvents(ctx context.Context) ([]model.Event, error) {
	conn, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()
	defer s.observe("select", "events", time.Now())

	rows, err := conn.Query(ctx,
		`SELECT id, name, total_tickets, available_tickets, created_at
		 FROM events
		 ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, storageError("list events", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		if err := rows.Scan(&e.ID, &e.Name, &e.TotalTickets, &e.AvailableTickets, &e.CreatedAt); err != nil {
			return nil, storageError("scan event", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("list events", err)
	}
	return events, nil
}

// CountBookings returns the number of ledger rows.
func (s *PostgresStore) CountBookings(ctx context.Context) (int, error) {
	conn, err := s.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Release()
	defer s.observe("select", "bookings", time.Now())

	var n int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM bookings`).Scan(&n); err != nil {
		return 0, storageError("count bookings", err)
	}
	return n, nil
}

// Ping acquires a connection and round-trips to the server.
func (s *PostgresStore) Ping(ctx context.Context) error {
	conn, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	if err := conn.Ping(ctx); err != nil {
		return storageError("ping", err)
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
