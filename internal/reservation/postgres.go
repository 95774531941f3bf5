package reservation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"casanexus/internal/eventstore"
	"casanexus/internal/listing"
	"casanexus/internal/postgres"
)

var selectReservation = `
	SELECT r.id, r.listing_id, r.client_name, r.client_email, r.client_national_id,
		r.check_in, r.check_out, r.party_size, r.created_at, ` + listing.Columns("l") + `
	FROM reservations r
	JOIN listings l ON l.id = r.listing_id`

// PostgresStore is the PostgreSQL Store. Reads join the referenced listing.
// Inside WithListingLock it is bound to the locking transaction.
type PostgresStore struct {
	db     *sql.DB
	tx     *sql.Tx
	events *eventstore.EventStore
	tracer trace.Tracer
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(db *sql.DB, events *eventstore.EventStore) *PostgresStore {
	return &PostgresStore{db: db, events: events, tracer: otel.Tracer("casanexus/reservation/postgres")}
}

func (s *PostgresStore) q() postgres.DBTX {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// inTx joins the bound transaction or opens a new one.
func (s *PostgresStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if s.tx != nil {
		return fn(s.tx)
	}
	return postgres.InTx(ctx, s.db, nil, fn)
}

// WithListingLock runs fn in a transaction holding a transaction-scoped
// advisory lock keyed on the listing id.
func (s *PostgresStore) WithListingLock(ctx context.Context, listingID uuid.UUID, fn func(ctx context.Context, store Store) error) error {
	ctx, span := s.tracer.Start(ctx, "reservation.postgres.listing_lock",
		trace.WithAttributes(attribute.String("listing.id", listingID.String())))
	defer span.End()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, listingID.String()); err != nil {
			return fmt.Errorf("failed to lock listing: %w", err)
		}
		return fn(ctx, &PostgresStore{db: s.db, tx: tx, events: s.events, tracer: s.tracer})
	})
}

func scanReservation(row listing.RowScanner) (*Reservation, error) {
	var r Reservation
	l, err := listing.ScanRow(row,
		&r.ID,
		&r.ListingID,
		&r.ClientName,
		&r.ClientEmail,
		&r.ClientNationalID,
		&r.CheckIn,
		&r.CheckOut,
		&r.PartySize,
		&r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Listing = l
	return &r, nil
}

func (s *PostgresStore) query(ctx context.Context, query string, args ...any) ([]Reservation, error) {
	rows, err := s.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reservations []Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		reservations = append(reservations, *r)
	}
	return reservations, rows.Err()
}

// Get retrieves a reservation by id.
func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Reservation, error) {
	r, err := scanReservation(s.q().QueryRowContext(ctx, selectReservation+` WHERE r.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	return r, nil
}

// List returns every reservation.
func (s *PostgresStore) List(ctx context.Context) ([]Reservation, error) {
	reservations, err := s.query(ctx, selectReservation+` ORDER BY r.check_in, r.created_at, r.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	return reservations, nil
}

// FindOverlapping returns the stays of listingID intersecting [start, end).
func (s *PostgresStore) FindOverlapping(ctx context.Context, listingID uuid.UUID, start, end Date) ([]Reservation, error) {
	ctx, span := s.tracer.Start(ctx, "reservation.postgres.find_overlapping")
	defer span.End()

	reservations, err := s.query(ctx, selectReservation+`
		WHERE r.listing_id = $1 AND r.check_in < $2 AND r.check_out > $3
		ORDER BY r.check_in`, listingID, end, start)
	if err != nil {
		return nil, fmt.Errorf("failed to find overlapping reservations: %w", err)
	}

	span.SetAttributes(attribute.Int("overlaps", len(reservations)))
	return reservations, nil
}

// Save inserts or replaces r and records a ReservationAdmitted event.
func (s *PostgresStore) Save(ctx context.Context, r *Reservation) error {
	ctx, span := s.tracer.Start(ctx, "reservation.postgres.save")
	defer span.End()

	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	span.SetAttributes(attribute.String("reservation.id", r.ID.String()))

	return s.inTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO reservations (id, listing_id, client_name, client_email, client_national_id,
				check_in, check_out, party_size)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				listing_id = EXCLUDED.listing_id,
				client_name = EXCLUDED.client_name,
				client_email = EXCLUDED.client_email,
				client_national_id = EXCLUDED.client_national_id,
				check_in = EXCLUDED.check_in,
				check_out = EXCLUDED.check_out,
				party_size = EXCLUDED.party_size
			RETURNING created_at
		`, r.ID, r.ListingID, r.ClientName, r.ClientEmail, r.ClientNationalID,
			r.CheckIn, r.CheckOut, r.PartySize,
		).Scan(&r.CreatedAt)
		if err != nil {
			switch {
			case postgres.HasCode(err, postgres.CodeExclusionViolation):
				return ErrDateRangeConflict
			case postgres.HasCode(err, postgres.CodeForeignKeyViolation):
				return ErrListingNotFound
			case postgres.HasCode(err, postgres.CodeCheckViolation):
				return ErrInvalidDateRange
			}
			return fmt.Errorf("failed to insert reservation: %w", err)
		}

		return s.events.Record(ctx, tx, r.ID, AggregateType, EventAdmitted, r)
	})
}

// Exists reports whether a reservation with id is stored.
func (s *PostgresStore) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := s.q().QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM reservations WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check reservation: %w", err)
	}
	return exists, nil
}

// Delete removes a reservation and records a ReservationCancelled event.
func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "reservation.postgres.delete",
		trace.WithAttributes(attribute.String("reservation.id", id.String())))
	defer span.End()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		var listingID uuid.UUID
		err := tx.QueryRowContext(ctx, `DELETE FROM reservations WHERE id = $1 RETURNING listing_id`, id).Scan(&listingID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrReservationNotFound
			}
			return fmt.Errorf("failed to delete reservation: %w", err)
		}

		return s.events.Record(ctx, tx, id, AggregateType, EventCancelled, CancelledEvent{ID: id, ListingID: listingID})
	})
}
