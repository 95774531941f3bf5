package listing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"casanexus/internal/eventstore"
	"casanexus/internal/paging"
	"casanexus/internal/postgres"
)

const listingColumns = `id, name, address, description, latitude, longitude,
	rooms, baths, price, capacity, postal_code, created_at, updated_at`

// Columns returns the listing select list qualified with alias, in the
// order ScanRow expects.
func Columns(alias string) string {
	fields := strings.Fields(strings.ReplaceAll(listingColumns, ",", " "))
	for i, f := range fields {
		fields[i] = alias + "." + f
	}
	return strings.Join(fields, ", ")
}

// every bound is a nullable parameter, so one statement covers all filters
const criteriaPredicate = `
	($1::numeric IS NULL OR price <= $1)
	AND ($2::numeric IS NULL OR price >= $2)
	AND ($3::int IS NULL OR rooms <= $3)
	AND ($4::int IS NULL OR rooms >= $4)
	AND ($5::int IS NULL OR baths <= $5)
	AND ($6::int IS NULL OR baths >= $6)`

// PostgresStore is the PostgreSQL Store. Writes record an event in the same
// transaction.
type PostgresStore struct {
	db     *sql.DB
	events *eventstore.EventStore
	tracer trace.Tracer
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(db *sql.DB, events *eventstore.EventStore) *PostgresStore {
	return &PostgresStore{db: db, events: events, tracer: otel.Tracer("casanexus/listing/postgres")}
}

// RowScanner is satisfied by *sql.Row and *sql.Rows.
type RowScanner interface {
	Scan(dest ...any) error
}

// ScanRow scans leading destinations first, then the listing columns.
func ScanRow(row RowScanner, leading ...any) (*Listing, error) {
	var (
		l          Listing
		lat, lon   sql.NullFloat64
		postalCode sql.NullString
	)
	dest := append(leading,
		&l.ID,
		&l.Name,
		&l.Address,
		&l.Description,
		&lat,
		&lon,
		&l.Rooms,
		&l.Baths,
		&l.Price,
		&l.Capacity,
		&postalCode,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if lat.Valid {
		l.Latitude = &lat.Float64
	}
	if lon.Valid {
		l.Longitude = &lon.Float64
	}
	if postalCode.Valid {
		l.PostalCode = &postalCode.String
	}
	return &l, nil
}

// Get retrieves a listing by id.
func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Listing, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1`, id)
	l, err := ScanRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return l, nil
}

// List returns one page of all listings.
func (s *PostgresStore) List(ctx context.Context, req paging.Request) (paging.Page[Listing], error) {
	return s.Search(ctx, Criteria{}, req)
}

// Search counts and pages the matching listings inside one repeatable-read
// snapshot, so the total and the content agree.
func (s *PostgresStore) Search(ctx context.Context, c Criteria, req paging.Request) (paging.Page[Listing], error) {
	ctx, span := s.tracer.Start(ctx, "listing.postgres.search",
		trace.WithAttributes(
			attribute.Int("page", req.Page),
			attribute.Int("size", req.Size),
		),
	)
	defer span.End()

	args := []any{c.PriceMax, c.PriceMin, c.RoomsMax, c.RoomsMin, c.BathsMax, c.BathsMin}

	direction := "ASC"
	if req.Descending() {
		direction = "DESC"
	}
	// sort key comes from the safe list, never from raw input
	order := fmt.Sprintf("%s %s, id ASC", req.SortColumn(SortSafeList, DefaultSort), direction)

	var (
		total    int
		listings []Listing
	)
	err := postgres.InTx(ctx, s.db, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM listings WHERE `+criteriaPredicate, args...).Scan(&total); err != nil {
			return fmt.Errorf("count listings: %w", err)
		}
		if total == 0 || req.Offset() >= total {
			return nil
		}

		rows, err := tx.QueryContext(ctx, `
			SELECT `+listingColumns+`
			FROM listings
			WHERE `+criteriaPredicate+`
			ORDER BY `+order+`
			LIMIT $7 OFFSET $8
		`, append(args, req.Limit(), req.Offset())...)
		if err != nil {
			return fmt.Errorf("query listings: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			l, err := ScanRow(rows)
			if err != nil {
				return fmt.Errorf("scan listing: %w", err)
			}
			listings = append(listings, *l)
		}
		return rows.Err()
	})
	if err != nil {
		return paging.Page[Listing]{}, fmt.Errorf("failed to search listings: %w", err)
	}

	span.SetAttributes(attribute.Int("total", total))
	return paging.New(listings, req, total), nil
}

// Save inserts or replaces l and records a ListingSaved event.
func (s *PostgresStore) Save(ctx context.Context, l *Listing) error {
	ctx, span := s.tracer.Start(ctx, "listing.postgres.save")
	defer span.End()

	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	span.SetAttributes(attribute.String("listing.id", l.ID.String()))

	return postgres.InTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO listings (id, name, address, description, latitude, longitude,
				rooms, baths, price, capacity, postal_code)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				address = EXCLUDED.address,
				description = EXCLUDED.description,
				latitude = EXCLUDED.latitude,
				longitude = EXCLUDED.longitude,
				rooms = EXCLUDED.rooms,
				baths = EXCLUDED.baths,
				price = EXCLUDED.price,
				capacity = EXCLUDED.capacity,
				postal_code = EXCLUDED.postal_code,
				updated_at = NOW()
			RETURNING created_at, updated_at
		`, l.ID, l.Name, l.Address, l.Description, l.Latitude, l.Longitude,
			l.Rooms, l.Baths, l.Price, l.Capacity, l.PostalCode,
		).Scan(&l.CreatedAt, &l.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert listing: %w", err)
		}

		return s.events.Record(ctx, tx, l.ID, AggregateType, EventSaved, l)
	})
}

// Exists reports whether a listing with id is stored.
func (s *PostgresStore) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM listings WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check listing: %w", err)
	}
	return exists, nil
}

// Delete removes a listing and records a ListingDeleted event. The foreign
// key from reservations refuses the delete while any reference it.
func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "listing.postgres.delete",
		trace.WithAttributes(attribute.String("listing.id", id.String())))
	defer span.End()

	return postgres.InTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM listings WHERE id = $1`, id)
		if err != nil {
			if postgres.HasCode(err, postgres.CodeForeignKeyViolation) {
				return ErrInUse
			}
			return fmt.Errorf("failed to delete listing: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to delete listing: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}

		return s.events.Record(ctx, tx, id, AggregateType, EventDeleted, DeletedEvent{ID: id})
	})
}
