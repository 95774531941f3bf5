package reservation

import (
	"context"

	"github.com/google/uuid"

	"casanexus/internal/listing"
)

// ListingReader resolves the listing a reservation refers to. It returns
// listing.ErrNotFound for unknown ids.
type ListingReader interface {
	Get(ctx context.Context, id uuid.UUID) (*listing.Listing, error)
}

// Store persists reservations.
type Store interface {
	// Get returns ErrReservationNotFound when id is unknown.
	Get(ctx context.Context, id uuid.UUID) (*Reservation, error)
	List(ctx context.Context) ([]Reservation, error)
	// FindOverlapping returns the reservations of listingID whose stay
	// intersects [start, end): check_in < end and check_out > start.
	FindOverlapping(ctx context.Context, listingID uuid.UUID, start, end Date) ([]Reservation, error)
	// Save inserts or replaces r, assigning an id when r.ID is nil. It
	// returns ErrDateRangeConflict when storage rejects an overlapping stay.
	Save(ctx context.Context, r *Reservation) error
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	// Delete returns ErrReservationNotFound when id is unknown.
	Delete(ctx context.Context, id uuid.UUID) error
	// WithListingLock runs fn while holding an exclusive lock scoped to
	// listingID. fn must use the Store it is given. In transactional stores
	// its writes commit only when fn returns nil.
	WithListingLock(ctx context.Context, listingID uuid.UUID, fn func(ctx context.Context, store Store) error) error
}
