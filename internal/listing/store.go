package listing

import (
	"context"

	"github.com/google/uuid"

	"casanexus/internal/paging"
)

// Store persists listings.
type Store interface {
	// Get returns ErrNotFound when id is unknown.
	Get(ctx context.Context, id uuid.UUID) (*Listing, error)
	List(ctx context.Context, req paging.Request) (paging.Page[Listing], error)
	// Search applies c to the full collection before paging, so totals count
	// every match.
	Search(ctx context.Context, c Criteria, req paging.Request) (paging.Page[Listing], error)
	// Save inserts or replaces l, assigning an id when l.ID is nil.
	Save(ctx context.Context, l *Listing) error
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	// Delete returns ErrNotFound when id is unknown and ErrInUse when
	// reservations still reference the listing.
	Delete(ctx context.Context, id uuid.UUID) error
}
