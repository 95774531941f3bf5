package listing

import (
	"context"

	"github.com/google/uuid"

	"casanexus/internal/paging"
)

// Service defines the interface for the listing service.
type Service interface {
	CreateListing(ctx context.Context, in Input) (*Listing, error)
	GetListing(ctx context.Context, id uuid.UUID) (*Listing, error)
	ListListings(ctx context.Context, req paging.Request) (paging.Page[Listing], error)
	UpdateListing(ctx context.Context, id uuid.UUID, in Input) (*Listing, error)
	DeleteListing(ctx context.Context, id uuid.UUID) error
	SearchListings(ctx context.Context, c Criteria, req paging.Request) (paging.Page[Listing], error)
}
