package reservation

import (
	"context"

	"github.com/google/uuid"

	"casanexus/internal/paging"
)

// Service defines the interface for the reservation service.
type Service interface {
	Admit(ctx context.Context, in AdmitInput) (*Reservation, error)
	GetReservation(ctx context.Context, id uuid.UUID) (*Reservation, error)
	ListReservations(ctx context.Context, req paging.Request) (paging.Page[Reservation], error)
	CancelReservation(ctx context.Context, id uuid.UUID) error
}
