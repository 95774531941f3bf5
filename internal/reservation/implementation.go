package reservation

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"casanexus/internal/listing"
	"casanexus/internal/logger"
	"casanexus/internal/paging"
	"casanexus/internal/validator"
)

// service implements the Service interface.
type service struct {
	store      Store
	listings   ListingReader
	now        func() time.Time
	logger     *slog.Logger
	tracer     trace.Tracer
	admissions metric.Int64Counter
}

// Option configures the reservation service.
type Option func(*service)

// WithClock replaces time.Now as the source of "today".
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// NewService creates a new reservation service instance.
func NewService(store Store, listings ListingReader, logger *slog.Logger, opts ...Option) Service {
	s := &service{
		store:    store,
		listings: listings,
		now:      time.Now,
		logger:   logger,
		tracer:   otel.Tracer("casanexus/reservation"),
	}
	for _, opt := range opts {
		opt(s)
	}

	counter, err := otel.Meter("casanexus/reservation").Int64Counter("reservation.admissions",
		metric.WithDescription("Admission attempts by outcome"))
	if err != nil {
		logger.Warn("admission counter unavailable", "error", err)
		counter = noop.Int64Counter{}
	}
	s.admissions = counter

	return s
}

// Admit runs the admission checks in order and stores the reservation when
// all pass. The overlap check, capacity check and insert run under the
// listing lock so concurrent admissions for one listing cannot both succeed.
func (s *service) Admit(ctx context.Context, in AdmitInput) (*Reservation, error) {
	ctx, span := s.tracer.Start(ctx, "reservation.admit",
		trace.WithAttributes(
			attribute.String("listing.id", in.ListingID.String()),
			attribute.String("check_in", in.CheckIn.String()),
			attribute.String("check_out", in.CheckOut.String()),
		),
	)
	defer span.End()

	r, err := s.admit(ctx, in)

	outcome := "admitted"
	var (
		admissionErr  *AdmissionError
		validationErr *validator.Error
	)
	switch {
	case errors.As(err, &validationErr):
		outcome = "invalid"
	case errors.As(err, &admissionErr):
		outcome = string(admissionErr.Reason)
		span.SetAttributes(attribute.String("admission.reason", outcome))
	case err != nil:
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, "admission failed")
	}
	s.admissions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))

	log := logger.FromContext(ctx, s.logger)
	switch outcome {
	case "admitted":
		span.SetAttributes(attribute.String("reservation.id", r.ID.String()))
		log.Info("reservation admitted", "reservation_id", r.ID, "listing_id", r.ListingID)
	case "error":
		log.Error("admission failed", "listing_id", in.ListingID, "error", err)
	default:
		log.Info("reservation refused", "listing_id", in.ListingID, "reason", outcome)
	}

	return r, err
}

func (s *service) admit(ctx context.Context, in AdmitInput) (*Reservation, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	l, err := s.listings.Get(ctx, in.ListingID)
	if err != nil {
		if errors.Is(err, listing.ErrNotFound) {
			return nil, ErrListingNotFound
		}
		return nil, fmt.Errorf("failed to resolve listing: %w", err)
	}

	r := &Reservation{
		ListingID:        l.ID,
		Listing:          l,
		ClientName:       in.ClientName,
		ClientEmail:      in.ClientEmail,
		ClientNationalID: in.ClientNationalID,
		CheckIn:          in.CheckIn,
		CheckOut:         in.CheckOut,
		PartySize:        in.PartySize,
	}

	if r.CheckIn.After(r.CheckOut) {
		return nil, ErrInvalidDateRange
	}
	if r.CheckIn.Before(DateOf(s.now())) {
		return nil, ErrCheckInInPast
	}

	err = s.store.WithListingLock(ctx, l.ID, func(ctx context.Context, store Store) error {
		existing, err := store.FindOverlapping(ctx, l.ID, r.CheckIn, r.CheckOut)
		if err != nil {
			return fmt.Errorf("failed to find overlapping reservations: %w", err)
		}
		if len(existing) > 0 {
			return ErrDateRangeConflict
		}

		if r.PartySize > l.Capacity {
			return ErrCapacityExceeded
		}

		return store.Save(ctx, r)
	})
	if err != nil {
		return nil, err
	}

	return r, nil
}

// GetReservation retrieves a reservation by its ID.
func (s *service) GetReservation(ctx context.Context, id uuid.UUID) (*Reservation, error) {
	ctx, span := s.tracer.Start(ctx, "reservation.get",
		trace.WithAttributes(attribute.String("reservation.id", id.String())))
	defer span.End()

	return s.store.Get(ctx, id)
}

// ListReservations returns one page of all reservations ordered by check-in.
func (s *service) ListReservations(ctx context.Context, req paging.Request) (paging.Page[Reservation], error) {
	ctx, span := s.tracer.Start(ctx, "reservation.list")
	defer span.End()

	all, err := s.store.List(ctx)
	if err != nil {
		return paging.Page[Reservation]{}, fmt.Errorf("failed to list reservations: %w", err)
	}

	slices.SortStableFunc(all, func(a, b Reservation) int {
		switch {
		case a.CheckIn.Before(b.CheckIn):
			return -1
		case a.CheckIn.After(b.CheckIn):
			return 1
		}
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), strings.Compare(a.ID.String(), b.ID.String()))
	})

	return paging.Slice(all, req.Normalize()), nil
}

// CancelReservation deletes an existing reservation.
func (s *service) CancelReservation(ctx context.Context, id uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "reservation.cancel",
		trace.WithAttributes(attribute.String("reservation.id", id.String())))
	defer span.End()

	exists, err := s.store.Exists(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to check reservation: %w", err)
	}
	if !exists {
		return ErrReservationNotFound
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	logger.FromContext(ctx, s.logger).Info("reservation cancelled", "reservation_id", id)
	return nil
}
