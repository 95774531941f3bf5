package listing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"casanexus/internal/logger"
	"casanexus/internal/paging"
	"casanexus/internal/postal"
)

// service implements the Service interface.
type service struct {
	store       Store
	postal      postal.Lookup
	logger      *slog.Logger
	tracer      trace.Tracer
	enrichments metric.Int64Counter
}

// Option configures the listing service.
type Option func(*service)

// WithAddressLookup enables address enrichment from postal codes on create.
func WithAddressLookup(lookup postal.Lookup) Option {
	return func(s *service) { s.postal = lookup }
}

// NewService creates a new listing service instance.
func NewService(store Store, logger *slog.Logger, opts ...Option) Service {
	s := &service{
		store:  store,
		logger: logger,
		tracer: otel.Tracer("casanexus/listing"),
	}
	for _, opt := range opts {
		opt(s)
	}

	counter, err := otel.Meter("casanexus/listing").Int64Counter("listing.address_enrichments",
		metric.WithDescription("Address enrichment attempts by outcome"))
	if err != nil {
		logger.Warn("enrichment counter unavailable", "error", err)
		counter = noop.Int64Counter{}
	}
	s.enrichments = counter

	return s
}

// CreateListing validates in, enriches the address from the postal code when
// possible and stores the new listing.
func (s *service) CreateListing(ctx context.Context, in Input) (*Listing, error) {
	ctx, span := s.tracer.Start(ctx, "listing.create")
	defer span.End()

	if err := in.Validate(); err != nil {
		return nil, err
	}

	l := &Listing{}
	in.apply(l)
	s.enrich(ctx, l)

	if err := s.store.Save(ctx, l); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save failed")
		return nil, fmt.Errorf("failed to save listing: %w", err)
	}

	span.SetAttributes(attribute.String("listing.id", l.ID.String()))
	logger.FromContext(ctx, s.logger).Info("listing created", "listing_id", l.ID)
	return l, nil
}

// enrich replaces the address with the looked-up one. Any lookup failure
// keeps the caller's address; the postal code is stored either way.
func (s *service) enrich(ctx context.Context, l *Listing) {
	if s.postal == nil || l.PostalCode == nil || *l.PostalCode == "" {
		return
	}

	outcome := "enriched"
	defer func() {
		s.enrichments.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}()

	addr, err := s.postal.Lookup(ctx, *l.PostalCode)
	switch {
	case errors.Is(err, postal.ErrNotFound):
		outcome = "not_found"
		return
	case err != nil:
		outcome = "failed"
		logger.FromContext(ctx, s.logger).Warn("address lookup failed, keeping supplied address",
			"postal_code", *l.PostalCode, "error", err)
		return
	case addr.Street == "":
		outcome = "no_street"
		return
	}

	l.Address = addr.Format()
}

// GetListing retrieves a listing by its ID.
func (s *service) GetListing(ctx context.Context, id uuid.UUID) (*Listing, error) {
	ctx, span := s.tracer.Start(ctx, "listing.get",
		trace.WithAttributes(attribute.String("listing.id", id.String())))
	defer span.End()

	return s.store.Get(ctx, id)
}

// ListListings returns one page of all listings.
func (s *service) ListListings(ctx context.Context, req paging.Request) (paging.Page[Listing], error) {
	ctx, span := s.tracer.Start(ctx, "listing.list")
	defer span.End()

	return s.store.List(ctx, req.Normalize())
}

// UpdateListing replaces every field of an existing listing.
func (s *service) UpdateListing(ctx context.Context, id uuid.UUID, in Input) (*Listing, error) {
	ctx, span := s.tracer.Start(ctx, "listing.update",
		trace.WithAttributes(attribute.String("listing.id", id.String())))
	defer span.End()

	if err := in.Validate(); err != nil {
		return nil, err
	}

	l, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	in.apply(l)
	if err := s.store.Save(ctx, l); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to save listing: %w", err)
	}

	logger.FromContext(ctx, s.logger).Info("listing updated", "listing_id", id)
	return l, nil
}

// DeleteListing removes a listing that exists and has no reservations.
func (s *service) DeleteListing(ctx context.Context, id uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "listing.delete",
		trace.WithAttributes(attribute.String("listing.id", id.String())))
	defer span.End()

	exists, err := s.store.Exists(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to check listing: %w", err)
	}
	if !exists {
		return ErrNotFound
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	logger.FromContext(ctx, s.logger).Info("listing deleted", "listing_id", id)
	return nil
}

// SearchListings returns the page of listings matching c.
func (s *service) SearchListings(ctx context.Context, c Criteria, req paging.Request) (paging.Page[Listing], error) {
	ctx, span := s.tracer.Start(ctx, "listing.search")
	defer span.End()

	page, err := s.store.Search(ctx, c, req.Normalize())
	if err != nil {
		return paging.Page[Listing]{}, err
	}

	span.SetAttributes(attribute.Int("listing.matches", page.TotalElements))
	return page, nil
}
