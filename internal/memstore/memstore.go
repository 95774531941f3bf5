// Package memstore keeps listings and reservations in process memory. It
// backs the "memory" storage driver and the service tests.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"casanexus/internal/listing"
	"casanexus/internal/paging"
	"casanexus/internal/reservation"
)

// DB holds both collections so a listing delete can see its reservations.
type DB struct {
	mu           sync.RWMutex
	listings     map[uuid.UUID]listing.Listing
	reservations map[uuid.UUID]reservation.Reservation

	locksMu sync.Mutex
	locks   map[uuid.UUID]*sync.Mutex

	now func() time.Time
}

// New creates an empty DB.
func New() *DB {
	return &DB{
		listings:     make(map[uuid.UUID]listing.Listing),
		reservations: make(map[uuid.UUID]reservation.Reservation),
		locks:        make(map[uuid.UUID]*sync.Mutex),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Listings returns the listing.Store view.
func (db *DB) Listings() *ListingStore { return &ListingStore{db: db} }

// Reservations returns the reservation.Store view.
func (db *DB) Reservations() *ReservationStore { return &ReservationStore{db: db} }

func (db *DB) listingLock(id uuid.UUID) *sync.Mutex {
	db.locksMu.Lock()
	defer db.locksMu.Unlock()

	mu, ok := db.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		db.locks[id] = mu
	}
	return mu
}

func cloneListing(l listing.Listing) listing.Listing {
	l.Latitude = clonePtr(l.Latitude)
	l.Longitude = clonePtr(l.Longitude)
	l.PostalCode = clonePtr(l.PostalCode)
	return l
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// ListingStore implements listing.Store.
type ListingStore struct {
	db *DB
}

var _ listing.Store = (*ListingStore)(nil)

func (s *ListingStore) Get(_ context.Context, id uuid.UUID) (*listing.Listing, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	l, ok := s.db.listings[id]
	if !ok {
		return nil, listing.ErrNotFound
	}
	l = cloneListing(l)
	return &l, nil
}

func (s *ListingStore) all() []listing.Listing {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	all := make([]listing.Listing, 0, len(s.db.listings))
	for _, l := range s.db.listings {
		all = append(all, cloneListing(l))
	}
	return all
}

func (s *ListingStore) List(ctx context.Context, req paging.Request) (paging.Page[listing.Listing], error) {
	return s.Search(ctx, listing.Criteria{}, req)
}

// Search filters the whole collection before slicing the page.
func (s *ListingStore) Search(_ context.Context, c listing.Criteria, req paging.Request) (paging.Page[listing.Listing], error) {
	return listing.FilterPage(s.all(), c, req), nil
}

func (s *ListingStore) Save(_ context.Context, l *listing.Listing) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	now := s.db.now()
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if existing, ok := s.db.listings[l.ID]; ok {
		l.CreatedAt = existing.CreatedAt
	} else {
		l.CreatedAt = now
	}
	l.UpdatedAt = now

	s.db.listings[l.ID] = cloneListing(*l)
	return nil
}

func (s *ListingStore) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	_, ok := s.db.listings[id]
	return ok, nil
}

// Delete refuses with listing.ErrInUse while reservations reference id.
func (s *ListingStore) Delete(_ context.Context, id uuid.UUID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.listings[id]; !ok {
		return listing.ErrNotFound
	}
	for _, r := range s.db.reservations {
		if r.ListingID == id {
			return listing.ErrInUse
		}
	}

	delete(s.db.listings, id)
	return nil
}

// ReservationStore implements reservation.Store.
type ReservationStore struct {
	db *DB
}

var _ reservation.Store = (*ReservationStore)(nil)

// withListing attaches the current listing record when this DB holds it,
// otherwise the snapshot taken at admission stays.
func (s *ReservationStore) withListing(r reservation.Reservation) reservation.Reservation {
	if l, ok := s.db.listings[r.ListingID]; ok {
		l = cloneListing(l)
		r.Listing = &l
	} else if r.Listing != nil {
		l := cloneListing(*r.Listing)
		r.Listing = &l
	}
	return r
}

func (s *ReservationStore) Get(_ context.Context, id uuid.UUID) (*reservation.Reservation, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	r, ok := s.db.reservations[id]
	if !ok {
		return nil, reservation.ErrReservationNotFound
	}
	r = s.withListing(r)
	return &r, nil
}

func (s *ReservationStore) List(_ context.Context) ([]reservation.Reservation, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	all := make([]reservation.Reservation, 0, len(s.db.reservations))
	for _, r := range s.db.reservations {
		all = append(all, s.withListing(r))
	}
	return all, nil
}

func (s *ReservationStore) FindOverlapping(_ context.Context, listingID uuid.UUID, start, end reservation.Date) ([]reservation.Reservation, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var hits []reservation.Reservation
	for _, r := range s.db.reservations {
		if r.ListingID == listingID && reservation.Overlaps(r.CheckIn, r.CheckOut, start, end) {
			hits = append(hits, s.withListing(r))
		}
	}
	return hits, nil
}

// Save mirrors the database exclusion constraint: two non-empty stays on
// one listing may not overlap.
func (s *ReservationStore) Save(_ context.Context, r *reservation.Reservation) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CheckIn.After(r.CheckOut) {
		return reservation.ErrInvalidDateRange
	}

	for id, other := range s.db.reservations {
		if id == r.ID || other.ListingID != r.ListingID {
			continue
		}
		if nonEmpty(other) && nonEmpty(*r) && reservation.Overlaps(other.CheckIn, other.CheckOut, r.CheckIn, r.CheckOut) {
			return reservation.ErrDateRangeConflict
		}
	}

	if existing, ok := s.db.reservations[r.ID]; ok {
		r.CreatedAt = existing.CreatedAt
	} else {
		r.CreatedAt = s.db.now()
	}

	stored := *r
	if stored.Listing != nil {
		l := cloneListing(*stored.Listing)
		stored.Listing = &l
	}
	s.db.reservations[r.ID] = stored
	return nil
}

func nonEmpty(r reservation.Reservation) bool {
	return r.CheckIn.Before(r.CheckOut)
}

func (s *ReservationStore) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	_, ok := s.db.reservations[id]
	return ok, nil
}

func (s *ReservationStore) Delete(_ context.Context, id uuid.UUID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.reservations[id]; !ok {
		return reservation.ErrReservationNotFound
	}
	delete(s.db.reservations, id)
	return nil
}

// WithListingLock serializes fn with every other caller for listingID.
func (s *ReservationStore) WithListingLock(ctx context.Context, listingID uuid.UUID, fn func(ctx context.Context, store reservation.Store) error) error {
	mu := s.db.listingLock(listingID)
	mu.Lock()
	defer mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, s)
}
