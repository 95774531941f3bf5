package reservation_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casanexus/internal/eventstore"
	"casanexus/internal/listing"
	"casanexus/internal/postgres/pgtest"
	"casanexus/internal/reservation"
)

type pgFixture struct {
	db      *sql.DB
	store   *reservation.PostgresStore
	service reservation.Service
	listing *listing.Listing
	events  *eventstore.EventStore
}

func newPGFixture(t *testing.T) pgFixture {
	t.Helper()
	db := pgtest.Open(t)
	es := eventstore.New()
	listings := listing.NewPostgresStore(db, es)

	l := &listing.Listing{Name: "Casa L", Address: "Rua L", Rooms: 2, Price: 100, Capacity: 4}
	require.NoError(t, listings.Save(context.Background(), l))

	store := reservation.NewPostgresStore(db, es)
	svc := reservation.NewService(store, listings, discardLogger(),
		reservation.WithClock(fixedClock(2025, time.May, 20)))
	return pgFixture{db: db, store: store, service: svc, listing: l, events: es}
}

func (f pgFixture) input(checkIn, checkOut reservation.Date, party int) reservation.AdmitInput {
	return fixture{listing: f.listing}.input(checkIn, checkOut, party)
}

func TestPostgres_Scenario(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()

	r1, err := f.service.Admit(ctx, f.input(jun(1), jun(5), 2))
	require.NoError(t, err)

	_, err = f.service.Admit(ctx, f.input(jun(4), jun(8), 2))
	assert.ErrorIs(t, err, reservation.ErrDateRangeConflict)

	_, err = f.service.Admit(ctx, f.input(jun(5), jun(8), 2))
	require.NoError(t, err)

	_, err = f.service.Admit(ctx, f.input(jun(10), jun(12), 5))
	assert.ErrorIs(t, err, reservation.ErrCapacityExceeded)

	got, err := f.service.GetReservation(ctx, r1.ID)
	require.NoError(t, err)
	assert.Equal(t, "2025-06-01", got.CheckIn.String())
	assert.Equal(t, "2025-06-05", got.CheckOut.String())
	require.NotNil(t, got.Listing)
	assert.Equal(t, 4, got.Listing.Capacity)

	overlapping, err := f.store.FindOverlapping(ctx, f.listing.ID, jun(3), jun(6))
	require.NoError(t, err)
	assert.Len(t, overlapping, 2)

	require.NoError(t, f.service.CancelReservation(ctx, r1.ID))
	assert.ErrorIs(t, f.service.CancelReservation(ctx, r1.ID), reservation.ErrReservationNotFound)
}

func TestPostgres_ExclusionConstraintBackstop(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()

	in := f.input(jun(1), jun(5), 2)
	first := &reservation.Reservation{ListingID: f.listing.ID, ClientName: in.ClientName, ClientEmail: in.ClientEmail,
		ClientNationalID: in.ClientNationalID, CheckIn: jun(1), CheckOut: jun(5), PartySize: 2}
	require.NoError(t, f.store.Save(ctx, first))

	// bypasses the engine: only the constraint stands in the way
	second := *first
	second.ID = uuid.Nil
	second.CheckIn, second.CheckOut = jun(3), jun(7)
	assert.ErrorIs(t, f.store.Save(ctx, &second), reservation.ErrDateRangeConflict)

	version, err := f.events.CurrentVersion(ctx, f.db, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestPostgres_ConcurrentAdmissionsAdmitOne(t *testing.T) {
	f := newPGFixture(t)

	const attempts = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.Admit(context.Background(), f.input(jun(1), jun(5), 2))
			if err != nil && !errors.Is(err, reservation.ErrDateRangeConflict) {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, admitted)
}
