package memstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casanexus/internal/listing"
	"casanexus/internal/paging"
	"casanexus/internal/reservation"
)

func day(d int) reservation.Date { return reservation.NewDate(2026, time.March, d) }

func TestListingStore_CopiesOnReadAndWrite(t *testing.T) {
	db := New()
	store := db.Listings()
	ctx := context.Background()

	code := "01001000"
	l := &listing.Listing{Name: "Casa", Price: 10, Rooms: 1, Capacity: 1, PostalCode: &code}
	require.NoError(t, store.Save(ctx, l))

	code = "99999999"
	l.Name = "mutated"

	got, err := store.Get(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, "Casa", got.Name)
	assert.Equal(t, "01001000", *got.PostalCode)

	*got.PostalCode = "11111111"
	again, err := store.Get(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, "01001000", *again.PostalCode)
}

func TestListingStore_SaveKeepsCreatedAt(t *testing.T) {
	db := New()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return clock }
	store := db.Listings()
	ctx := context.Background()

	l := &listing.Listing{Name: "Casa"}
	require.NoError(t, store.Save(ctx, l))

	clock = clock.Add(time.Hour)
	require.NoError(t, store.Save(ctx, l))

	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), l.CreatedAt)
	assert.Equal(t, time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC), l.UpdatedAt)
}

func TestListingStore_Search(t *testing.T) {
	store := New().Listings()
	ctx := context.Background()

	for _, rooms := range []int{1, 2, 3, 4} {
		require.NoError(t, store.Save(ctx, &listing.Listing{Name: "Casa", Rooms: rooms, Price: 50}))
	}

	min := 3
	page, err := store.Search(ctx, listing.Criteria{RoomsMin: &min}, paging.Request{Page: 0, Size: 10, Sort: "rooms"})
	require.NoError(t, err)
	assert.Equal(t, 2, page.TotalElements)
	assert.Equal(t, 3, page.Content[0].Rooms)
}

func TestReservationStore_FindOverlapping(t *testing.T) {
	store := New().Reservations()
	ctx := context.Background()
	listingID := uuid.New()

	require.NoError(t, store.Save(ctx, &reservation.Reservation{ListingID: listingID, CheckIn: day(1), CheckOut: day(5)}))
	require.NoError(t, store.Save(ctx, &reservation.Reservation{ListingID: uuid.New(), CheckIn: day(1), CheckOut: day(5)}))

	hits, err := store.FindOverlapping(ctx, listingID, day(4), day(8))
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	hits, err = store.FindOverlapping(ctx, listingID, day(5), day(8))
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestReservationStore_SaveRejectsOverlap(t *testing.T) {
	store := New().Reservations()
	ctx := context.Background()
	listingID := uuid.New()

	require.NoError(t, store.Save(ctx, &reservation.Reservation{ListingID: listingID, CheckIn: day(1), CheckOut: day(5)}))
	err := store.Save(ctx, &reservation.Reservation{ListingID: listingID, CheckIn: day(2), CheckOut: day(3)})
	assert.ErrorIs(t, err, reservation.ErrDateRangeConflict)

	assert.NoError(t, store.Save(ctx, &reservation.Reservation{ListingID: listingID, CheckIn: day(3), CheckOut: day(3)}),
		"an empty stay occupies no night")
}

func TestReservationStore_Delete(t *testing.T) {
	store := New().Reservations()
	ctx := context.Background()

	r := &reservation.Reservation{ListingID: uuid.New(), CheckIn: day(1), CheckOut: day(2)}
	require.NoError(t, store.Save(ctx, r))

	ok, err := store.Exists(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.Delete(ctx, r.ID))
	assert.ErrorIs(t, store.Delete(ctx, r.ID), reservation.ErrReservationNotFound)
}

func TestWithListingLock_Serializes(t *testing.T) {
	store := New().Reservations()
	listingID := uuid.New()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.WithListingLock(context.Background(), listingID, func(context.Context, reservation.Store) error {
				mu.Lock()
				inside++
				maxSeen = max(maxSeen, inside)
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
}

func TestWithListingLock_CancelledContext(t *testing.T) {
	store := New().Reservations()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := store.WithListingLock(ctx, uuid.New(), func(context.Context, reservation.Store) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
