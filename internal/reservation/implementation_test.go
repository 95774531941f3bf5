package reservation_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"casanexus/internal/listing"
	"casanexus/internal/memstore"
	"casanexus/internal/paging"
	"casanexus/internal/reservation"
	"casanexus/internal/validator"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedClock(y int, m time.Month, d int) func() time.Time {
	return func() time.Time { return time.Date(y, m, d, 10, 0, 0, 0, time.UTC) }
}

func jun(d int) reservation.Date { return reservation.NewDate(2025, time.June, d) }

type fixture struct {
	db      *memstore.DB
	service reservation.Service
	listing *listing.Listing
}

func newFixture(t testing.TB, capacity int) fixture {
	t.Helper()
	db := memstore.New()

	l := &listing.Listing{Name: "Casa L", Address: "Rua L", Rooms: 2, Price: 100, Capacity: capacity}
	require.NoError(t, db.Listings().Save(context.Background(), l))

	svc := reservation.NewService(db.Reservations(), db.Listings(), discardLogger(),
		reservation.WithClock(fixedClock(2025, time.May, 20)))
	return fixture{db: db, service: svc, listing: l}
}

func (f fixture) input(checkIn, checkOut reservation.Date, party int) reservation.AdmitInput {
	return reservation.AdmitInput{
		ListingID:        f.listing.ID,
		ClientName:       "Maria Silva",
		ClientEmail:      "maria@example.com",
		ClientNationalID: "123.456.789-00",
		CheckIn:          checkIn,
		CheckOut:         checkOut,
		PartySize:        party,
	}
}

func TestAdmit_Scenario(t *testing.T) {
	f := newFixture(t, 4)
	ctx := context.Background()

	r1, err := f.service.Admit(ctx, f.input(jun(1), jun(5), 2))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, r1.ID)
	require.NotNil(t, r1.Listing)
	assert.Equal(t, f.listing.ID, r1.Listing.ID)

	_, err = f.service.Admit(ctx, f.input(jun(4), jun(8), 2))
	assert.ErrorIs(t, err, reservation.ErrDateRangeConflict)

	r3, err := f.service.Admit(ctx, f.input(jun(5), jun(8), 2))
	require.NoError(t, err, "back-to-back stays are legal")

	_, err = f.service.Admit(ctx, f.input(jun(10), jun(12), 5))
	assert.ErrorIs(t, err, reservation.ErrCapacityExceeded)

	page, err := f.service.ListReservations(ctx, paging.Request{})
	require.NoError(t, err)
	require.Equal(t, 2, page.TotalElements)
	assert.Equal(t, r1.ID, page.Content[0].ID)
	assert.Equal(t, r3.ID, page.Content[1].ID)
}

func TestAdmit_ErrorOrder(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	_, err := f.service.Admit(ctx, f.input(jun(1), jun(3), 1))
	require.NoError(t, err)

	tests := []struct {
		name string
		in   reservation.AdmitInput
		want error
	}{
		{"unknown listing wins over everything", func() reservation.AdmitInput {
			in := f.input(jun(9), jun(1), 99)
			in.ListingID = uuid.New()
			return in
		}(), reservation.ErrListingNotFound},
		{"date order before past check", f.input(reservation.NewDate(2025, time.May, 10), reservation.NewDate(2025, time.May, 1), 1), reservation.ErrInvalidDateRange},
		{"past before overlap and capacity", f.input(reservation.NewDate(2025, time.May, 19), jun(2), 9), reservation.ErrCheckInInPast},
		{"overlap before capacity", f.input(jun(2), jun(4), 9), reservation.ErrDateRangeConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.Admit(ctx, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestAdmit_CheckInToday(t *testing.T) {
	f := newFixture(t, 2)

	r, err := f.service.Admit(context.Background(), f.input(reservation.NewDate(2025, time.May, 20), reservation.NewDate(2025, time.May, 21), 2))
	require.NoError(t, err)
	assert.Equal(t, "2025-05-20", r.CheckIn.String())
}

func TestAdmit_ValidatesFields(t *testing.T) {
	f := newFixture(t, 2)

	in := f.input(jun(1), jun(2), 0)
	in.ClientEmail = ""
	in.CheckOut = reservation.Date{}

	_, err := f.service.Admit(context.Background(), in)
	var verr *validator.Error
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "client_email")
	assert.Contains(t, verr.Fields, "check_out")
	assert.Contains(t, verr.Fields, "party_size")
}

type failingListings struct{}

func (failingListings) Get(context.Context, uuid.UUID) (*listing.Listing, error) {
	return nil, errors.New("listing service unavailable")
}

func TestAdmit_InfrastructureErrorIsNotAnAdmissionError(t *testing.T) {
	svc := reservation.NewService(memstore.New().Reservations(), failingListings{}, discardLogger())

	_, err := svc.Admit(context.Background(), reservation.AdmitInput{
		ListingID: uuid.New(), ClientName: "a", ClientEmail: "b", ClientNationalID: "c",
		CheckIn: jun(1), CheckOut: jun(2), PartySize: 1,
	})
	require.Error(t, err)
	var admissionErr *reservation.AdmissionError
	assert.False(t, errors.As(err, &admissionErr))
}

func TestAdmit_Properties(t *testing.T) {
	today := reservation.NewDate(2025, time.May, 20)

	rapid.Check(t, func(rt *rapid.T) {
		f := newFixture(t, rapid.IntRange(1, 8).Draw(rt, "capacity"))

		checkIn := today.AddDays(rapid.IntRange(-30, 30).Draw(rt, "checkIn"))
		checkOut := today.AddDays(rapid.IntRange(-30, 30).Draw(rt, "checkOut"))
		party := rapid.IntRange(1, 12).Draw(rt, "party")

		_, err := f.service.Admit(context.Background(), f.input(checkIn, checkOut, party))

		switch {
		case checkIn.After(checkOut):
			if !errors.Is(err, reservation.ErrInvalidDateRange) {
				rt.Fatalf("check-in after check-out: got %v", err)
			}
		case checkIn.Before(today):
			if !errors.Is(err, reservation.ErrCheckInInPast) {
				rt.Fatalf("check-in before today: got %v", err)
			}
		case party > f.listing.Capacity:
			if !errors.Is(err, reservation.ErrCapacityExceeded) {
				rt.Fatalf("party over capacity: got %v", err)
			}
		default:
			if err != nil {
				rt.Fatalf("expected admission, got %v", err)
			}
		}
	})
}

func TestAdmit_ConcurrentOverlapsAdmitOne(t *testing.T) {
	f := newFixture(t, 4)

	const attempts = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		admitted  int
		conflicts int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.Admit(context.Background(), f.input(jun(1), jun(5), 2))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				admitted++
			case errors.Is(err, reservation.ErrDateRangeConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, admitted)
	assert.Equal(t, attempts-1, conflicts)
}

func TestCancelReservation_Twice(t *testing.T) {
	f := newFixture(t, 4)
	ctx := context.Background()

	r, err := f.service.Admit(ctx, f.input(jun(1), jun(2), 1))
	require.NoError(t, err)

	require.NoError(t, f.service.CancelReservation(ctx, r.ID))
	assert.ErrorIs(t, f.service.CancelReservation(ctx, r.ID), reservation.ErrReservationNotFound)

	_, err = f.service.GetReservation(ctx, r.ID)
	assert.ErrorIs(t, err, reservation.ErrReservationNotFound)

	_, err = f.service.Admit(ctx, f.input(jun(1), jun(2), 1))
	assert.NoError(t, err, "cancelled dates are free again")
}
