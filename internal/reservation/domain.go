package reservation

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"casanexus/internal/listing"
	"casanexus/internal/validator"
)

// Reason is the machine-readable cause of a refused admission.
type Reason string

const (
	ReasonListingNotFound   Reason = "listing_not_found"
	ReasonInvalidDateRange  Reason = "invalid_date_range"
	ReasonCheckInInPast     Reason = "check_in_in_past"
	ReasonDateRangeConflict Reason = "date_range_conflict"
	ReasonCapacityExceeded  Reason = "capacity_exceeded"
)

// AdmissionError is a client-input error refusing a reservation.
type AdmissionError struct {
	Reason  Reason `json:"reason"`
	Message string `json:"message"`
}

func (e *AdmissionError) Error() string { return e.Message }

var (
	ErrListingNotFound = &AdmissionError{
		Reason:  ReasonListingNotFound,
		Message: "listing not found",
	}
	ErrInvalidDateRange = &AdmissionError{
		Reason:  ReasonInvalidDateRange,
		Message: "check-in must not be after check-out",
	}
	ErrCheckInInPast = &AdmissionError{
		Reason:  ReasonCheckInInPast,
		Message: "check-in must not be before today",
	}
	ErrDateRangeConflict = &AdmissionError{
		Reason:  ReasonDateRangeConflict,
		Message: "listing is already reserved for part of these dates",
	}
	ErrCapacityExceeded = &AdmissionError{
		Reason:  ReasonCapacityExceeded,
		Message: "party size exceeds listing capacity",
	}
)

var ErrReservationNotFound = errors.New("reservation not found")

// Reservation is a booked stay over [CheckIn, CheckOut).
type Reservation struct {
	ID               uuid.UUID        `json:"id"`
	ListingID        uuid.UUID        `json:"listing_id"`
	Listing          *listing.Listing `json:"listing,omitempty"`
	ClientName       string           `json:"client_name"`
	ClientEmail      string           `json:"client_email"`
	ClientNationalID string           `json:"client_national_id"`
	CheckIn          Date             `json:"check_in"`
	CheckOut         Date             `json:"check_out"`
	PartySize        int              `json:"party_size"`
	CreatedAt        time.Time        `json:"created_at"`
}

// AdmitInput is a candidate reservation.
type AdmitInput struct {
	ListingID        uuid.UUID `json:"listing_id"`
	ClientName       string    `json:"client_name"`
	ClientEmail      string    `json:"client_email"`
	ClientNationalID string    `json:"client_national_id"`
	CheckIn          Date      `json:"check_in"`
	CheckOut         Date      `json:"check_out"`
	PartySize        int       `json:"party_size"`
}

// Validate checks presence of every field. Business rules on dates and
// capacity are admission errors, not validation failures.
func (in AdmitInput) Validate() error {
	v := validator.New()

	v.Check(in.ListingID != uuid.Nil, "listing_id", "must be provided")
	v.Check(validator.NotBlank(in.ClientName), "client_name", "must be provided")
	v.Check(validator.NotBlank(in.ClientEmail), "client_email", "must be provided")
	v.Check(validator.NotBlank(in.ClientNationalID), "client_national_id", "must be provided")
	v.Check(!in.CheckIn.IsZero(), "check_in", "must be provided")
	v.Check(!in.CheckOut.IsZero(), "check_out", "must be provided")
	v.Check(in.PartySize > 0, "party_size", "must be greater than zero")

	return v.Err()
}

// Overlaps reports whether the half-open stays [aIn, aOut) and [bIn, bOut)
// share a night. A stay ending on the day another begins does not overlap.
func Overlaps(aIn, aOut, bIn, bOut Date) bool {
	return aIn.Before(bOut) && bIn.Before(aOut)
}

// Event types recorded by the PostgreSQL store.
const (
	AggregateType = "reservation"

	EventAdmitted  = "ReservationAdmitted"
	EventCancelled = "ReservationCancelled"
)

// CancelledEvent is the payload of EventCancelled.
type CancelledEvent struct {
	ID        uuid.UUID `json:"id"`
	ListingID uuid.UUID `json:"listing_id"`
}
