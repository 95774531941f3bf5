package listing

import (
	"errors"
	"math"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"casanexus/internal/validator"
)

// MaxDescriptionLength bounds Listing.Description, in characters.
const MaxDescriptionLength = 1000

// MaxPrice is the first price the NUMERIC(12, 2) column cannot hold.
const MaxPrice = 1e10

var (
	ErrNotFound = errors.New("listing not found")
	ErrInUse    = errors.New("listing has reservations")
)

// Listing is a rentable property.
type Listing struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Address     string    `json:"address"`
	Description string    `json:"description"`
	Latitude    *float64  `json:"latitude,omitempty"`
	Longitude   *float64  `json:"longitude,omitempty"`
	Rooms       int       `json:"rooms"`
	Baths       int       `json:"baths"`
	Price       float64   `json:"price"`
	Capacity    int       `json:"capacity"`
	PostalCode  *string   `json:"postal_code,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Input carries the caller-supplied fields for create and full replace.
type Input struct {
	Name        string   `json:"name"`
	Address     string   `json:"address"`
	Description string   `json:"description"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	Rooms       int      `json:"rooms"`
	Baths       int      `json:"baths"`
	Price       float64  `json:"price"`
	Capacity    int      `json:"capacity"`
	PostalCode  *string  `json:"postal_code"`
}

// Validate returns a *validator.Error listing every failing field.
// An empty address is accepted when a postal code is present, since
// enrichment may fill it in.
func (in Input) Validate() error {
	v := validator.New()

	v.Check(validator.NotBlank(in.Name), "name", "must be provided")
	v.Check(validator.NotBlank(in.Address) || (in.PostalCode != nil && validator.NotBlank(*in.PostalCode)),
		"address", "must be provided")
	v.Check(utf8.RuneCountInString(in.Description) <= MaxDescriptionLength,
		"description", "must not be more than 1000 characters long")
	v.Check(in.Rooms > 0, "rooms", "must be greater than zero")
	v.Check(in.Baths >= 0, "baths", "must not be negative")
	v.Check(in.Price > 0, "price", "must be greater than zero")
	v.Check(in.Price < MaxPrice, "price", "must be less than 10000000000")
	v.Check(hasCents(in.Price), "price", "must have at most two decimal places")
	v.Check(in.Capacity > 0, "capacity", "must be greater than zero")
	if in.Latitude != nil {
		v.Check(validator.Between(*in.Latitude, -90, 90), "latitude", "must be between -90 and 90")
	}
	if in.Longitude != nil {
		v.Check(validator.Between(*in.Longitude, -180, 180), "longitude", "must be between -180 and 180")
	}

	return v.Err()
}

// hasCents reports whether p is a whole number of cents, allowing for
// binary floating point error.
func hasCents(p float64) bool {
	cents := p * 100
	return math.Abs(cents-math.Round(cents)) < 1e-6
}

// apply copies every input field onto l.
func (in Input) apply(l *Listing) {
	l.Name = in.Name
	l.Address = in.Address
	l.Description = in.Description
	l.Latitude = in.Latitude
	l.Longitude = in.Longitude
	l.Rooms = in.Rooms
	l.Baths = in.Baths
	l.Price = in.Price
	l.Capacity = in.Capacity
	l.PostalCode = in.PostalCode
}

// Event types recorded by the PostgreSQL store.
const (
	AggregateType = "listing"

	EventSaved   = "ListingSaved"
	EventDeleted = "ListingDeleted"
)

// DeletedEvent is the payload of EventDeleted. EventSaved carries the Listing.
type DeletedEvent struct {
	ID uuid.UUID `json:"id"`
}
