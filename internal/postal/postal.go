// Package postal defines the address lookup contract used to enrich listings.
package postal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrNotFound is returned when a postal code has no known address.
var ErrNotFound = errors.New("postal code not found")

// Address is a structured address resolved from a postal code.
type Address struct {
	PostalCode string `json:"postal_code"`
	Street     string `json:"street"`
	District   string `json:"district"`
	City       string `json:"city"`
	State      string `json:"state"`
}

// Format renders "street, district - city/state".
func (a Address) Format() string {
	return fmt.Sprintf("%s, %s - %s/%s", a.Street, a.District, a.City, a.State)
}

// Lookup resolves a postal code to an address.
type Lookup interface {
	Lookup(ctx context.Context, code string) (*Address, error)
}

// Normalize strips separators and reports whether the result is an
// eight-digit code.
func Normalize(code string) (string, bool) {
	digits := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsDigit(r):
			return r
		case r == '-' || r == '.' || unicode.IsSpace(r):
			return -1
		default:
			return 'x'
		}
	}, code)
	if len(digits) != 8 || strings.ContainsRune(digits, 'x') {
		return "", false
	}
	return digits, true
}
