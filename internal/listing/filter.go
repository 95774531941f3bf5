package listing

import (
	"cmp"
	"math"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"casanexus/internal/paging"
	"casanexus/internal/validator"
)

// Criteria holds the optional filter bounds. A nil bound does not constrain;
// a set bound is inclusive. Active bounds combine with AND.
type Criteria struct {
	PriceMax *float64
	PriceMin *float64
	RoomsMax *int
	RoomsMin *int
	BathsMax *int
	BathsMin *int
}

// Matches reports whether l satisfies every active bound.
func (c Criteria) Matches(l Listing) bool {
	return atMost(c.PriceMax, l.Price) && atLeast(c.PriceMin, l.Price) &&
		atMost(c.RoomsMax, l.Rooms) && atLeast(c.RoomsMin, l.Rooms) &&
		atMost(c.BathsMax, l.Baths) && atLeast(c.BathsMin, l.Baths)
}

func atMost[T cmp.Ordered](bound *T, v T) bool  { return bound == nil || v <= *bound }
func atLeast[T cmp.Ordered](bound *T, v T) bool { return bound == nil || v >= *bound }

// CriteriaFromQuery reads priceMax, priceMin, roomsMax, roomsMin, bathsMax and
// bathsMin. Absent or empty parameters leave the bound unset; malformed ones
// produce a *validator.Error.
func CriteriaFromQuery(qs url.Values) (Criteria, error) {
	v := validator.New()
	c := Criteria{
		PriceMax: readFloat(qs, "priceMax", v),
		PriceMin: readFloat(qs, "priceMin", v),
		RoomsMax: readInt(qs, "roomsMax", v),
		RoomsMin: readInt(qs, "roomsMin", v),
		BathsMax: readInt(qs, "bathsMax", v),
		BathsMin: readInt(qs, "bathsMin", v),
	}
	return c, v.Err()
}

func readFloat(qs url.Values, key string, v *validator.Validator) *float64 {
	s := strings.TrimSpace(qs.Get(key))
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		v.AddError(key, "must be a number")
		return nil
	}
	return &f
}

func readInt(qs url.Values, key string, v *validator.Validator) *int {
	s := strings.TrimSpace(qs.Get(key))
	if s == "" {
		return nil
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		v.AddError(key, "must be an integer")
		return nil
	}
	return &i
}

// SortSafeList holds the accepted sort keys.
var SortSafeList = []string{"name", "price", "rooms", "baths", "capacity", "created_at"}

// DefaultSort orders by creation time.
const DefaultSort = "created_at"

// Sort orders items in place by the request's sort key, id breaking ties.
func Sort(items []Listing, req paging.Request) {
	key := req.SortColumn(SortSafeList, DefaultSort)
	desc := req.Descending()

	slices.SortStableFunc(items, func(a, b Listing) int {
		var c int
		switch key {
		case "name":
			c = cmp.Compare(a.Name, b.Name)
		case "price":
			c = cmp.Compare(a.Price, b.Price)
		case "rooms":
			c = cmp.Compare(a.Rooms, b.Rooms)
		case "baths":
			c = cmp.Compare(a.Baths, b.Baths)
		case "capacity":
			c = cmp.Compare(a.Capacity, b.Capacity)
		default:
			c = a.CreatedAt.Compare(b.CreatedAt)
		}
		if desc {
			c = -c
		}
		if c == 0 {
			c = strings.Compare(a.ID.String(), b.ID.String())
		}
		return c
	})
}

// FilterPage filters the complete collection, sorts the matches and then
// slices out the requested page. TotalElements is the number of matches.
func FilterPage(all []Listing, c Criteria, req paging.Request) paging.Page[Listing] {
	matched := make([]Listing, 0, len(all))
	for _, l := range all {
		if c.Matches(l) {
			matched = append(matched, l)
		}
	}
	Sort(matched, req)
	return paging.Slice(matched, req)
}
