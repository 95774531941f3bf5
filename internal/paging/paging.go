// Package paging holds the page request and page result types shared by the
// stores and the HTTP layer. Pages are zero-based.
package paging

import (
	"math"
	"net/url"
	"strconv"
	"strings"
)

const (
	DefaultSize = 20
	MaxSize     = 100
)

// Request describes which slice of an ordered collection to return.
type Request struct {
	Page int    // zero-based page index
	Size int    // items per page
	Sort string // column from a safe list, "-" prefix for descending
}

// Offset returns the number of items skipped before the page starts. It
// saturates at math.MaxInt instead of overflowing.
func (r Request) Offset() int {
	if r.Page <= 0 || r.Size <= 0 {
		return 0
	}
	if r.Page > math.MaxInt/r.Size {
		return math.MaxInt
	}
	return r.Page * r.Size
}

// Limit returns the page size.
func (r Request) Limit() int { return r.Size }

// SortColumn returns the requested sort key if it is in safeList, otherwise
// fallback. The "-" prefix is stripped.
func (r Request) SortColumn(safeList []string, fallback string) string {
	key := strings.TrimPrefix(r.Sort, "-")
	for _, safe := range safeList {
		if key == safe {
			return key
		}
	}
	return fallback
}

// Descending reports whether the sort key carries the "-" prefix.
func (r Request) Descending() bool {
	return strings.HasPrefix(r.Sort, "-")
}

// Normalize clamps page and size to sane values.
func (r Request) Normalize() Request {
	if r.Page < 0 {
		r.Page = 0
	}
	if r.Size < 1 {
		r.Size = DefaultSize
	}
	if r.Size > MaxSize {
		r.Size = MaxSize
	}
	r.Page = min(r.Page, math.MaxInt/r.Size)
	return r
}

// FromQuery reads page, size and sort from query parameters. Missing or
// malformed numbers fall back to defaults.
func FromQuery(qs url.Values) Request {
	return Request{
		Page: readInt(qs, "page", 0),
		Size: readInt(qs, "size", DefaultSize),
		Sort: qs.Get("sort"),
	}.Normalize()
}

func readInt(qs url.Values, key string, defaultValue int) int {
	s := qs.Get(key)
	if s == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}

// Page is one slice of a collection plus the size of the whole collection.
type Page[T any] struct {
	Content       []T `json:"content"`
	Page          int `json:"page"`
	Size          int `json:"size"`
	TotalElements int `json:"total_elements"`
	TotalPages    int `json:"total_pages"`
}

// New builds a Page, computing the page count from total and req.Size.
func New[T any](content []T, req Request, total int) Page[T] {
	if content == nil {
		content = []T{}
	}
	pages := 0
	if req.Size > 0 {
		pages = (total + req.Size - 1) / req.Size
	}
	return Page[T]{
		Content:       content,
		Page:          req.Page,
		Size:          req.Size,
		TotalElements: total,
		TotalPages:    pages,
	}
}

// Slice returns the page of items described by req, clamped to len(items).
// A start past the end yields an empty page; the total is always len(items).
func Slice[T any](items []T, req Request) Page[T] {
	start := req.Offset()
	if start < 0 || start > len(items) {
		start = len(items)
	}
	end := start + max(req.Limit(), 0)
	if end > len(items) {
		end = len(items)
	}
	return New(items[start:end], req, len(items))
}
