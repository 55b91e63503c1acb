// Package pagination holds the page/size/total-count envelope shared by every
// list endpoint. Pages are 1-based.
package pagination

import (
	"math"
	"strconv"
	"strings"

	"github.com/keyxmakerx/gallery/internal/apperror"
)

// ListOptions holds pagination parameters for list queries.
type ListOptions struct {
	Page    int
	PerPage int
}

// Offset returns the SQL OFFSET value for the current page. It never
// overflows: an offset past math.MaxInt saturates there.
func (o ListOptions) Offset() int {
	if o.Page < 1 || o.PerPage < 1 {
		return 0
	}
	if o.Page-1 > (math.MaxInt-o.PerPage)/o.PerPage {
		return math.MaxInt - o.PerPage
	}
	return (o.Page - 1) * o.PerPage
}

// Window returns the bounds of the slice [offset, offset+limit) clipped to
// a collection of total items. Negative inputs and offsets past the end give
// an empty window.
func Window(total, offset, limit int) (start, end int) {
	if offset < 0 || limit < 1 || offset >= total {
		return total, total
	}
	if limit > total-offset {
		return offset, total
	}
	return offset, offset + limit
}

// Limits bounds what a caller may request.
type Limits struct {
	DefaultPerPage int
	MaxPerPage     int
}

// Parse reads raw page and perPage query values. Empty values take the
// defaults (page 1, DefaultPerPage). Non-integers and values below 1 are
// rejected; perPage above MaxPerPage is clamped. A page whose offset would not
// fit in an int is rejected as well.
func Parse(page, perPage string, limits Limits) (ListOptions, error) {
	opts := ListOptions{Page: 1, PerPage: limits.DefaultPerPage}

	if s := strings.TrimSpace(page); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return ListOptions{}, apperror.NewBadRequest("page must be a positive integer")
		}
		opts.Page = n
	}

	if s := strings.TrimSpace(perPage); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return ListOptions{}, apperror.NewBadRequest("perPage must be a positive integer")
		}
		opts.PerPage = min(n, limits.MaxPerPage)
	}

	if opts.Page-1 > (math.MaxInt-opts.PerPage)/opts.PerPage {
		return ListOptions{}, apperror.NewBadRequest("page is too large")
	}

	return opts, nil
}

// Page is one page of results plus enough to navigate the rest.
type Page[T any] struct {
	Items      []T `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PerPage    int `json:"perPage"`
	TotalPages int `json:"totalPages"`
}

// NewPage wraps items with the counts for opts. A nil slice is replaced by
// an empty one so the JSON is [] rather than null.
func NewPage[T any](items []T, total int, opts ListOptions) Page[T] {
	if items == nil {
		items = []T{}
	}
	p := Page[T]{Items: items, Total: total, Page: opts.Page, PerPage: opts.PerPage}
	if opts.PerPage > 0 {
		p.TotalPages = (total + opts.PerPage - 1) / opts.PerPage
	}
	return p
}
