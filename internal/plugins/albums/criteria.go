package albums

import (
	"strconv"
	"strings"

	"github.com/keyxmakerx/gallery/internal/apperror"
)

// RawCriteria holds the filter query parameters exactly as received.
type RawCriteria struct {
	Keyword          string
	Event            string
	Year             string
	TagName          string
	ContributorLogin string
}

// Criteria is the canonical filter set. An empty string or nil Year means
// the criterion is absent and matches every album. Present string values are
// trimmed; matching on them is case-insensitive substring containment.
type Criteria struct {
	Keyword          string
	Event            string
	Year             *int
	TagName          string
	ContributorLogin string
}

// NormalizeCriteria turns raw parameters into Criteria. Blank and
// whitespace-only values become absent. The only failure is a year that is
// present but not an integer.
func NormalizeCriteria(raw RawCriteria) (Criteria, error) {
	c := Criteria{
		Keyword:          strings.TrimSpace(raw.Keyword),
		Event:            strings.TrimSpace(raw.Event),
		TagName:          strings.TrimSpace(raw.TagName),
		ContributorLogin: strings.TrimSpace(raw.ContributorLogin),
	}

	if y := strings.TrimSpace(raw.Year); y != "" {
		n, err := strconv.Atoi(y)
		if err != nil {
			return Criteria{}, apperror.NewBadRequest("year must be an integer")
		}
		c.Year = &n
	}

	return c, nil
}

// IsEmpty reports whether no criterion is present.
func (c Criteria) IsEmpty() bool {
	return c.Keyword == "" && c.Event == "" && c.Year == nil && c.TagName == "" && c.ContributorLogin == ""
}

// SortBy selects one of the two gallery orderings.
type SortBy string

const (
	// SortByEvent groups albums by event: albums without an event first
	// (by name), then events in ascending ordinal order (by name within).
	SortByEvent SortBy = "EVENT"

	// SortByDate orders by effective date, most recent first.
	SortByDate SortBy = "DATE"
)

// ParseSortBy maps a raw sortBy value to a SortBy. Matching ignores case and
// surrounding space. Blank input gives SortByEvent with ok true; anything
// unrecognized also gives SortByEvent but with ok false so the caller can
// warn. It never fails.
func ParseSortBy(s string) (sortBy SortBy, ok bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return SortByEvent, true
	case string(SortByEvent):
		return SortByEvent, true
	case string(SortByDate):
		return SortByDate, true
	default:
		return SortByEvent, false
	}
}

// Sortable fields accepted by the generic list sort parameter.
const (
	FieldID           = "id"
	FieldName         = "name"
	FieldEvent        = "event"
	FieldCreationDate = "creationDate"
	FieldOverrideDate = "overrideDate"
)

// FieldSort is an explicit single-field ordering requested with
// sort=<field>[,asc|desc]. Ties always fall back to id ascending.
type FieldSort struct {
	Field string
	Desc  bool
}

// ParseFieldSort reads a sort parameter. Blank input yields nil (no field
// sort). Unknown fields and directions are rejected with 400, unlike
// sortBy, because a typo here would silently return a differently ordered
// page.
func ParseFieldSort(s string) (*FieldSort, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	field, dir, _ := strings.Cut(s, ",")
	field = strings.TrimSpace(field)
	fs := &FieldSort{}

	switch field {
	case FieldID, FieldName, FieldEvent, FieldCreationDate, FieldOverrideDate:
		fs.Field = field
	default:
		return nil, apperror.NewBadRequest("unknown sort field " + strconv.Quote(field))
	}

	switch strings.ToLower(strings.TrimSpace(dir)) {
	case "", "asc":
	case "desc":
		fs.Desc = true
	default:
		return nil, apperror.NewBadRequest("sort direction must be asc or desc")
	}

	return fs, nil
}
