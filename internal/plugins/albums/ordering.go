package albums

import (
	"cmp"
	"slices"
	"strings"
	"time"
)

// The functions in this file are the in-process forms of the predicate and
// ORDER BY clauses built in query.go. The memory repository runs them
// directly; query_test.go keeps the two forms describing the same order.

// compareEvent orders albums without an event first (the implicit
// Miscellaneous group, by name), then by event, then by name. Strings
// compare by byte value. The final id tie-break makes the order total.
func compareEvent(a, b *Album) int {
	aHas, bHas := a.HasEvent(), b.HasEvent()
	switch {
	case !aHas && bHas:
		return -1
	case aHas && !bHas:
		return 1
	case aHas && bHas:
		if c := strings.Compare(*a.Event, *b.Event); c != 0 {
			return c
		}
	}
	if c := strings.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// compareDate orders by effective date descending, then creation date
// descending, then id descending.
func compareDate(a, b *Album) int {
	if c := b.EffectiveDate().Compare(a.EffectiveDate()); c != 0 {
		return c
	}
	if c := b.CreationDate.Compare(a.CreationDate); c != 0 {
		return c
	}
	return cmp.Compare(b.ID, a.ID)
}

// compareField orders by one field, nulls first when ascending (as MariaDB
// does), with id ascending as the tie-break regardless of direction.
func compareField(fs FieldSort) func(a, b *Album) int {
	return func(a, b *Album) int {
		var c int
		switch fs.Field {
		case FieldID:
			c = cmp.Compare(a.ID, b.ID)
		case FieldName:
			c = strings.Compare(a.Name, b.Name)
		case FieldEvent:
			c = compareOptional(a.Event, b.Event, strings.Compare)
		case FieldCreationDate:
			c = a.CreationDate.Compare(b.CreationDate)
		case FieldOverrideDate:
			c = compareOptional(a.OverrideDate, b.OverrideDate, time.Time.Compare)
		}
		if fs.Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	}
}

func compareOptional[T any](a, b *T, compare func(T, T) int) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	default:
		return compare(*a, *b)
	}
}

// comparatorFor returns the ordering a query asks for. An explicit field
// sort replaces the gallery ordering.
func comparatorFor(sortBy SortBy, fs *FieldSort) func(a, b *Album) int {
	if fs != nil {
		return compareField(*fs)
	}
	if sortBy == SortByDate {
		return compareDate
	}
	return compareEvent
}

// sortAlbums orders albums in place.
func sortAlbums(albums []Album, sortBy SortBy, fs *FieldSort) {
	compare := comparatorFor(sortBy, fs)
	slices.SortFunc(albums, func(a, b Album) int { return compare(&a, &b) })
}

// matches reports whether an album satisfies every present criterion.
// tagNames are the names of the album's tags; a.OwnerLogin must be resolved.
//
// The year test looks at the creation date only, in UTC. The DATE ordering
// uses the effective date; the two are kept apart on purpose.
func (c Criteria) matches(a *Album, tagNames []string) bool {
	if c.Keyword != "" &&
		!containsFold(a.Name, c.Keyword) &&
		!containsFoldPtr(a.Keywords, c.Keyword) &&
		!containsFoldPtr(a.Description, c.Keyword) {
		return false
	}
	if c.Event != "" && !containsFoldPtr(a.Event, c.Event) {
		return false
	}
	if c.Year != nil && a.CreationDate.UTC().Year() != *c.Year {
		return false
	}
	if c.TagName != "" && !slices.ContainsFunc(tagNames, func(n string) bool { return containsFold(n, c.TagName) }) {
		return false
	}
	if c.ContributorLogin != "" && !containsFoldPtr(a.OwnerLogin, c.ContributorLogin) {
		return false
	}
	return true
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func containsFoldPtr(s *string, substr string) bool {
	return s != nil && containsFold(*s, substr)
}
