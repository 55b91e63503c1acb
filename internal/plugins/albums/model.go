// Package albums is the album catalogue and its query engine: filtering on
// up to five independent criteria, the EVENT and DATE gallery orderings,
// paging over albums while their tag sets are joined in, and the distinct
// values that populate the filter menus.
//
// Paged reads take two passes inside one storage snapshot. The first pass
// filters, orders and pages album ids over the albums table alone, so LIMIT
// and COUNT see one row per album. The second pass fetches exactly those ids
// with tags joined, and the fan-out rows are folded back into albums in the
// first pass's order (see internal/fanout).
package albums

import (
	"strings"
	"time"

	"github.com/keyxmakerx/gallery/internal/widgets/tags"
)

// Album is a photo album. Event, OverrideDate and the free-text fields are
// optional. CreationDate is set once when the album is created.
type Album struct {
	ID                   int64      `json:"id"`
	Name                 string     `json:"name"`
	Event                *string    `json:"event"`
	CreationDate         time.Time  `json:"creationDate"`
	OverrideDate         *time.Time `json:"overrideDate"`
	Keywords             *string    `json:"keywords"`
	Description          *string    `json:"description"`
	Thumbnail            []byte     `json:"thumbnail,omitempty"`
	ThumbnailContentType *string    `json:"thumbnailContentType,omitempty"`
	UserID               *int64     `json:"userId"`
	OwnerLogin           *string    `json:"ownerLogin,omitempty"`
	Tags                 []tags.Tag `json:"tags"`
}

// EffectiveDate is the override date when set, else the creation date.
func (a *Album) EffectiveDate() time.Time {
	if a.OverrideDate != nil {
		return *a.OverrideDate
	}
	return a.CreationDate
}

// blankRunes is the POSIX [[:space:]] class that MariaDB matches in
// blankEvent. Unicode spaces such as U+00A0 are not blank.
const blankRunes = " \t\n\v\f\r"

// HasEvent reports whether the album carries a non-blank event. Blank and
// whitespace-only events are stored as given but group with null ones.
func (a *Album) HasEvent() bool {
	return a.Event != nil && strings.Trim(*a.Event, blankRunes) != ""
}

// AlbumRow is one row of the relationship fetch: an album joined with at
// most one of its tags. An album with N tags yields N rows; one without tags
// (or fetched without tags) yields a single row with a nil Tag.
type AlbumRow struct {
	Album Album
	Tag   *tags.Tag
}

// FilterOptions lists the values present across all albums, for populating
// filter controls.
type FilterOptions struct {
	// Events are the distinct non-blank events, ascending.
	Events []string `json:"events"`

	// Years are the distinct creation years, most recent first.
	Years []int `json:"years"`

	// Tags are the names of tags attached to at least one album, ascending.
	Tags []string `json:"tags"`

	// Contributors are the logins owning at least one album, ascending.
	Contributors []string `json:"contributors"`
}

// Query is what the first pass filters, orders and pages by.
type Query struct {
	Criteria  Criteria
	SortBy    SortBy
	FieldSort *FieldSort
	Limit     int
	Offset    int
}

// --- Request DTOs (bound from HTTP requests) ---

// AlbumInput is the full album body accepted by create (POST) and replace
// (PUT). CreationDate is honoured on create only.
type AlbumInput struct {
	ID                   *int64     `json:"id"`
	Name                 string     `json:"name" validate:"required,min=3,max=255"`
	Event                *string    `json:"event" validate:"omitempty,max=255"`
	CreationDate         *time.Time `json:"creationDate"`
	OverrideDate         *time.Time `json:"overrideDate"`
	Keywords             *string    `json:"keywords" validate:"omitempty,max=500"`
	Description          *string    `json:"description"`
	Thumbnail            []byte     `json:"thumbnail"`
	ThumbnailContentType string     `json:"thumbnailContentType" validate:"required_with=Thumbnail,max=255"`
	UserID               *int64     `json:"userId"`
	TagIDs               []int64    `json:"tagIds"`
}

// AlbumPatch is the partial update body. Absent and null fields leave the
// stored value unchanged; TagIDs, when present, replaces the tag set.
type AlbumPatch struct {
	ID                   *int64     `json:"id"`
	Name                 *string    `json:"name"`
	Event                *string    `json:"event"`
	OverrideDate         *time.Time `json:"overrideDate"`
	Keywords             *string    `json:"keywords"`
	Description          *string    `json:"description"`
	Thumbnail            []byte     `json:"thumbnail"`
	ThumbnailContentType *string    `json:"thumbnailContentType"`
	UserID               *int64     `json:"userId"`
	TagIDs               *[]int64   `json:"tagIds"`
}
