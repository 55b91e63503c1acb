// Package tags implements the tags widget. Tags are global labels with a
// unique display name; albums and photos attach them through the album_tags
// and photo_tags join tables. This widget owns the tags table, both join
// tables, and the CRUD API under /api/v1/tags.
//
// Tag sets are sets: attaching a tag twice is a no-op and insertion order
// carries no meaning. Reads return tags ordered by name.
package tags

import "time"

// Tag is a label that can be attached to albums and photos.
type Tag struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Owner identifies which kind of record a tag set belongs to and where its
// links are stored.
type Owner struct {
	kind   string
	table  string
	column string
}

// String returns the owner kind, used in logs and errors.
func (o Owner) String() string { return o.kind }

var (
	// AlbumOwner links tags to albums through album_tags.
	AlbumOwner = Owner{kind: "album", table: "album_tags", column: "album_id"}

	// PhotoOwner links tags to photos through photo_tags.
	PhotoOwner = Owner{kind: "photo", table: "photo_tags", column: "photo_id"}
)

// --- Request DTOs (bound from HTTP requests) ---

// CreateTagRequest holds the data submitted when creating a new tag.
type CreateTagRequest struct {
	Name string `json:"name" validate:"required,max=255"`
}

// UpdateTagRequest holds the data submitted when renaming a tag.
type UpdateTagRequest struct {
	Name string `json:"name" validate:"required,max=255"`
}
