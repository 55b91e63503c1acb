// Package photos manages the photos inside an album. Photos carry their own
// tag sets, and album photo lists are paged with the same id-then-rows fetch
// the album list uses, so each photo appears once however many tags it has.
package photos

import (
	"time"

	"github.com/keyxmakerx/gallery/internal/widgets/tags"
)

// Photo is one photo's metadata. Image bytes are stored elsewhere.
type Photo struct {
	ID          int64      `json:"id"`
	AlbumID     int64      `json:"albumId"`
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Location    *string    `json:"location"`
	Keywords    *string    `json:"keywords"`
	UploadDate  time.Time  `json:"uploadDate"`
	CaptureDate *time.Time `json:"captureDate"`
	Tags        []tags.Tag `json:"tags"`
}

// TakenAt is the capture date when known, else the upload date.
func (p *Photo) TakenAt() time.Time {
	if p.CaptureDate != nil {
		return *p.CaptureDate
	}
	return p.UploadDate
}

// PhotoRow is a photo joined with at most one of its tags.
type PhotoRow struct {
	Photo Photo
	Tag   *tags.Tag
}

// CreatePhotoRequest holds the data submitted when adding a photo to an album.
type CreatePhotoRequest struct {
	Title       *string    `json:"title" validate:"omitempty,max=255"`
	Description *string    `json:"description" validate:"omitempty,max=1000"`
	Location    *string    `json:"location" validate:"omitempty,max=255"`
	Keywords    *string    `json:"keywords" validate:"omitempty,max=500"`
	UploadDate  *time.Time `json:"uploadDate"`
	CaptureDate *time.Time `json:"captureDate"`
	TagIDs      []int64    `json:"tagIds"`
}
