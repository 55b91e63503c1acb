package photos

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/keyxmakerx/gallery/internal/apperror"
	"github.com/keyxmakerx/gallery/internal/fanout"
	"github.com/keyxmakerx/gallery/internal/metrics"
	"github.com/keyxmakerx/gallery/internal/pagination"
	"github.com/keyxmakerx/gallery/internal/sanitize"
	"github.com/keyxmakerx/gallery/internal/validation"
	"github.com/keyxmakerx/gallery/internal/widgets/tags"
)

// AlbumFinder checks that a parent album exists. Satisfied by
// albums.AlbumService.
type AlbumFinder interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

// PhotoService defines the business logic contract for photos.
type PhotoService interface {
	Create(ctx context.Context, albumID int64, req CreatePhotoRequest) (*Photo, error)

	// GetByID reports a missing photo as found == false.
	GetByID(ctx context.Context, id int64) (photo *Photo, found bool, err error)

	Delete(ctx context.Context, id int64) error

	// ListByAlbum pages an album's photos, most recently taken first, with
	// tags loaded. NotFound if the album does not exist.
	ListByAlbum(ctx context.Context, albumID int64, opts pagination.ListOptions) (pagination.Page[Photo], error)
}

type photoService struct {
	repo   PhotoRepository
	tags   tags.TagService
	albums AlbumFinder
	now    func() time.Time
}

// NewPhotoService creates a new PhotoService.
func NewPhotoService(repo PhotoRepository, tagSvc tags.TagService, albums AlbumFinder) PhotoService {
	return &photoService{repo: repo, tags: tagSvc, albums: albums, now: time.Now}
}

func (s *photoService) Create(ctx context.Context, albumID int64, req CreatePhotoRequest) (*Photo, error) {
	req.Title = sanitize.TextPtr(req.Title)
	req.Description = sanitize.TextPtr(req.Description)
	req.Location = sanitize.TextPtr(req.Location)
	req.Keywords = sanitize.TextPtr(req.Keywords)
	req.TagIDs = tags.Dedupe(req.TagIDs)

	if err := validation.Struct(&req); err != nil {
		return nil, err
	}
	if err := s.requireAlbum(ctx, albumID); err != nil {
		return nil, err
	}
	if err := s.tags.ValidateIDs(ctx, req.TagIDs); err != nil {
		return nil, err
	}

	uploaded := s.now()
	if req.UploadDate != nil {
		uploaded = *req.UploadDate
	}
	photo := &Photo{
		AlbumID:     albumID,
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		Keywords:    req.Keywords,
		UploadDate:  uploaded.UTC().Truncate(time.Microsecond),
	}
	if req.CaptureDate != nil {
		t := req.CaptureDate.UTC().Truncate(time.Microsecond)
		photo.CaptureDate = &t
	}

	err := s.repo.Transact(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, photo); err != nil {
			return err
		}
		if err := s.tags.SetTags(ctx, tags.PhotoOwner, photo.ID, req.TagIDs); err != nil {
			return fmt.Errorf("setting tags on photo %d: %w", photo.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("photo created", slog.Int64("photo_id", photo.ID), slog.Int64("album_id", albumID))

	created, found, err := s.GetByID(ctx, photo.ID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperror.NewNotFound("photo not found")
	}
	return created, nil
}

func (s *photoService) GetByID(ctx context.Context, id int64) (*Photo, bool, error) {
	rows, err := s.repo.FetchRows(ctx, []int64{id})
	if err != nil {
		return nil, false, fmt.Errorf("fetching photo %d: %w", id, err)
	}
	photos, _ := assemble([]int64{id}, rows)
	if len(photos) == 0 {
		return nil, false, nil
	}
	return &photos[0], true, nil
}

func (s *photoService) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	slog.Info("photo deleted", slog.Int64("photo_id", id))
	return nil
}

func (s *photoService) ListByAlbum(ctx context.Context, albumID int64, opts pagination.ListOptions) (pagination.Page[Photo], error) {
	if err := s.requireAlbum(ctx, albumID); err != nil {
		return pagination.Page[Photo]{}, err
	}

	var (
		ids   []int64
		total int
		rows  []PhotoRow
	)
	err := s.repo.Snapshot(ctx, func(ctx context.Context) error {
		var err error

		start := time.Now()
		ids, total, err = s.repo.ListIDsByAlbum(ctx, albumID, opts.PerPage, opts.Offset())
		metrics.RecordQuery("photos_list_ids", time.Since(start), err)
		if err != nil {
			return fmt.Errorf("listing photo ids: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		start = time.Now()
		rows, err = s.repo.FetchRows(ctx, ids)
		metrics.RecordQuery("photos_fetch_rows", time.Since(start), err)
		if err != nil {
			return fmt.Errorf("fetching photo rows: %w", err)
		}
		return nil
	})
	if err != nil {
		return pagination.Page[Photo]{}, err
	}

	photos, missing := assemble(ids, rows)
	if missing > 0 {
		slog.Warn("photos vanished between id and fetch pass",
			slog.Int64("album_id", albumID),
			slog.Int("missing", missing),
		)
		metrics.RecordFetchMissing("photo", missing)
	}
	return pagination.NewPage(photos, total, opts), nil
}

func (s *photoService) requireAlbum(ctx context.Context, albumID int64) error {
	ok, err := s.albums.Exists(ctx, albumID)
	if err != nil {
		return fmt.Errorf("checking album %d: %w", albumID, err)
	}
	if !ok {
		return apperror.NewNotFound("album not found")
	}
	return nil
}

// assemble folds tag rows into photos in ids order.
func assemble(ids []int64, rows []PhotoRow) ([]Photo, int) {
	collapsed := fanout.Collapse(rows,
		func(r PhotoRow) int64 { return r.Photo.ID },
		func(r PhotoRow) Photo {
			p := r.Photo
			p.Tags = []tags.Tag{}
			return p
		},
		func(p *Photo, r PhotoRow) {
			if r.Tag != nil && !slices.ContainsFunc(p.Tags, func(t tags.Tag) bool { return t.ID == r.Tag.ID }) {
				p.Tags = append(p.Tags, *r.Tag)
			}
		},
	)
	return fanout.Reorder(ids, collapsed, func(p Photo) int64 { return p.ID })
}
