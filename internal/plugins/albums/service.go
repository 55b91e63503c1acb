package albums

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
	"github.com/keyxmakerx/gallery/internal/plugins/users"
	"github.com/keyxmakerx/gallery/internal/sanitize"
	"github.com/keyxmakerx/gallery/internal/validation"
	"github.com/keyxmakerx/gallery/internal/widgets/tags"
)

// UserFinder resolves album owners. Satisfied by users.UserService.
type UserFinder interface {
	GetByID(ctx context.Context, id int64) (*users.User, error)
}

// ListRequest is a normalized list or search call.
type ListRequest struct {
	Criteria  Criteria
	SortBy    SortBy
	FieldSort *FieldSort
	Page      pagination.ListOptions

	// WithTags loads each album's tag set. Without it Tags is empty.
	WithTags bool
}

// AlbumService defines the business logic contract for albums.
// Handlers call these methods -- they never touch the repository directly.
type AlbumService interface {
	Create(ctx context.Context, in AlbumInput) (*Album, error)

	// GetByID returns the album with tags and owner login. A missing id is
	// reported as found == false, not as an error.
	GetByID(ctx context.Context, id int64) (album *Album, found bool, err error)

	// Exists reports whether an album with the given id exists.
	Exists(ctx context.Context, id int64) (bool, error)

	// Update replaces every field except creationDate. NotFound if id is absent.
	Update(ctx context.Context, id int64, in AlbumInput) (*Album, error)

	// PartialUpdate changes only the fields present in p. NotFound if id is absent.
	PartialUpdate(ctx context.Context, id int64, p AlbumPatch) (*Album, error)

	// Delete removes an album. NotFound if id is absent.
	Delete(ctx context.Context, id int64) error

	// List filters, orders and pages albums.
	List(ctx context.Context, req ListRequest) (pagination.Page[Album], error)

	// Gallery returns every album in the given order, up to the configured cap.
	Gallery(ctx context.Context, sortBy SortBy) ([]Album, error)

	// FilterOptions returns the distinct values present across all albums.
	FilterOptions(ctx context.Context) (*FilterOptions, error)
}

// albumService implements AlbumService.
type albumService struct {
	repo       AlbumRepository
	tags       tags.TagService
	users      UserFinder
	cache      FilterOptionsCache
	maxResults int
	now        func() time.Time
}

// NewAlbumService creates a new AlbumService. maxResults caps Gallery.
func NewAlbumService(repo AlbumRepository, tagSvc tags.TagService, userFinder UserFinder, cache FilterOptionsCache, maxResults int) AlbumService {
	return &albumService{
		repo:       repo,
		tags:       tagSvc,
		users:      userFinder,
		cache:      cache,
		maxResults: maxResults,
		now:        time.Now,
	}
}

// --- Writes ---

// Create validates the input and stores a new album with its tag set.
// creationDate defaults to now.
func (s *albumService) Create(ctx context.Context, in AlbumInput) (*Album, error) {
	if in.ID != nil {
		return nil, apperror.NewBadRequest("a new album cannot already have an ID")
	}

	album, err := s.fromInput(ctx, &in)
	if err != nil {
		return nil, err
	}

	created := s.now()
	if in.CreationDate != nil {
		created = *in.CreationDate
	}
	album.CreationDate = normalizeTime(created)

	err = s.repo.Transact(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, album); err != nil {
			return err
		}
		if err := s.tags.SetTags(ctx, tags.AlbumOwner, album.ID, in.TagIDs); err != nil {
			return fmt.Errorf("setting tags on album %d: %w", album.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx)

	slog.Info("album created", slog.Int64("album_id", album.ID), slog.Int("tags", len(in.TagIDs)))
	return s.reload(ctx, album.ID)
}

// Update replaces an album. The stored creationDate is kept whatever the
// body says.
func (s *albumService) Update(ctx context.Context, id int64, in AlbumInput) (*Album, error) {
	if in.ID != nil && *in.ID != id {
		return nil, apperror.NewBadRequest("album id in body does not match the path")
	}

	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	album, err := s.fromInput(ctx, &in)
	if err != nil {
		return nil, err
	}
	album.ID = id
	album.CreationDate = existing.CreationDate

	err = s.repo.Transact(ctx, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, album); err != nil {
			return err
		}
		if err := s.tags.SetTags(ctx, tags.AlbumOwner, id, in.TagIDs); err != nil {
			return fmt.Errorf("setting tags on album %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx)

	slog.Info("album updated", slog.Int64("album_id", id))
	return s.reload(ctx, id)
}

// PartialUpdate overlays the present fields of p on the stored album and
// validates the result as a whole.
func (s *albumService) PartialUpdate(ctx context.Context, id int64, p AlbumPatch) (*Album, error) {
	if p.ID != nil && *p.ID != id {
		return nil, apperror.NewBadRequest("album id in body does not match the path")
	}

	current, found, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperror.NewNotFound("album not found")
	}

	in := toInput(current)
	applyPatch(&in, p)

	album, err := s.fromInput(ctx, &in)
	if err != nil {
		return nil, err
	}
	album.ID = id
	album.CreationDate = current.CreationDate

	err = s.repo.Transact(ctx, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, album); err != nil {
			return err
		}
		if p.TagIDs == nil {
			return nil
		}
		if err := s.tags.SetTags(ctx, tags.AlbumOwner, id, in.TagIDs); err != nil {
			return fmt.Errorf("setting tags on album %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx)

	slog.Info("album patched", slog.Int64("album_id", id))
	return s.reload(ctx, id)
}

// Delete removes an album by ID.
func (s *albumService) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.cache.Invalidate(ctx)

	slog.Info("album deleted", slog.Int64("album_id", id))
	return nil
}

// fromInput cleans and validates in, checks its references, and returns the
// album it describes. ID and CreationDate are left for the caller.
func (s *albumService) fromInput(ctx context.Context, in *AlbumInput) (*Album, error) {
	in.Name = sanitize.Text(in.Name)
	in.Keywords = sanitize.TextPtr(in.Keywords)
	in.Description = sanitize.TextPtr(in.Description)
	in.TagIDs = tags.Dedupe(in.TagIDs)
	if len(in.Thumbnail) == 0 {
		in.Thumbnail = nil
		in.ThumbnailContentType = ""
	}

	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	if in.UserID != nil {
		if _, err := s.users.GetByID(ctx, *in.UserID); err != nil {
			if apperror.IsNotFound(err) {
				return nil, apperror.NewFieldValidation("userId", fmt.Sprintf("user %d does not exist", *in.UserID))
			}
			return nil, fmt.Errorf("checking album owner: %w", err)
		}
	}
	if err := s.tags.ValidateIDs(ctx, in.TagIDs); err != nil {
		return nil, err
	}

	album := &Album{
		Name:        in.Name,
		Event:       in.Event,
		Keywords:    in.Keywords,
		Description: in.Description,
		Thumbnail:   in.Thumbnail,
		UserID:      in.UserID,
	}
	if in.OverrideDate != nil {
		t := normalizeTime(*in.OverrideDate)
		album.OverrideDate = &t
	}
	if in.ThumbnailContentType != "" {
		ct := in.ThumbnailContentType
		album.ThumbnailContentType = &ct
	}
	return album, nil
}

// toInput turns a stored album back into a full write body.
func toInput(a *Album) AlbumInput {
	in := AlbumInput{
		Name:         a.Name,
		Event:        a.Event,
		OverrideDate: a.OverrideDate,
		Keywords:     a.Keywords,
		Description:  a.Description,
		Thumbnail:    a.Thumbnail,
		UserID:       a.UserID,
	}
	if a.ThumbnailContentType != nil {
		in.ThumbnailContentType = *a.ThumbnailContentType
	}
	for _, t := range a.Tags {
		in.TagIDs = append(in.TagIDs, t.ID)
	}
	return in
}

// applyPatch copies every non-nil field of p onto in.
func applyPatch(in *AlbumInput, p AlbumPatch) {
	if p.Name != nil {
		in.Name = *p.Name
	}
	if p.Event != nil {
		in.Event = p.Event
	}
	if p.OverrideDate != nil {
		in.OverrideDate = p.OverrideDate
	}
	if p.Keywords != nil {
		in.Keywords = p.Keywords
	}
	if p.Description != nil {
		in.Description = p.Description
	}
	if p.Thumbnail != nil {
		in.Thumbnail = p.Thumbnail
	}
	if p.ThumbnailContentType != nil {
		in.ThumbnailContentType = *p.ThumbnailContentType
	}
	if p.UserID != nil {
		in.UserID = p.UserID
	}
	if p.TagIDs != nil {
		in.TagIDs = *p.TagIDs
	}
}

// normalizeTime stores timestamps in UTC at the microsecond precision of
// the DATETIME(6) columns, so a value reads back exactly as written.
func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// --- Reads ---

func (s *albumService) GetByID(ctx context.Context, id int64) (*Album, bool, error) {
	rows, err := s.repo.FetchRows(ctx, []int64{id}, true)
	if err != nil {
		return nil, false, fmt.Errorf("fetching album %d: %w", id, err)
	}
	albums, _ := s.assemble([]int64{id}, rows)
	if len(albums) == 0 {
		return nil, false, nil
	}
	return &albums[0], true, nil
}

func (s *albumService) Exists(ctx context.Context, id int64) (bool, error) {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if apperror.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// reload reads back an album just written. A concurrent delete in between
// surfaces as NotFound.
func (s *albumService) reload(ctx context.Context, id int64) (*Album, error) {
	album, found, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperror.NewNotFound("album not found")
	}
	return album, nil
}

func (s *albumService) List(ctx context.Context, req ListRequest) (pagination.Page[Album], error) {
	q := Query{
		Criteria:  req.Criteria,
		SortBy:    req.SortBy,
		FieldSort: req.FieldSort,
		Limit:     req.Page.PerPage,
		Offset:    req.Page.Offset(),
	}

	albums, total, err := s.fetchPage(ctx, q, req.WithTags)
	if err != nil {
		return pagination.Page[Album]{}, err
	}

	slog.Debug("albums listed",
		slog.Int("total", total),
		slog.Int("returned", len(albums)),
		slog.String("sort_by", string(req.SortBy)),
	)
	return pagination.NewPage(albums, total, req.Page), nil
}

func (s *albumService) Gallery(ctx context.Context, sortBy SortBy) ([]Album, error) {
	albums, total, err := s.fetchPage(ctx, Query{SortBy: sortBy, Limit: s.maxResults}, true)
	if err != nil {
		return nil, err
	}
	if total > s.maxResults {
		slog.Debug("gallery truncated", slog.Int("total", total), slog.Int("cap", s.maxResults))
	}
	if albums == nil {
		albums = []Album{}
	}
	return albums, nil
}

// fetchPage runs the id pass and the relationship pass in one snapshot and
// assembles the page.
func (s *albumService) fetchPage(ctx context.Context, q Query, withTags bool) ([]Album, int, error) {
	var (
		ids   []int64
		total int
		rows  []AlbumRow
	)

	err := s.repo.Snapshot(ctx, func(ctx context.Context) error {
		var err error

		start := time.Now()
		ids, total, err = s.repo.ListIDs(ctx, q)
		metrics.RecordQuery("albums_list_ids", time.Since(start), err)
		if err != nil {
			return fmt.Errorf("listing album ids: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		start = time.Now()
		rows, err = s.repo.FetchRows(ctx, ids, withTags)
		metrics.RecordQuery("albums_fetch_rows", time.Since(start), err)
		if err != nil {
			return fmt.Errorf("fetching album rows: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	albums, missing := s.assemble(ids, rows)
	if missing > 0 {
		slog.Warn("albums vanished between id and fetch pass",
			slog.Int("requested", len(ids)),
			slog.Int("missing", missing),
		)
		metrics.RecordFetchMissing("album", missing)
	}
	return albums, total, nil
}

// assemble folds fan-out rows into albums and puts them in ids order.
// Albums absent from rows are dropped and counted.
func (s *albumService) assemble(ids []int64, rows []AlbumRow) ([]Album, int) {
	collapsed := fanout.Collapse(rows,
		func(r AlbumRow) int64 { return r.Album.ID },
		func(r AlbumRow) Album {
			a := r.Album
			a.Tags = []tags.Tag{}
			return a
		},
		func(a *Album, r AlbumRow) {
			if r.Tag == nil {
				return
			}
			if !slices.ContainsFunc(a.Tags, func(t tags.Tag) bool { return t.ID == r.Tag.ID }) {
				a.Tags = append(a.Tags, *r.Tag)
			}
		},
	)
	return fanout.Reorder(ids, collapsed, func(a Album) int64 { return a.ID })
}

// FilterOptions serves the cached aggregation or computes it in one snapshot.
func (s *albumService) FilterOptions(ctx context.Context) (*FilterOptions, error) {
	if opts, ok := s.cache.Get(ctx); ok {
		metrics.RecordCacheLookup(true)
		return opts, nil
	}
	metrics.RecordCacheLookup(false)

	opts := &FilterOptions{}
	start := time.Now()
	err := s.repo.Snapshot(ctx, func(ctx context.Context) error {
		var err error
		if opts.Events, err = s.repo.DistinctEvents(ctx); err != nil {
			return fmt.Errorf("aggregating events: %w", err)
		}
		if opts.Years, err = s.repo.DistinctYears(ctx); err != nil {
			return fmt.Errorf("aggregating years: %w", err)
		}
		if opts.Tags, err = s.repo.DistinctTagNames(ctx); err != nil {
			return fmt.Errorf("aggregating tag names: %w", err)
		}
		if opts.Contributors, err = s.repo.DistinctOwnerLogins(ctx); err != nil {
			return fmt.Errorf("aggregating contributors: %w", err)
		}
		return nil
	})
	metrics.RecordQuery("albums_filter_options", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	// Empty lists encode as [] rather than null.
	opts.Events = nonNil(opts.Events)
	opts.Years = nonNil(opts.Years)
	opts.Tags = nonNil(opts.Tags)
	opts.Contributors = nonNil(opts.Contributors)

	s.cache.Set(ctx, opts)
	return opts, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
