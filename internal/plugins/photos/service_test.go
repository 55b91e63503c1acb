package photos

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/keyxmakerx/gallery/internal/apperror"
	"github.com/keyxmakerx/gallery/internal/pagination"
	"github.com/keyxmakerx/gallery/internal/widgets/tags"
)

// mockAlbumFinder implements AlbumFinder for testing.
type mockAlbumFinder struct {
	existsFn func(ctx context.Context, id int64) (bool, error)
}

func (m *mockAlbumFinder) Exists(ctx context.Context, id int64) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, id)
	}
	return true, nil
}

// assertAppError checks that err is an *apperror.AppError with the expected code.
func assertAppError(t *testing.T, err error, expectedCode int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %d, got nil", expectedCode)
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperror.AppError, got %T: %v", err, err)
	}
	if appErr.Code != expectedCode {
		t.Errorf("expected status %d, got %d (message: %s)", expectedCode, appErr.Code, appErr.Message)
	}
}

func strPtr(s string) *string        { return &s }
func timePtr(t time.Time) *time.Time { return &t }

type fixture struct {
	svc     PhotoService
	repo    *MemoryRepository
	tagRepo *tags.MemoryRepository
	tags    tags.TagService
}

func newFixture(t *testing.T, albums AlbumFinder) *fixture {
	t.Helper()
	tagRepo := tags.NewMemoryRepository()
	f := &fixture{
		repo:    NewMemoryRepository(tagRepo),
		tagRepo: tagRepo,
		tags:    tags.NewTagService(tagRepo),
	}
	f.svc = NewPhotoService(f.repo, f.tags, albums)
	return f
}

func (f *fixture) tag(t *testing.T, name string) int64 {
	t.Helper()
	tag, err := f.tags.Create(context.Background(), tags.CreateTagRequest{Name: name})
	if err != nil {
		t.Fatalf("creating tag: %v", err)
	}
	return tag.ID
}

var base = time.Date(2024, time.May, 1, 8, 0, 0, 0, time.UTC)

func TestCreate_MissingAlbum(t *testing.T) {
	f := newFixture(t, &mockAlbumFinder{existsFn: func(context.Context, int64) (bool, error) { return false, nil }})
	_, err := f.svc.Create(context.Background(), 9, CreatePhotoRequest{})
	assertAppError(t, err, http.StatusNotFound)
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t, &mockAlbumFinder{})
	_, err := f.svc.Create(context.Background(), 1, CreatePhotoRequest{Description: strPtr(strings.Repeat("d", 1001))})
	assertAppError(t, err, http.StatusUnprocessableEntity)

	_, err = f.svc.Create(context.Background(), 1, CreatePhotoRequest{TagIDs: []int64{5}})
	assertAppError(t, err, http.StatusUnprocessableEntity)
}

func TestCreate_DefaultsUploadDateAndLoadsTags(t *testing.T) {
	f := newFixture(t, &mockAlbumFinder{})
	f.svc.(*photoService).now = func() time.Time { return base }

	p, err := f.svc.Create(context.Background(), 1, CreatePhotoRequest{
		Title:  strPtr(" Sunset "),
		TagIDs: []int64{f.tag(t, "sky"), f.tag(t, "evening")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.UploadDate.Equal(base) {
		t.Errorf("uploadDate = %v, want %v", p.UploadDate, base)
	}
	if p.Title == nil || *p.Title != "Sunset" {
		t.Errorf("title = %v", p.Title)
	}
	if len(p.Tags) != 2 || p.Tags[0].Name != "evening" {
		t.Errorf("tags = %+v", p.Tags)
	}
}

func TestListByAlbum_PagesOncePerPhoto(t *testing.T) {
	f := newFixture(t, &mockAlbumFinder{})
	all := []int64{f.tag(t, "a"), f.tag(t, "b"), f.tag(t, "c")}

	for i := range 7 {
		req := CreatePhotoRequest{UploadDate: timePtr(base.Add(time.Duration(i) * time.Hour)), TagIDs: all}
		if i == 3 {
			// A capture date puts this photo before the later uploads.
			req.CaptureDate = timePtr(base.AddDate(0, 0, 1))
		}
		if _, err := f.svc.Create(context.Background(), 1, req); err != nil {
			t.Fatalf("creating photo: %v", err)
		}
	}
	if _, err := f.svc.Create(context.Background(), 2, CreatePhotoRequest{}); err != nil {
		t.Fatalf("creating photo in another album: %v", err)
	}

	var ids []int64
	for p := 1; p <= 3; p++ {
		page, err := f.svc.ListByAlbum(context.Background(), 1, pagination.ListOptions{Page: p, PerPage: 3})
		if err != nil {
			t.Fatalf("listing: %v", err)
		}
		if page.Total != 7 {
			t.Errorf("total = %d, want 7", page.Total)
		}
		for _, ph := range page.Items {
			if len(ph.Tags) != 3 {
				t.Errorf("photo %d has %d tags, want 3", ph.ID, len(ph.Tags))
			}
			ids = append(ids, ph.ID)
		}
	}

	if want := []int64{4, 7, 6, 5, 3, 2, 1}; !slices.Equal(ids, want) {
		t.Errorf("order = %v, want %v", ids, want)
	}
}

func TestListByAlbum_MissingAlbum(t *testing.T) {
	f := newFixture(t, &mockAlbumFinder{existsFn: func(context.Context, int64) (bool, error) { return false, nil }})
	_, err := f.svc.ListByAlbum(context.Background(), 3, pagination.ListOptions{Page: 1, PerPage: 10})
	assertAppError(t, err, http.StatusNotFound)
}

func TestDeleteByAlbum(t *testing.T) {
	f := newFixture(t, &mockAlbumFinder{})
	tagID := f.tag(t, "x")
	p, _ := f.svc.Create(context.Background(), 1, CreatePhotoRequest{TagIDs: []int64{tagID}})
	other, _ := f.svc.Create(context.Background(), 2, CreatePhotoRequest{})

	f.repo.DeleteByAlbum(1)

	if _, found, _ := f.svc.GetByID(context.Background(), p.ID); found {
		t.Error("photo of deleted album still present")
	}
	if _, found, _ := f.svc.GetByID(context.Background(), other.ID); !found {
		t.Error("photo of another album was removed")
	}
	if tagsLeft, _ := f.tagRepo.GetTags(context.Background(), tags.PhotoOwner, p.ID); len(tagsLeft) != 0 {
		t.Errorf("tag links survived: %+v", tagsLeft)
	}
}

func TestDelete(t *testing.T) {
	f := newFixture(t, &mockAlbumFinder{})
	p, _ := f.svc.Create(context.Background(), 1, CreatePhotoRequest{})

	if err := f.svc.Delete(context.Background(), p.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertAppError(t, f.svc.Delete(context.Background(), p.ID), http.StatusNotFound)
}

// failingTags stores the links and then reports a failure.
type failingTags struct {
	tags.TagService
}

var errLinkWrite = errors.New("link write failed")

func (f failingTags) SetTags(ctx context.Context, owner tags.Owner, ownerID int64, tagIDs []int64) error {
	if err := f.TagService.SetTags(ctx, owner, ownerID, tagIDs); err != nil {
		return err
	}
	return errLinkWrite
}

func TestCreate_TagFailureLeavesNoPhoto(t *testing.T) {
	f := newFixture(t, &mockAlbumFinder{})
	tagID := f.tag(t, "sunset")
	f.svc = NewPhotoService(f.repo, failingTags{f.tags}, &mockAlbumFinder{})

	_, err := f.svc.Create(context.Background(), 1, CreatePhotoRequest{Title: strPtr("Dusk"), TagIDs: []int64{tagID}})
	if !errors.Is(err, errLinkWrite) {
		t.Fatalf("err = %v, want the link failure", err)
	}

	page, err := f.svc.ListByAlbum(context.Background(), 1, pagination.ListOptions{Page: 1, PerPage: 10})
	if err != nil {
		t.Fatalf("ListByAlbum: %v", err)
	}
	if page.Total != 0 {
		t.Errorf("total = %d after failed create, want 0", page.Total)
	}
	if links, _ := f.tagRepo.GetTagsBatch(context.Background(), tags.PhotoOwner, []int64{1}); len(links) != 0 {
		t.Errorf("tag links survived: %v", links)
	}
}

func TestMemoryFetchRows_TagErrorPropagates(t *testing.T) {
	f := newFixture(t, &mockAlbumFinder{})
	p, err := f.svc.Create(context.Background(), 1, CreatePhotoRequest{TagIDs: []int64{f.tag(t, "sky")}})
	if err != nil {
		t.Fatalf("creating photo: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rows, err := f.repo.FetchRows(ctx, []int64{p.ID})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if rows != nil {
		t.Errorf("rows = %+v, want none on error", rows)
	}
}
