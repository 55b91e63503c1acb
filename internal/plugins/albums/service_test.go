package albums

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/keyxmakerx/gallery/internal/apperror"
	"github.com/keyxmakerx/gallery/internal/metrics"
	"github.com/keyxmakerx/gallery/internal/pagination"
	"github.com/keyxmakerx/gallery/internal/plugins/users"
	"github.com/keyxmakerx/gallery/internal/widgets/tags"
)

// --- Mock Repository ---

// mockAlbumRepo implements AlbumRepository for testing.
type mockAlbumRepo struct {
	createFn      func(ctx context.Context, album *Album) error
	findByIDFn    func(ctx context.Context, id int64) (*Album, error)
	updateFn      func(ctx context.Context, album *Album) error
	deleteFn      func(ctx context.Context, id int64) error
	snapshotFn    func(ctx context.Context, fn func(ctx context.Context) error) error
	transactFn    func(ctx context.Context, fn func(ctx context.Context) error) error
	listIDsFn     func(ctx context.Context, q Query) ([]int64, int, error)
	fetchRowsFn   func(ctx context.Context, ids []int64, withTags bool) ([]AlbumRow, error)
	eventsFn      func(ctx context.Context) ([]string, error)
	yearsFn       func(ctx context.Context) ([]int, error)
	tagNamesFn    func(ctx context.Context) ([]string, error)
	ownerLoginsFn func(ctx context.Context) ([]string, error)
}

func (m *mockAlbumRepo) Create(ctx context.Context, album *Album) error {
	if m.createFn != nil {
		return m.createFn(ctx, album)
	}
	album.ID = 1
	return nil
}

func (m *mockAlbumRepo) FindByID(ctx context.Context, id int64) (*Album, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, apperror.NewNotFound("album not found")
}

func (m *mockAlbumRepo) Update(ctx context.Context, album *Album) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, album)
	}
	return nil
}

func (m *mockAlbumRepo) Delete(ctx context.Context, id int64) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

func (m *mockAlbumRepo) Snapshot(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.snapshotFn != nil {
		return m.snapshotFn(ctx, fn)
	}
	return fn(ctx)
}

func (m *mockAlbumRepo) Transact(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.transactFn != nil {
		return m.transactFn(ctx, fn)
	}
	return fn(ctx)
}

func (m *mockAlbumRepo) ListIDs(ctx context.Context, q Query) ([]int64, int, error) {
	if m.listIDsFn != nil {
		return m.listIDsFn(ctx, q)
	}
	return nil, 0, nil
}

func (m *mockAlbumRepo) FetchRows(ctx context.Context, ids []int64, withTags bool) ([]AlbumRow, error) {
	if m.fetchRowsFn != nil {
		return m.fetchRowsFn(ctx, ids, withTags)
	}
	return nil, nil
}

func (m *mockAlbumRepo) DistinctEvents(ctx context.Context) ([]string, error) {
	if m.eventsFn != nil {
		return m.eventsFn(ctx)
	}
	return nil, nil
}

func (m *mockAlbumRepo) DistinctYears(ctx context.Context) ([]int, error) {
	if m.yearsFn != nil {
		return m.yearsFn(ctx)
	}
	return nil, nil
}

func (m *mockAlbumRepo) DistinctTagNames(ctx context.Context) ([]string, error) {
	if m.tagNamesFn != nil {
		return m.tagNamesFn(ctx)
	}
	return nil, nil
}

func (m *mockAlbumRepo) DistinctOwnerLogins(ctx context.Context) ([]string, error) {
	if m.ownerLoginsFn != nil {
		return m.ownerLoginsFn(ctx)
	}
	return nil, nil
}

// failingTags applies the tag change and then reports a failure, as when a
// later link insert hits a foreign key error.
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

// countingCache records calls and serves whatever was last Set.
type countingCache struct {
	stored      *FilterOptions
	gets        int
	invalidates int
}

func (c *countingCache) Get(context.Context) (*FilterOptions, bool) {
	c.gets++
	return c.stored, c.stored != nil
}

func (c *countingCache) Set(_ context.Context, opts *FilterOptions) { c.stored = opts }

func (c *countingCache) Invalidate(context.Context) {
	c.invalidates++
	c.stored = nil
}

// --- Test Helpers ---

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

func assertField(t *testing.T, err error, field string) {
	t.Helper()
	assertAppError(t, err, http.StatusUnprocessableEntity)
	var appErr *apperror.AppError
	if errors.As(err, &appErr) && appErr.Field != field {
		t.Errorf("expected field %q, got %q (message: %s)", field, appErr.Field, appErr.Message)
	}
}

func strPtr(s string) *string        { return &s }
func timePtr(t time.Time) *time.Time { return &t }
func int64Ptr(n int64) *int64        { return &n }

// fixture is an album service over the memory stores.
type fixture struct {
	svc    AlbumService
	repo   *MemoryRepository
	users  users.UserService
	tags   tags.TagService
	cache  *countingCache
	tagIDs map[string]int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	userRepo := users.NewMemoryRepository()
	tagRepo := tags.NewMemoryRepository()

	f := &fixture{
		repo:   NewMemoryRepository(userRepo, tagRepo),
		users:  users.NewUserService(userRepo),
		tags:   tags.NewTagService(tagRepo),
		cache:  &countingCache{},
		tagIDs: make(map[string]int64),
	}
	f.svc = NewAlbumService(f.repo, f.tags, f.users, f.cache, 1000)
	return f
}

func (f *fixture) user(t *testing.T, login string) int64 {
	t.Helper()
	u, err := f.users.Create(context.Background(), users.CreateUserRequest{Login: login})
	if err != nil {
		t.Fatalf("creating user %q: %v", login, err)
	}
	return u.ID
}

func (f *fixture) tag(t *testing.T, name string) int64 {
	t.Helper()
	if id, ok := f.tagIDs[name]; ok {
		return id
	}
	tag, err := f.tags.Create(context.Background(), tags.CreateTagRequest{Name: name})
	if err != nil {
		t.Fatalf("creating tag %q: %v", name, err)
	}
	f.tagIDs[name] = tag.ID
	return tag.ID
}

func (f *fixture) album(t *testing.T, in AlbumInput) *Album {
	t.Helper()
	if in.CreationDate == nil {
		in.CreationDate = timePtr(t0)
	}
	a, err := f.svc.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("creating album %q: %v", in.Name, err)
	}
	return a
}

func (f *fixture) list(t *testing.T, req ListRequest) pagination.Page[Album] {
	t.Helper()
	if req.Page.Page == 0 {
		req.Page = pagination.ListOptions{Page: 1, PerPage: 1000}
	}
	page, err := f.svc.List(context.Background(), req)
	if err != nil {
		t.Fatalf("listing albums: %v", err)
	}
	return page
}

// seed fills the fixture with a deterministic, varied catalogue.
func (f *fixture) seed(t *testing.T, n int) {
	t.Helper()
	rng := rand.New(rand.NewPCG(7, 11))

	events := []*string{nil, strPtr(""), strPtr("  "), strPtr("Party"), strPtr("party"), strPtr("Wedding"), strPtr("Alpha Trip")}
	tagNames := []string{"family", "holiday", "work", "pets", "Friends"}
	owners := []*int64{nil, int64Ptr(f.user(t, "alice")), int64Ptr(f.user(t, "bob")), int64Ptr(f.user(t, "carol"))}

	for i := range n {
		in := AlbumInput{
			Name:         "Album " + string(rune('A'+rng.IntN(26))) + string(rune('a'+rng.IntN(26))),
			Event:        events[rng.IntN(len(events))],
			CreationDate: timePtr(t0.AddDate(0, 0, -rng.IntN(900)).Add(time.Duration(i) * time.Minute)),
			UserID:       owners[rng.IntN(len(owners))],
		}
		if rng.IntN(3) == 0 {
			in.OverrideDate = timePtr(t0.AddDate(0, 0, rng.IntN(400)-200))
		}
		if rng.IntN(4) == 0 {
			in.Description = strPtr("notes about concatenation")
		}
		for _, name := range tagNames {
			if rng.IntN(2) == 0 {
				in.TagIDs = append(in.TagIDs, f.tag(t, name))
			}
		}
		f.album(t, in)
	}
}

// --- Create Tests ---

func TestCreate_RejectsID(t *testing.T) {
	svc := NewAlbumService(&mockAlbumRepo{}, nil, nil, NewNopFilterOptionsCache(), 10)
	_, err := svc.Create(context.Background(), AlbumInput{ID: int64Ptr(4), Name: "Trip"})
	assertAppError(t, err, http.StatusBadRequest)
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name  string
		in    AlbumInput
		field string
	}{
		{"missing name", AlbumInput{}, "name"},
		{"name too short after trim", AlbumInput{Name: "  ab  "}, "name"},
		{"name too long", AlbumInput{Name: strings.Repeat("n", 256)}, "name"},
		{"event too long", AlbumInput{Name: "Trip", Event: strPtr(strings.Repeat("e", 256))}, "event"},
		{"keywords too long", AlbumInput{Name: "Trip", Keywords: strPtr(strings.Repeat("k", 501))}, "keywords"},
		{"thumbnail without type", AlbumInput{Name: "Trip", Thumbnail: []byte{0xff, 0xd8}}, "thumbnailContentType"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockAlbumRepo{createFn: func(context.Context, *Album) error {
				t.Fatal("repository should not be reached")
				return nil
			}}
			svc := NewAlbumService(repo, nil, nil, NewNopFilterOptionsCache(), 10)
			_, err := svc.Create(context.Background(), tt.in)
			assertField(t, err, tt.field)
		})
	}
}

func TestCreate_UnknownUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), AlbumInput{Name: "Trip", UserID: int64Ptr(99)})
	assertField(t, err, "userId")
}

func TestCreate_UnknownTag(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), AlbumInput{Name: "Trip", TagIDs: []int64{42}})
	assertField(t, err, "tagIds")
}

func TestCreate_DefaultsCreationDateToNow(t *testing.T) {
	f := newFixture(t)
	local := time.Date(2024, time.February, 3, 10, 11, 12, 123456789, time.FixedZone("CET", 3600))
	f.svc.(*albumService).now = func() time.Time { return local }

	a, err := f.svc.Create(context.Background(), AlbumInput{Name: "Trip"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := time.Date(2024, time.February, 3, 9, 11, 12, 123456000, time.UTC)
	if !a.CreationDate.Equal(want) || a.CreationDate.Location() != time.UTC {
		t.Errorf("creationDate = %v, want %v", a.CreationDate, want)
	}
}

func TestCreate_LoadsTagsAndOwner(t *testing.T) {
	f := newFixture(t)
	uid := f.user(t, "Alice")

	a := f.album(t, AlbumInput{
		Name:        "  Summer  ",
		Description: strPtr("<b>Sunny</b> days"),
		UserID:      &uid,
		TagIDs:      []int64{f.tag(t, "beach"), f.tag(t, "Family"), f.tag(t, "beach")},
	})

	if a.Name != "Summer" {
		t.Errorf("name = %q, want trimmed", a.Name)
	}
	if a.Description == nil || *a.Description != "Sunny days" {
		t.Errorf("description = %v, want markup stripped", a.Description)
	}
	if a.OwnerLogin == nil || *a.OwnerLogin != "alice" {
		t.Errorf("ownerLogin = %v, want alice", a.OwnerLogin)
	}
	if len(a.Tags) != 2 || a.Tags[0].Name != "beach" || a.Tags[1].Name != "Family" {
		t.Errorf("tags = %+v, want [beach Family]", a.Tags)
	}
	if f.cache.invalidates != 1 {
		t.Errorf("cache invalidated %d times, want 1", f.cache.invalidates)
	}
}

// --- Update Tests ---

func TestUpdate_PathMismatch(t *testing.T) {
	svc := NewAlbumService(&mockAlbumRepo{}, nil, nil, NewNopFilterOptionsCache(), 10)
	_, err := svc.Update(context.Background(), 1, AlbumInput{ID: int64Ptr(2), Name: "Trip"})
	assertAppError(t, err, http.StatusBadRequest)
}

func TestUpdate_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Update(context.Background(), 77, AlbumInput{Name: "Trip"})
	assertAppError(t, err, http.StatusNotFound)
}

func TestUpdate_KeepsCreationDateAndReplacesTags(t *testing.T) {
	f := newFixture(t)
	orig := f.album(t, AlbumInput{Name: "Trip", Event: strPtr("Party"), TagIDs: []int64{f.tag(t, "a"), f.tag(t, "b")}})

	got, err := f.svc.Update(context.Background(), orig.ID, AlbumInput{
		Name:         "Trip 2",
		CreationDate: timePtr(t0.AddDate(-5, 0, 0)),
		TagIDs:       []int64{f.tag(t, "c")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !got.CreationDate.Equal(orig.CreationDate) {
		t.Errorf("creationDate changed from %v to %v", orig.CreationDate, got.CreationDate)
	}
	if got.Event != nil {
		t.Errorf("PUT without event should clear it, got %q", *got.Event)
	}
	if len(got.Tags) != 1 || got.Tags[0].Name != "c" {
		t.Errorf("tags = %+v, want [c]", got.Tags)
	}
}

func TestPartialUpdate_OnlyPresentFields(t *testing.T) {
	f := newFixture(t)
	orig := f.album(t, AlbumInput{
		Name:     "Trip",
		Event:    strPtr("Party"),
		Keywords: strPtr("sun"),
		TagIDs:   []int64{f.tag(t, "a")},
	})

	got, err := f.svc.PartialUpdate(context.Background(), orig.ID, AlbumPatch{Name: strPtr("Road Trip")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "Road Trip" {
		t.Errorf("name = %q", got.Name)
	}
	if got.Event == nil || *got.Event != "Party" || got.Keywords == nil || *got.Keywords != "sun" {
		t.Errorf("absent fields changed: event=%v keywords=%v", got.Event, got.Keywords)
	}
	if len(got.Tags) != 1 {
		t.Errorf("absent tagIds should keep tags, got %+v", got.Tags)
	}

	empty := []int64{}
	got, err = f.svc.PartialUpdate(context.Background(), orig.ID, AlbumPatch{TagIDs: &empty})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Tags) != 0 {
		t.Errorf("empty tagIds should clear tags, got %+v", got.Tags)
	}
}

func TestPartialUpdate_ValidatesMergedResult(t *testing.T) {
	f := newFixture(t)
	orig := f.album(t, AlbumInput{Name: "Trip"})

	_, err := f.svc.PartialUpdate(context.Background(), orig.ID, AlbumPatch{Name: strPtr("x")})
	assertField(t, err, "name")

	_, err = f.svc.PartialUpdate(context.Background(), 999, AlbumPatch{Name: strPtr("Trip")})
	assertAppError(t, err, http.StatusNotFound)
}

// --- Delete / Get Tests ---

func TestDelete(t *testing.T) {
	f := newFixture(t)
	a := f.album(t, AlbumInput{Name: "Trip", TagIDs: []int64{f.tag(t, "x")}})

	if err := f.svc.Delete(context.Background(), a.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, found, err := f.svc.GetByID(context.Background(), a.ID)
	if err != nil || found {
		t.Errorf("deleted album still found (err %v)", err)
	}
	assertAppError(t, f.svc.Delete(context.Background(), a.ID), http.StatusNotFound)

	opts, _ := f.svc.FilterOptions(context.Background())
	if len(opts.Tags) != 0 {
		t.Errorf("tag links should go with the album, got %v", opts.Tags)
	}
}

func TestGetByID_Missing(t *testing.T) {
	f := newFixture(t)
	a, found, err := f.svc.GetByID(context.Background(), 5)
	if err != nil || found || a != nil {
		t.Errorf("GetByID(missing) = (%v, %v, %v), want (nil, false, nil)", a, found, err)
	}
}

func TestExists(t *testing.T) {
	f := newFixture(t)
	a := f.album(t, AlbumInput{Name: "Trip"})

	if ok, err := f.svc.Exists(context.Background(), a.ID); err != nil || !ok {
		t.Errorf("Exists(%d) = %v, %v", a.ID, ok, err)
	}
	if ok, err := f.svc.Exists(context.Background(), a.ID+1); err != nil || ok {
		t.Errorf("Exists(missing) = %v, %v", ok, err)
	}
}

// --- Two-pass fetch ---

func TestList_UsesOneSnapshot(t *testing.T) {
	var snapshots, listCalls, fetchCalls int
	repo := &mockAlbumRepo{
		snapshotFn: func(ctx context.Context, fn func(context.Context) error) error {
			snapshots++
			return fn(ctx)
		},
		listIDsFn: func(context.Context, Query) ([]int64, int, error) {
			listCalls++
			return []int64{2, 1}, 2, nil
		},
		fetchRowsFn: func(_ context.Context, ids []int64, _ bool) ([]AlbumRow, error) {
			fetchCalls++
			return []AlbumRow{{Album: Album{ID: 1}}, {Album: Album{ID: 2}}}, nil
		},
	}
	svc := NewAlbumService(repo, nil, nil, NewNopFilterOptionsCache(), 10)

	page, err := svc.List(context.Background(), ListRequest{Page: pagination.ListOptions{Page: 1, PerPage: 10}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snapshots != 1 || listCalls != 1 || fetchCalls != 1 {
		t.Errorf("snapshots=%d list=%d fetch=%d, want 1 each", snapshots, listCalls, fetchCalls)
	}
	if got := albumIDs(page.Items); !slices.Equal(got, []int64{2, 1}) {
		t.Errorf("items = %v, want id-pass order [2 1]", got)
	}
}

func TestList_CollapsesFanOut(t *testing.T) {
	red := tags.Tag{ID: 1, Name: "red"}
	blue := tags.Tag{ID: 2, Name: "blue"}
	repo := &mockAlbumRepo{
		listIDsFn: func(context.Context, Query) ([]int64, int, error) { return []int64{10, 20}, 2, nil },
		fetchRowsFn: func(_ context.Context, _ []int64, withTags bool) ([]AlbumRow, error) {
			if !withTags {
				t.Error("expected the tag pass")
			}
			return []AlbumRow{
				{Album: Album{ID: 20}, Tag: &blue},
				{Album: Album{ID: 10}, Tag: &red},
				{Album: Album{ID: 20}, Tag: &red},
				{Album: Album{ID: 10}, Tag: &red},
				{Album: Album{ID: 10}, Tag: &blue},
			}, nil
		},
	}
	svc := NewAlbumService(repo, nil, nil, NewNopFilterOptionsCache(), 10)

	page, err := svc.List(context.Background(), ListRequest{Page: pagination.ListOptions{Page: 1, PerPage: 10}, WithTags: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("got %d albums, want 2", len(page.Items))
	}
	for _, a := range page.Items {
		if len(a.Tags) != 2 {
			t.Errorf("album %d has tags %+v, want 2 distinct", a.ID, a.Tags)
		}
	}
}

func TestList_DropsAlbumsMissingFromSecondPass(t *testing.T) {
	repo := &mockAlbumRepo{
		listIDsFn: func(context.Context, Query) ([]int64, int, error) { return []int64{3, 2, 1}, 3, nil },
		fetchRowsFn: func(context.Context, []int64, bool) ([]AlbumRow, error) {
			// Album 2 was deleted between the passes.
			return []AlbumRow{{Album: Album{ID: 1}}, {Album: Album{ID: 3}}}, nil
		},
	}
	svc := NewAlbumService(repo, nil, nil, NewNopFilterOptionsCache(), 10)
	counter := metrics.FetchMissing.WithLabelValues("album")
	before := testutil.ToFloat64(counter)

	page, err := svc.List(context.Background(), ListRequest{Page: pagination.ListOptions{Page: 1, PerPage: 10}})
	if err != nil {
		t.Fatalf("a vanished album is not an error: %v", err)
	}
	if got := albumIDs(page.Items); !slices.Equal(got, []int64{3, 1}) {
		t.Errorf("items = %v, want [3 1]", got)
	}
	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("fetch-missing counter rose by %v, want 1", got)
	}
}

func TestList_StorageErrorPropagates(t *testing.T) {
	boom := errors.New("connection refused")
	repo := &mockAlbumRepo{
		listIDsFn: func(context.Context, Query) ([]int64, int, error) { return nil, 0, boom },
	}
	svc := NewAlbumService(repo, nil, nil, NewNopFilterOptionsCache(), 10)

	_, err := svc.List(context.Background(), ListRequest{Page: pagination.ListOptions{Page: 1, PerPage: 10}})
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped storage error, got %v", err)
	}
}

func TestList_EmptyPageSkipsFetch(t *testing.T) {
	repo := &mockAlbumRepo{
		listIDsFn: func(context.Context, Query) ([]int64, int, error) { return nil, 4, nil },
		fetchRowsFn: func(context.Context, []int64, bool) ([]AlbumRow, error) {
			t.Error("second pass should not run for an empty page")
			return nil, nil
		},
	}
	svc := NewAlbumService(repo, nil, nil, NewNopFilterOptionsCache(), 10)

	page, err := svc.List(context.Background(), ListRequest{Page: pagination.ListOptions{Page: 9, PerPage: 10}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Total != 4 || page.Items == nil || len(page.Items) != 0 {
		t.Errorf("page = %+v, want empty items with total 4", page)
	}
}

// --- Properties over the memory store ---

func TestList_AbsentCriteriaIsIdentity(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 40)

	all := f.list(t, ListRequest{})
	blank, err := NormalizeCriteria(RawCriteria{Keyword: "  ", Event: "", Year: " ", TagName: "\t"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := f.list(t, ListRequest{Criteria: blank})

	if all.Total != 40 || got.Total != 40 {
		t.Errorf("totals = %d, %d, want 40", all.Total, got.Total)
	}
	if !slices.Equal(albumIDs(all.Items), albumIDs(got.Items)) {
		t.Error("blank criteria changed the result")
	}
}

func TestList_EventOrderPutsBlankFirst(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 40)

	seenEvent := false
	for _, a := range f.list(t, ListRequest{SortBy: SortByEvent}).Items {
		if a.HasEvent() {
			seenEvent = true
		} else if seenEvent {
			t.Fatalf("album %d without event comes after an album with one", a.ID)
		}
	}
}

func TestList_DateOrderNonIncreasingAndStable(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 40)

	first := f.list(t, ListRequest{SortBy: SortByDate}).Items
	for i := 1; i < len(first); i++ {
		if first[i].EffectiveDate().After(first[i-1].EffectiveDate()) {
			t.Fatalf("album %d is later than the album before it", first[i].ID)
		}
	}

	again := f.list(t, ListRequest{SortBy: SortByDate}).Items
	if !slices.Equal(albumIDs(first), albumIDs(again)) {
		t.Error("DATE order differs between identical calls")
	}
}

func TestList_TaggedAlbumsAppearOnce(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 40)

	all := f.list(t, ListRequest{WithTags: true}).Items
	want := 0
	for _, a := range all {
		if slices.ContainsFunc(a.Tags, func(tg tags.Tag) bool { return strings.Contains(strings.ToLower(tg.Name), "i") }) {
			want++
		}
	}

	var ids []int64
	var total int
	for p := 1; ; p++ {
		page := f.list(t, ListRequest{
			Criteria: Criteria{TagName: "I"},
			WithTags: true,
			Page:     pagination.ListOptions{Page: p, PerPage: 4},
		})
		total = page.Total
		if len(page.Items) == 0 {
			break
		}
		ids = append(ids, albumIDs(page.Items)...)
	}

	if total != want {
		t.Errorf("total = %d, want %d distinct albums", total, want)
	}
	if len(ids) != want {
		t.Errorf("paged through %d albums, want %d", len(ids), want)
	}
	seen := make(map[int64]bool)
	for _, id := range ids {
		if seen[id] {
			t.Errorf("album %d returned more than once", id)
		}
		seen[id] = true
	}
}

func TestList_PagesConcatenateToFullList(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 23)

	for _, sortBy := range []SortBy{SortByEvent, SortByDate} {
		full := albumIDs(f.list(t, ListRequest{SortBy: sortBy}).Items)

		for _, size := range []int{1, 3, 5, 23, 50} {
			var joined []int64
			for p := 1; ; p++ {
				page := f.list(t, ListRequest{SortBy: sortBy, Page: pagination.ListOptions{Page: p, PerPage: size}})
				if len(page.Items) == 0 {
					break
				}
				joined = append(joined, albumIDs(page.Items)...)
			}
			if !slices.Equal(joined, full) {
				t.Errorf("%s pages of %d: got %v, want %v", sortBy, size, joined, full)
			}
		}
	}
}

func TestList_FiltersCombine(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	f.album(t, AlbumInput{Name: "Cats", Description: strPtr("concatenate"), UserID: &alice})
	f.album(t, AlbumInput{Name: "Dogs", Description: strPtr("dog")})
	f.album(t, AlbumInput{Name: "More cats", UserID: int64Ptr(f.user(t, "bob"))})

	got := f.list(t, ListRequest{Criteria: Criteria{Keyword: "cat"}})
	if got.Total != 2 {
		t.Errorf("keyword cat matched %d albums, want 2", got.Total)
	}

	got = f.list(t, ListRequest{Criteria: Criteria{Keyword: "cat", ContributorLogin: "ALI"}})
	if got.Total != 1 || got.Items[0].Name != "Cats" {
		t.Errorf("keyword+contributor = %+v", albumIDs(got.Items))
	}
}

func TestList_WithoutTags(t *testing.T) {
	f := newFixture(t)
	f.album(t, AlbumInput{Name: "Trip", TagIDs: []int64{f.tag(t, "x")}})

	for _, a := range f.list(t, ListRequest{WithTags: false}).Items {
		if len(a.Tags) != 0 {
			t.Errorf("tags loaded without eagerload: %+v", a.Tags)
		}
	}
}

func TestGetByID_ResolvesOwnerLogin(t *testing.T) {
	f := newFixture(t)
	a := f.album(t, AlbumInput{Name: "Trip", UserID: int64Ptr(f.user(t, "dave"))})
	got, _, _ := f.svc.GetByID(context.Background(), a.ID)
	if got.OwnerLogin == nil || *got.OwnerLogin != "dave" {
		t.Errorf("ownerLogin = %v, want dave", got.OwnerLogin)
	}
}

// --- Gallery ---

func TestGallery_CappedAndOrdered(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 12)
	f.svc.(*albumService).maxResults = 5

	got, err := f.svc.Gallery(context.Background(), SortByDate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	full := f.list(t, ListRequest{SortBy: SortByDate}).Items

	if len(got) != 5 {
		t.Fatalf("gallery returned %d albums, want cap 5", len(got))
	}
	if !slices.Equal(albumIDs(got), albumIDs(full[:5])) {
		t.Errorf("gallery = %v, want first five of %v", albumIDs(got), albumIDs(full))
	}
}

func TestGallery_Empty(t *testing.T) {
	f := newFixture(t)
	got, err := f.svc.Gallery(context.Background(), SortByEvent)
	if err != nil || got == nil || len(got) != 0 {
		t.Errorf("Gallery on empty store = %v, %v; want [] and nil", got, err)
	}
}

// --- Filter options ---

func TestFilterOptions_DistinctValues(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 40)

	opts, err := f.svc.FilterOptions(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := make(map[string]bool)
	years := make(map[int]bool)
	owners := make(map[string]bool)
	for _, a := range f.list(t, ListRequest{}).Items {
		if a.HasEvent() {
			want[*a.Event] = true
		}
		if a.OwnerLogin != nil {
			owners[*a.OwnerLogin] = true
		}
		years[a.CreationDate.UTC().Year()] = true
	}

	if len(opts.Events) != len(want) {
		t.Errorf("events = %v, want %d distinct values", opts.Events, len(want))
	}
	seen := make(map[string]bool)
	for _, e := range opts.Events {
		if !want[e] || seen[e] {
			t.Errorf("unexpected or repeated event %q", e)
		}
		seen[e] = true
	}
	if !slices.IsSorted(opts.Events) {
		t.Errorf("events not ascending: %v", opts.Events)
	}
	if len(opts.Years) != len(years) || !slices.IsSortedFunc(opts.Years, func(a, b int) int { return b - a }) {
		t.Errorf("years = %v, want %d distinct values descending", opts.Years, len(years))
	}
	if len(opts.Contributors) != len(owners) || !slices.IsSorted(opts.Contributors) {
		t.Errorf("contributors = %v, want %d distinct logins ascending", opts.Contributors, len(owners))
	}
}

func TestFilterOptions_Cached(t *testing.T) {
	var calls int
	cache := &countingCache{}
	repo := &mockAlbumRepo{
		eventsFn: func(context.Context) ([]string, error) {
			calls++
			return []string{"Party"}, nil
		},
	}
	svc := NewAlbumService(repo, nil, nil, cache, 10)

	for range 3 {
		opts, err := svc.FilterOptions(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !slices.Equal(opts.Events, []string{"Party"}) || opts.Years == nil || opts.Tags == nil {
			t.Errorf("opts = %+v", opts)
		}
	}
	if calls != 1 {
		t.Errorf("aggregation ran %d times, want 1", calls)
	}

	_ = svc.Delete(context.Background(), 1)
	if _, err := svc.FilterOptions(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("write should invalidate the cache; aggregation ran %d times", calls)
	}
}

func TestFilterOptions_InvalidatedByTagRename(t *testing.T) {
	f := newFixture(t)
	f.tags.OnChange(f.cache.Invalidate)
	f.album(t, AlbumInput{Name: "Trip", TagIDs: []int64{f.tag(t, "beach")}})

	opts, _ := f.svc.FilterOptions(context.Background())
	if !slices.Equal(opts.Tags, []string{"beach"}) {
		t.Fatalf("tags = %v", opts.Tags)
	}

	if _, err := f.tags.Update(context.Background(), f.tagIDs["beach"], tags.UpdateTagRequest{Name: "seaside"}); err != nil {
		t.Fatalf("renaming tag: %v", err)
	}
	opts, _ = f.svc.FilterOptions(context.Background())
	if !slices.Equal(opts.Tags, []string{"seaside"}) {
		t.Errorf("tags after rename = %v, want [seaside]", opts.Tags)
	}
}

// --- Write Atomicity Tests ---

func (f *fixture) failTagWrites() {
	f.svc = NewAlbumService(f.repo, failingTags{f.tags}, f.users, f.cache, 1000)
}

func TestCreate_TagFailureLeavesNoAlbum(t *testing.T) {
	f := newFixture(t)
	tagID := f.tag(t, "beach")
	f.failTagWrites()

	_, err := f.svc.Create(context.Background(), AlbumInput{Name: "Orphan", TagIDs: []int64{tagID}})
	if !errors.Is(err, errLinkWrite) {
		t.Fatalf("err = %v, want the link failure", err)
	}

	if page := f.list(t, ListRequest{}); page.Total != 0 {
		t.Errorf("total = %d after failed create, want 0", page.Total)
	}
	opts, err := f.svc.FilterOptions(context.Background())
	if err != nil {
		t.Fatalf("FilterOptions: %v", err)
	}
	if len(opts.Tags) != 0 {
		t.Errorf("tag links survived the failed create: %v", opts.Tags)
	}
	if f.cache.invalidates != 0 {
		t.Errorf("cache invalidated %d times by a failed write", f.cache.invalidates)
	}
}

func TestUpdate_TagFailureKeepsPreviousAlbum(t *testing.T) {
	f := newFixture(t)
	orig := f.album(t, AlbumInput{Name: "Trip", Event: strPtr("Party"), TagIDs: []int64{f.tag(t, "a")}})
	newTag := f.tag(t, "b")
	f.failTagWrites()

	_, err := f.svc.Update(context.Background(), orig.ID, AlbumInput{Name: "Renamed", TagIDs: []int64{newTag}})
	if !errors.Is(err, errLinkWrite) {
		t.Fatalf("err = %v, want the link failure", err)
	}

	got, found, err := f.svc.GetByID(context.Background(), orig.ID)
	if err != nil || !found {
		t.Fatalf("GetByID: found=%v err=%v", found, err)
	}
	if got.Name != "Trip" || got.Event == nil || *got.Event != "Party" {
		t.Errorf("album = %q/%v, want the fields from before the update", got.Name, got.Event)
	}
	if len(got.Tags) != 1 || got.Tags[0].Name != "a" {
		t.Errorf("tags = %+v, want [a]", got.Tags)
	}
}

func TestPartialUpdate_TagFailureKeepsPreviousAlbum(t *testing.T) {
	f := newFixture(t)
	orig := f.album(t, AlbumInput{Name: "Trip", TagIDs: []int64{f.tag(t, "a")}})
	newTags := []int64{f.tag(t, "b")}
	f.failTagWrites()

	_, err := f.svc.PartialUpdate(context.Background(), orig.ID, AlbumPatch{Name: strPtr("Renamed"), TagIDs: &newTags})
	if !errors.Is(err, errLinkWrite) {
		t.Fatalf("err = %v, want the link failure", err)
	}

	got, _, _ := f.svc.GetByID(context.Background(), orig.ID)
	if got == nil || got.Name != "Trip" || len(got.Tags) != 1 || got.Tags[0].Name != "a" {
		t.Errorf("album = %+v, want it unchanged", got)
	}
}

func TestWrites_RunInOneTransaction(t *testing.T) {
	transactions := 0
	repo := &mockAlbumRepo{
		transactFn: func(ctx context.Context, fn func(ctx context.Context) error) error {
			transactions++
			return fn(ctx)
		},
		findByIDFn: func(context.Context, int64) (*Album, error) {
			return &Album{ID: 1, Name: "Trip", CreationDate: t0}, nil
		},
		fetchRowsFn: func(_ context.Context, ids []int64, _ bool) ([]AlbumRow, error) {
			return []AlbumRow{{Album: Album{ID: ids[0], Name: "Trip", CreationDate: t0}}}, nil
		},
	}
	f := newFixture(t)
	svc := NewAlbumService(repo, f.tags, f.users, NewNopFilterOptionsCache(), 10)

	if _, err := svc.Create(context.Background(), AlbumInput{Name: "Trip"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Update(context.Background(), 1, AlbumInput{Name: "Trip"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := svc.PartialUpdate(context.Background(), 1, AlbumPatch{Name: strPtr("Trip 2")}); err != nil {
		t.Fatalf("PartialUpdate: %v", err)
	}
	if transactions != 3 {
		t.Errorf("transactions = %d, want one per write", transactions)
	}
}

func TestMemoryListIDs_OffsetOutOfRange(t *testing.T) {
	f := newFixture(t)
	f.album(t, AlbumInput{Name: "Only"})

	for _, offset := range []int{-9223372036854775806, 1, 1 << 62} {
		ids, total, err := f.repo.ListIDs(context.Background(), Query{SortBy: SortByEvent, Limit: 2, Offset: offset})
		if err != nil {
			t.Fatalf("offset %d: %v", offset, err)
		}
		if len(ids) != 0 || total != 1 {
			t.Errorf("offset %d: ids=%v total=%d, want none of 1", offset, ids, total)
		}
	}
}

func TestMemoryReads_TagErrorPropagates(t *testing.T) {
	f := newFixture(t)
	a := f.album(t, AlbumInput{Name: "Tagged", TagIDs: []int64{f.tag(t, "beach")}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := f.repo.ListIDs(ctx, Query{SortBy: SortByEvent, Limit: 2}); !errors.Is(err, context.Canceled) {
		t.Errorf("ListIDs err = %v, want context.Canceled", err)
	}
	if _, err := f.repo.FetchRows(ctx, []int64{a.ID}, true); !errors.Is(err, context.Canceled) {
		t.Errorf("FetchRows err = %v, want context.Canceled", err)
	}
	if _, err := f.repo.DistinctTagNames(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("DistinctTagNames err = %v, want context.Canceled", err)
	}

	// Without tags the fetch never reaches the tag store.
	if _, err := f.repo.FetchRows(ctx, []int64{a.ID}, false); err != nil {
		t.Errorf("FetchRows without tags: %v", err)
	}
}
