package albums

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/keyxmakerx/gallery/internal/apperror"
	"github.com/keyxmakerx/gallery/internal/database"
	"github.com/keyxmakerx/gallery/internal/pagination"
	"github.com/keyxmakerx/gallery/internal/plugins/users"
	"github.com/keyxmakerx/gallery/internal/widgets/tags"
)

// MemoryRepository is an in-process AlbumRepository for the memory storage
// driver. It evaluates filters and orderings with the Go forms in
// ordering.go and returns genuinely fanned-out rows from FetchRows, so the
// service's two-pass assembly runs the same way it does against MariaDB.
type MemoryRepository struct {
	mu     sync.RWMutex
	nextID int64
	albums map[int64]Album

	users *users.MemoryRepository
	tags  *tags.MemoryRepository

	onDelete []func(albumID int64)
}

// NewMemoryRepository creates an empty album store resolving owners and
// tags against the given memory stores.
func NewMemoryRepository(userStore *users.MemoryRepository, tagStore *tags.MemoryRepository) *MemoryRepository {
	return &MemoryRepository{
		albums: make(map[int64]Album),
		users:  userStore,
		tags:   tagStore,
	}
}

var _ AlbumRepository = (*MemoryRepository)(nil)

// OnDelete registers fn to run after an album is deleted, standing in for
// the foreign key cascades MariaDB performs.
func (r *MemoryRepository) OnDelete(fn func(albumID int64)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onDelete = append(r.onDelete, fn)
}

func (r *MemoryRepository) Create(ctx context.Context, album *Album) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	album.ID = r.nextID
	r.albums[album.ID] = bare(*album)

	id := album.ID
	database.RecordUndo(ctx, func() {
		r.mu.Lock()
		delete(r.albums, id)
		r.mu.Unlock()
		r.tags.DropOwner(tags.AlbumOwner, id)
	})
	return nil
}

func (r *MemoryRepository) FindByID(_ context.Context, id int64) (*Album, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.albums[id]
	if !ok {
		return nil, apperror.NewNotFound("album not found")
	}
	return &a, nil
}

func (r *MemoryRepository) Update(ctx context.Context, album *Album) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.albums[album.ID]
	if !ok {
		return apperror.NewNotFound("album not found")
	}
	updated := bare(*album)
	updated.CreationDate = existing.CreationDate
	r.albums[album.ID] = updated

	database.RecordUndo(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		// Restore only if the album was not deleted since.
		if _, ok := r.albums[existing.ID]; ok {
			r.albums[existing.ID] = existing
		}
	})
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	if _, ok := r.albums[id]; !ok {
		r.mu.Unlock()
		return apperror.NewNotFound("album not found")
	}
	delete(r.albums, id)
	hooks := slices.Clone(r.onDelete)
	r.mu.Unlock()

	r.tags.DropOwner(tags.AlbumOwner, id)
	for _, fn := range hooks {
		fn(id)
	}
	return nil
}

// Snapshot runs fn directly. The memory store has no read views; the
// two-pass fetch tolerates albums vanishing between passes.
func (r *MemoryRepository) Snapshot(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Transact undoes the album and tag link changes fn made if it fails.
func (r *MemoryRepository) Transact(ctx context.Context, fn func(ctx context.Context) error) error {
	return database.WithUndo(ctx, fn)
}

func (r *MemoryRepository) ListIDs(ctx context.Context, q Query) ([]int64, int, error) {
	all, err := r.resolved(ctx)
	if err != nil {
		return nil, 0, err
	}

	matched := all[:0]
	for _, ra := range all {
		if q.Criteria.matches(&ra.album, ra.tagNames) {
			matched = append(matched, ra)
		}
	}

	albums := make([]Album, len(matched))
	for i, ra := range matched {
		albums[i] = ra.album
	}
	sortAlbums(albums, q.SortBy, q.FieldSort)

	total := len(albums)
	start, end := pagination.Window(total, q.Offset, q.Limit)
	page := albums[start:end]

	ids := make([]int64, len(page))
	for i := range page {
		ids[i] = page[i].ID
	}
	return ids, total, nil
}

func (r *MemoryRepository) FetchRows(ctx context.Context, ids []int64, withTags bool) ([]AlbumRow, error) {
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	r.mu.RLock()
	found := make([]Album, 0, len(ids))
	// Map iteration order stands in for the unordered result of the join.
	for id, a := range r.albums {
		if want[id] {
			found = append(found, a)
		}
	}
	r.mu.RUnlock()

	foundIDs := make([]int64, len(found))
	for i := range found {
		foundIDs[i] = found[i].ID
	}
	r.attachOwners(found)

	var tagSets map[int64][]tags.Tag
	if withTags {
		var err error
		if tagSets, err = r.tags.GetTagsBatch(ctx, tags.AlbumOwner, foundIDs); err != nil {
			return nil, fmt.Errorf("fetching album tags: %w", err)
		}
	}

	var rows []AlbumRow
	for _, a := range found {
		set := tagSets[a.ID]
		if len(set) == 0 {
			rows = append(rows, AlbumRow{Album: a})
			continue
		}
		for i := range set {
			rows = append(rows, AlbumRow{Album: a, Tag: &set[i]})
		}
	}
	return rows, nil
}

func (r *MemoryRepository) DistinctEvents(_ context.Context) ([]string, error) {
	r.mu.RLock()
	seen := make(map[string]bool)
	for _, a := range r.albums {
		if a.HasEvent() {
			seen[*a.Event] = true
		}
	}
	r.mu.RUnlock()

	return sortedKeys(seen, cmp.Compare[string]), nil
}

func (r *MemoryRepository) DistinctYears(_ context.Context) ([]int, error) {
	r.mu.RLock()
	seen := make(map[int]bool)
	for _, a := range r.albums {
		seen[a.CreationDate.UTC().Year()] = true
	}
	r.mu.RUnlock()

	return sortedKeys(seen, func(a, b int) int { return cmp.Compare(b, a) }), nil
}

func (r *MemoryRepository) DistinctTagNames(ctx context.Context) ([]string, error) {
	sets, err := r.tags.GetTagsBatch(ctx, tags.AlbumOwner, r.ids())
	if err != nil {
		return nil, fmt.Errorf("listing album tags: %w", err)
	}

	seen := make(map[string]bool)
	for _, set := range sets {
		for _, t := range set {
			seen[t.Name] = true
		}
	}
	return sortedKeys(seen, cmp.Compare[string]), nil
}

func (r *MemoryRepository) DistinctOwnerLogins(_ context.Context) ([]string, error) {
	r.mu.RLock()
	var owners []int64
	for _, a := range r.albums {
		if a.UserID != nil {
			owners = append(owners, *a.UserID)
		}
	}
	r.mu.RUnlock()

	seen := make(map[string]bool)
	for _, login := range r.users.Logins(owners) {
		seen[login] = true
	}
	return sortedKeys(seen, cmp.Compare[string]), nil
}

// resolvedAlbum is an album with the data its filters need resolved.
type resolvedAlbum struct {
	album    Album
	tagNames []string
}

// resolved returns every album with owner login and tag names attached.
func (r *MemoryRepository) resolved(ctx context.Context) ([]resolvedAlbum, error) {
	r.mu.RLock()
	albums := make([]Album, 0, len(r.albums))
	for _, a := range r.albums {
		albums = append(albums, a)
	}
	r.mu.RUnlock()

	r.attachOwners(albums)

	ids := make([]int64, len(albums))
	for i := range albums {
		ids[i] = albums[i].ID
	}
	sets, err := r.tags.GetTagsBatch(ctx, tags.AlbumOwner, ids)
	if err != nil {
		return nil, fmt.Errorf("resolving album tags: %w", err)
	}

	out := make([]resolvedAlbum, len(albums))
	for i, a := range albums {
		names := make([]string, 0, len(sets[a.ID]))
		for _, t := range sets[a.ID] {
			names = append(names, t.Name)
		}
		out[i] = resolvedAlbum{album: a, tagNames: names}
	}
	return out, nil
}

// attachOwners fills OwnerLogin in place. Owners that no longer exist
// resolve to nil, as the LEFT JOIN does.
func (r *MemoryRepository) attachOwners(albums []Album) {
	var owners []int64
	for _, a := range albums {
		if a.UserID != nil {
			owners = append(owners, *a.UserID)
		}
	}
	logins := r.users.Logins(owners)

	for i := range albums {
		albums[i].OwnerLogin = nil
		if albums[i].UserID == nil {
			continue
		}
		if login, ok := logins[*albums[i].UserID]; ok {
			albums[i].OwnerLogin = &login
		}
	}
}

func (r *MemoryRepository) ids() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]int64, 0, len(r.albums))
	for id := range r.albums {
		ids = append(ids, id)
	}
	return ids
}

// bare strips the derived fields and copies everything the caller could
// still mutate before an album is stored.
func bare(a Album) Album {
	a.Tags = nil
	a.OwnerLogin = nil
	a.Thumbnail = slices.Clone(a.Thumbnail)
	a.Event = clonePtr(a.Event)
	a.OverrideDate = clonePtr(a.OverrideDate)
	a.Keywords = clonePtr(a.Keywords)
	a.Description = clonePtr(a.Description)
	a.ThumbnailContentType = clonePtr(a.ThumbnailContentType)
	a.UserID = clonePtr(a.UserID)
	return a
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func sortedKeys[K comparable](set map[K]bool, compare func(a, b K) int) []K {
	keys := make([]K, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compare)
	return keys
}
