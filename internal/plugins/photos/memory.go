package photos

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/keyxmakerx/gallery/internal/apperror"
	"github.com/keyxmakerx/gallery/internal/database"
	"github.com/keyxmakerx/gallery/internal/pagination"
	"github.com/keyxmakerx/gallery/internal/widgets/tags"
)

// MemoryRepository is an in-process PhotoRepository for the memory driver.
type MemoryRepository struct {
	mu     sync.RWMutex
	nextID int64
	photos map[int64]Photo
	tags   *tags.MemoryRepository
}

// NewMemoryRepository creates an empty photo store whose tag links live in
// tagStore.
func NewMemoryRepository(tagStore *tags.MemoryRepository) *MemoryRepository {
	return &MemoryRepository{photos: make(map[int64]Photo), tags: tagStore}
}

var _ PhotoRepository = (*MemoryRepository)(nil)

func (r *MemoryRepository) Create(ctx context.Context, photo *Photo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	photo.ID = r.nextID
	stored := *photo
	stored.Tags = nil
	r.photos[photo.ID] = stored

	id := photo.ID
	database.RecordUndo(ctx, func() {
		r.mu.Lock()
		delete(r.photos, id)
		r.mu.Unlock()
		r.tags.DropOwner(tags.PhotoOwner, id)
	})
	return nil
}

func (r *MemoryRepository) FindByID(_ context.Context, id int64) (*Photo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.photos[id]
	if !ok {
		return nil, apperror.NewNotFound("photo not found")
	}
	return &p, nil
}

func (r *MemoryRepository) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	_, ok := r.photos[id]
	delete(r.photos, id)
	r.mu.Unlock()

	if !ok {
		return apperror.NewNotFound("photo not found")
	}
	r.tags.DropOwner(tags.PhotoOwner, id)
	return nil
}

// DeleteByAlbum removes every photo of an album along with its tag links.
// Registered as an album delete hook.
func (r *MemoryRepository) DeleteByAlbum(albumID int64) {
	r.mu.Lock()
	var removed []int64
	for id, p := range r.photos {
		if p.AlbumID == albumID {
			delete(r.photos, id)
			removed = append(removed, id)
		}
	}
	r.mu.Unlock()

	for _, id := range removed {
		r.tags.DropOwner(tags.PhotoOwner, id)
	}
}

func (r *MemoryRepository) Snapshot(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Transact undoes the photo and tag link changes fn made if it fails.
func (r *MemoryRepository) Transact(ctx context.Context, fn func(ctx context.Context) error) error {
	return database.WithUndo(ctx, fn)
}

func (r *MemoryRepository) ListIDsByAlbum(_ context.Context, albumID int64, limit, offset int) ([]int64, int, error) {
	r.mu.RLock()
	var inAlbum []Photo
	for _, p := range r.photos {
		if p.AlbumID == albumID {
			inAlbum = append(inAlbum, p)
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(inAlbum, func(a, b Photo) int {
		if c := b.TakenAt().Compare(a.TakenAt()); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})

	total := len(inAlbum)
	start, end := pagination.Window(total, offset, limit)
	page := inAlbum[start:end]

	ids := make([]int64, len(page))
	for i := range page {
		ids[i] = page[i].ID
	}
	return ids, total, nil
}

func (r *MemoryRepository) FetchRows(ctx context.Context, ids []int64) ([]PhotoRow, error) {
	r.mu.RLock()
	found := make([]Photo, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.photos[id]; ok {
			found = append(found, p)
		}
	}
	r.mu.RUnlock()

	foundIDs := make([]int64, len(found))
	for i := range found {
		foundIDs[i] = found[i].ID
	}
	sets, err := r.tags.GetTagsBatch(ctx, tags.PhotoOwner, foundIDs)
	if err != nil {
		return nil, fmt.Errorf("fetching photo tags: %w", err)
	}

	var rows []PhotoRow
	for _, p := range found {
		set := sets[p.ID]
		if len(set) == 0 {
			rows = append(rows, PhotoRow{Photo: p})
			continue
		}
		for i := range set {
			rows = append(rows, PhotoRow{Photo: p, Tag: &set[i]})
		}
	}
	return rows, nil
}
