package tags

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/keyxmakerx/gallery/internal/apperror"
	"github.com/keyxmakerx/gallery/internal/database"
)

// MemoryRepository is an in-process TagRepository used by the memory
// storage driver. Name uniqueness and ordering are case-insensitive, as
// with the utf8mb4_unicode_ci collation on the tags table.
type MemoryRepository struct {
	mu     sync.RWMutex
	nextID int64
	tags   map[int64]Tag
	// links[owner kind][owner id] is the set of tag ids on that record.
	links map[string]map[int64]map[int64]struct{}
}

// NewMemoryRepository creates an empty in-memory tag store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		tags:  make(map[int64]Tag),
		links: make(map[string]map[int64]map[int64]struct{}),
	}
}

var _ TagRepository = (*MemoryRepository)(nil)

func (r *MemoryRepository) Create(_ context.Context, tag *Tag) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.nameTaken(tag.Name, 0) {
		return apperror.NewConflict("a tag with this name already exists")
	}
	r.nextID++
	tag.ID = r.nextID
	tag.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	r.tags[tag.ID] = *tag
	return nil
}

func (r *MemoryRepository) FindByID(_ context.Context, id int64) (*Tag, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tags[id]
	if !ok {
		return nil, apperror.NewNotFound("tag not found")
	}
	return &t, nil
}

func (r *MemoryRepository) FindByIDs(_ context.Context, ids []int64) ([]Tag, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Tag
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if t, ok := r.tags[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *MemoryRepository) List(_ context.Context) ([]Tag, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tag, 0, len(r.tags))
	for _, t := range r.tags {
		out = append(out, t)
	}
	sortByName(out)
	return out, nil
}

func (r *MemoryRepository) Update(_ context.Context, tag *Tag) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.tags[tag.ID]
	if !ok {
		return apperror.NewNotFound("tag not found")
	}
	if r.nameTaken(tag.Name, tag.ID) {
		return apperror.NewConflict("a tag with this name already exists")
	}
	existing.Name = tag.Name
	r.tags[tag.ID] = existing
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tags[id]; !ok {
		return apperror.NewNotFound("tag not found")
	}
	delete(r.tags, id)
	for _, byOwner := range r.links {
		for _, set := range byOwner {
			delete(set, id)
		}
	}
	return nil
}

func (r *MemoryRepository) AddLink(ctx context.Context, owner Owner, ownerID, tagID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tags[tagID]; !ok {
		return apperror.NewNotFound("tag not found")
	}
	if r.addLink(owner, ownerID, tagID) {
		database.RecordUndo(ctx, func() { r.dropLink(owner, ownerID, tagID) })
	}
	return nil
}

func (r *MemoryRepository) RemoveLink(ctx context.Context, owner Owner, ownerID, tagID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.links[owner.kind][ownerID]
	if _, ok := set[tagID]; !ok {
		return nil
	}
	delete(set, tagID)
	database.RecordUndo(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		// The tag itself may have been deleted meanwhile.
		if _, ok := r.tags[tagID]; ok {
			r.addLink(owner, ownerID, tagID)
		}
	})
	return nil
}

// addLink stores a link and reports whether it was new. Callers hold mu.
func (r *MemoryRepository) addLink(owner Owner, ownerID, tagID int64) bool {
	byOwner := r.links[owner.kind]
	if byOwner == nil {
		byOwner = make(map[int64]map[int64]struct{})
		r.links[owner.kind] = byOwner
	}
	set := byOwner[ownerID]
	if set == nil {
		set = make(map[int64]struct{})
		byOwner[ownerID] = set
	}
	if _, ok := set[tagID]; ok {
		return false
	}
	set[tagID] = struct{}{}
	return true
}

func (r *MemoryRepository) dropLink(owner Owner, ownerID, tagID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.links[owner.kind][ownerID], tagID)
}

func (r *MemoryRepository) GetTags(_ context.Context, owner Owner, ownerID int64) ([]Tag, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.tagsOf(owner, ownerID), nil
}

// GetTagsBatch fails with the context's error once ctx is done, as the
// MariaDB query would.
func (r *MemoryRepository) GetTagsBatch(ctx context.Context, owner Owner, ownerIDs []int64) (map[int64][]Tag, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[int64][]Tag)
	for _, id := range ownerIDs {
		if tags := r.tagsOf(owner, id); len(tags) > 0 {
			result[id] = tags
		}
	}
	return result, nil
}

// DropOwner removes every link held by one owner record. The memory driver
// calls it where MariaDB would cascade a delete.
func (r *MemoryRepository) DropOwner(owner Owner, ownerID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.links[owner.kind], ownerID)
}

func (r *MemoryRepository) tagsOf(owner Owner, ownerID int64) []Tag {
	set := r.links[owner.kind][ownerID]
	if len(set) == 0 {
		return nil
	}
	out := make([]Tag, 0, len(set))
	for id := range set {
		out = append(out, r.tags[id])
	}
	sortByName(out)
	return out
}

// nameTaken reports whether another tag (not exceptID) already uses name.
func (r *MemoryRepository) nameTaken(name string, exceptID int64) bool {
	for id, t := range r.tags {
		if id != exceptID && strings.EqualFold(t.Name, name) {
			return true
		}
	}
	return false
}

func sortByName(tags []Tag) {
	slices.SortFunc(tags, func(a, b Tag) int {
		if c := cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
