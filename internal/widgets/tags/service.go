package tags

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/keyxmakerx/gallery/internal/apperror"
	"github.com/keyxmakerx/gallery/internal/validation"
)

// TagService defines the business logic contract for tag operations.
// Handlers call these methods -- they never touch the repository directly.
type TagService interface {
	// Create validates input and creates a new tag.
	Create(ctx context.Context, req CreateTagRequest) (*Tag, error)

	// GetByID retrieves a single tag by ID.
	GetByID(ctx context.Context, id int64) (*Tag, error)

	// List returns all tags ordered by name.
	List(ctx context.Context) ([]Tag, error)

	// Update validates input and renames an existing tag.
	Update(ctx context.Context, id int64, req UpdateTagRequest) (*Tag, error)

	// Delete removes a tag and all its links.
	Delete(ctx context.Context, id int64) error

	// ValidateIDs returns a 422 naming the first id in tagIDs that does not
	// exist. An empty slice is valid.
	ValidateIDs(ctx context.Context, tagIDs []int64) error

	// SetTags replaces all tags on an owner record with the given set.
	// Performs a diff: removes tags not in the new set, adds tags not currently present.
	SetTags(ctx context.Context, owner Owner, ownerID int64, tagIDs []int64) error

	// GetTags returns all tags linked to an owner record.
	GetTags(ctx context.Context, owner Owner, ownerID int64) ([]Tag, error)

	// GetTagsBatch returns tags for multiple owner records in a single query.
	GetTagsBatch(ctx context.Context, owner Owner, ownerIDs []int64) (map[int64][]Tag, error)

	// OnChange registers fn to run after a tag is created, renamed, or
	// deleted. Used to drop caches derived from tag names.
	OnChange(fn func(ctx context.Context))
}

// tagService implements TagService.
type tagService struct {
	repo TagRepository

	mu       sync.RWMutex
	onChange []func(ctx context.Context)
}

// NewTagService creates a new TagService backed by the given repository.
func NewTagService(repo TagRepository) TagService {
	return &tagService{repo: repo}
}

// Create trims and validates the tag name and persists the new tag.
func (s *tagService) Create(ctx context.Context, req CreateTagRequest) (*Tag, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := validation.Struct(&req); err != nil {
		return nil, err
	}

	tag := &Tag{Name: req.Name}
	if err := s.repo.Create(ctx, tag); err != nil {
		return nil, err
	}

	slog.Info("tag created", slog.Int64("tag_id", tag.ID), slog.String("name", tag.Name))
	s.changed(ctx)
	return tag, nil
}

// GetByID retrieves a single tag by its primary key.
func (s *tagService) GetByID(ctx context.Context, id int64) (*Tag, error) {
	return s.repo.FindByID(ctx, id)
}

// List returns every tag.
func (s *tagService) List(ctx context.Context) ([]Tag, error) {
	return s.repo.List(ctx)
}

// Update validates the new name and persists it.
func (s *tagService) Update(ctx context.Context, id int64, req UpdateTagRequest) (*Tag, error) {
	// Verify the tag exists before validating so a missing id is a 404.
	tag, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if err := validation.Struct(&req); err != nil {
		return nil, err
	}

	tag.Name = req.Name
	if err := s.repo.Update(ctx, tag); err != nil {
		return nil, err
	}

	slog.Info("tag renamed", slog.Int64("tag_id", tag.ID), slog.String("name", tag.Name))
	s.changed(ctx)
	return tag, nil
}

// Delete removes a tag by ID. Links are removed with it.
func (s *tagService) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	slog.Info("tag deleted", slog.Int64("tag_id", id))
	s.changed(ctx)
	return nil
}

// ValidateIDs checks that every id refers to an existing tag.
func (s *tagService) ValidateIDs(ctx context.Context, tagIDs []int64) error {
	if len(tagIDs) == 0 {
		return nil
	}

	found, err := s.repo.FindByIDs(ctx, tagIDs)
	if err != nil {
		return fmt.Errorf("looking up tags for validation: %w", err)
	}

	valid := make(map[int64]bool, len(found))
	for _, t := range found {
		valid[t.ID] = true
	}
	for _, id := range tagIDs {
		if !valid[id] {
			return apperror.NewFieldValidation("tagIds", fmt.Sprintf("tag %d does not exist", id))
		}
	}
	return nil
}

// SetTags replaces all tags on an owner record with the provided tag IDs.
// It performs a diff against the current tags so that only tags that need
// to be added or removed result in queries. Duplicate ids collapse.
func (s *tagService) SetTags(ctx context.Context, owner Owner, ownerID int64, tagIDs []int64) error {
	if err := s.ValidateIDs(ctx, tagIDs); err != nil {
		return err
	}

	// Get current tags to compute the diff.
	currentTags, err := s.repo.GetTags(ctx, owner, ownerID)
	if err != nil {
		return fmt.Errorf("getting current %s tags: %w", owner, err)
	}

	currentSet := make(map[int64]bool, len(currentTags))
	for _, t := range currentTags {
		currentSet[t.ID] = true
	}

	desired := Dedupe(tagIDs)
	desiredSet := make(map[int64]bool, len(desired))
	for _, id := range desired {
		desiredSet[id] = true
	}

	// Remove tags that are in current but not in desired.
	for _, t := range currentTags {
		if !desiredSet[t.ID] {
			if err := s.repo.RemoveLink(ctx, owner, ownerID, t.ID); err != nil {
				return fmt.Errorf("removing tag %d from %s: %w", t.ID, owner, err)
			}
		}
	}

	// Add tags that are in desired but not in current.
	for _, id := range desired {
		if !currentSet[id] {
			if err := s.repo.AddLink(ctx, owner, ownerID, id); err != nil {
				return fmt.Errorf("adding tag %d to %s: %w", id, owner, err)
			}
		}
	}

	return nil
}

// GetTags returns all tags linked to the given owner record.
func (s *tagService) GetTags(ctx context.Context, owner Owner, ownerID int64) ([]Tag, error) {
	return s.repo.GetTags(ctx, owner, ownerID)
}

// GetTagsBatch returns tags for multiple owner records in one query.
func (s *tagService) GetTagsBatch(ctx context.Context, owner Owner, ownerIDs []int64) (map[int64][]Tag, error) {
	return s.repo.GetTagsBatch(ctx, owner, ownerIDs)
}

func (s *tagService) OnChange(fn func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

func (s *tagService) changed(ctx context.Context) {
	s.mu.RLock()
	hooks := slices.Clone(s.onChange)
	s.mu.RUnlock()

	for _, fn := range hooks {
		fn(ctx)
	}
}

// Dedupe returns ids with repeats removed, keeping first occurrences in order.
func Dedupe(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
