package tags

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/keyxmakerx/gallery/internal/database"
)

func TestMemoryRepository_NameUniqueIgnoringCase(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	if err := repo.Create(ctx, &Tag{Name: "Beach"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertAppError(t, repo.Create(ctx, &Tag{Name: "beach"}), http.StatusConflict)
}

func TestMemoryRepository_LinksAreSets(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	a := &Tag{Name: "b-tag"}
	b := &Tag{Name: "a-tag"}
	_ = repo.Create(ctx, a)
	_ = repo.Create(ctx, b)

	for _, id := range []int64{a.ID, b.ID, a.ID} {
		if err := repo.AddLink(ctx, AlbumOwner, 1, id); err != nil {
			t.Fatalf("AddLink: %v", err)
		}
	}

	got, _ := repo.GetTags(ctx, AlbumOwner, 1)
	if len(got) != 2 {
		t.Fatalf("expected 2 tags, got %d", len(got))
	}
	if got[0].Name != "a-tag" || got[1].Name != "b-tag" {
		t.Errorf("expected name order, got %v", got)
	}

	// Same owner id under another owner kind is a different record.
	if other, _ := repo.GetTags(ctx, PhotoOwner, 1); len(other) != 0 {
		t.Errorf("photo 1 should have no tags, got %v", other)
	}
}

func TestMemoryRepository_DeleteCascadesLinks(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	tag := &Tag{Name: "x"}
	_ = repo.Create(ctx, tag)
	_ = repo.AddLink(ctx, AlbumOwner, 1, tag.ID)
	_ = repo.AddLink(ctx, PhotoOwner, 2, tag.ID)

	if err := repo.Delete(ctx, tag.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	batch, _ := repo.GetTagsBatch(ctx, AlbumOwner, []int64{1})
	if len(batch) != 0 {
		t.Errorf("expected no album links after delete, got %v", batch)
	}
	if got, _ := repo.GetTags(ctx, PhotoOwner, 2); len(got) != 0 {
		t.Errorf("expected no photo links after delete, got %v", got)
	}
}

func TestMemoryRepository_DropOwner(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	tag := &Tag{Name: "x"}
	_ = repo.Create(ctx, tag)
	_ = repo.AddLink(ctx, AlbumOwner, 1, tag.ID)
	_ = repo.AddLink(ctx, AlbumOwner, 2, tag.ID)

	repo.DropOwner(AlbumOwner, 1)

	batch, _ := repo.GetTagsBatch(ctx, AlbumOwner, []int64{1, 2})
	if _, ok := batch[1]; ok {
		t.Error("album 1 links should be gone")
	}
	if len(batch[2]) != 1 {
		t.Errorf("album 2 should keep its tag, got %v", batch[2])
	}
}

func TestMemoryRepository_AddLinkUnknownTag(t *testing.T) {
	repo := NewMemoryRepository()
	assertAppError(t, repo.AddLink(context.Background(), AlbumOwner, 1, 42), http.StatusNotFound)
}

func TestMemoryRepository_LinkChangesUndoneOnFailure(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	keep := &Tag{Name: "keep"}
	drop := &Tag{Name: "drop"}
	added := &Tag{Name: "added"}
	for _, tag := range []*Tag{keep, drop, added} {
		if err := repo.Create(ctx, tag); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	_ = repo.AddLink(ctx, AlbumOwner, 1, keep.ID)
	_ = repo.AddLink(ctx, AlbumOwner, 1, drop.ID)

	err := database.WithUndo(ctx, func(ctx context.Context) error {
		if err := repo.RemoveLink(ctx, AlbumOwner, 1, drop.ID); err != nil {
			return err
		}
		if err := repo.AddLink(ctx, AlbumOwner, 1, added.ID); err != nil {
			return err
		}
		// Re-adding an existing link must not be undone as if it were new.
		if err := repo.AddLink(ctx, AlbumOwner, 1, keep.ID); err != nil {
			return err
		}
		return errors.New("album write failed")
	})
	if err == nil {
		t.Fatal("expected the failure to propagate")
	}

	got, _ := repo.GetTags(ctx, AlbumOwner, 1)
	names := make([]string, len(got))
	for i, tag := range got {
		names[i] = tag.Name
	}
	if len(names) != 2 || names[0] != "drop" || names[1] != "keep" {
		t.Errorf("tags after rollback = %v, want [drop keep]", names)
	}
}

func TestMemoryRepository_GetTagsBatchHonorsContext(t *testing.T) {
	repo := NewMemoryRepository()
	tag := &Tag{Name: "beach"}
	_ = repo.Create(context.Background(), tag)
	_ = repo.AddLink(context.Background(), AlbumOwner, 1, tag.ID)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := repo.GetTagsBatch(ctx, AlbumOwner, []int64{1}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
