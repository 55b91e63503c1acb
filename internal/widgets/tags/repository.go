package tags

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/keyxmakerx/gallery/internal/apperror"
	"github.com/keyxmakerx/gallery/internal/database"
)

// TagRepository defines the data access contract for tags and their links
// to albums and photos. All SQL lives in the MariaDB implementation; the
// memory implementation mirrors its semantics.
type TagRepository interface {
	// Create inserts a new tag. The tag's ID is set on the struct after insert.
	Create(ctx context.Context, tag *Tag) error

	// FindByID retrieves a single tag by its primary key.
	FindByID(ctx context.Context, id int64) (*Tag, error)

	// FindByIDs returns the tags among ids that exist, in no particular order.
	FindByIDs(ctx context.Context, ids []int64) ([]Tag, error)

	// List returns every tag ordered alphabetically by name.
	List(ctx context.Context) ([]Tag, error)

	// Update renames an existing tag.
	Update(ctx context.Context, tag *Tag) error

	// Delete removes a tag by ID together with all of its links.
	Delete(ctx context.Context, id int64) error

	// AddLink attaches a tag to an owner record. Existing links are kept.
	AddLink(ctx context.Context, owner Owner, ownerID, tagID int64) error

	// RemoveLink detaches a tag from an owner record.
	RemoveLink(ctx context.Context, owner Owner, ownerID, tagID int64) error

	// GetTags returns the tags linked to a single owner record.
	GetTags(ctx context.Context, owner Owner, ownerID int64) ([]Tag, error)

	// GetTagsBatch returns tags for multiple owner records in a single query,
	// keyed by owner ID. Records without tags have no entry.
	GetTagsBatch(ctx context.Context, owner Owner, ownerIDs []int64) (map[int64][]Tag, error)
}

// tagRepository implements TagRepository using MariaDB with hand-written SQL.
type tagRepository struct {
	db *sql.DB
}

// NewTagRepository creates a new TagRepository backed by the given database connection.
func NewTagRepository(db *sql.DB) TagRepository {
	return &tagRepository{db: db}
}

// Create inserts a new tag into the tags table and sets the auto-generated ID
// on the provided struct.
func (r *tagRepository) Create(ctx context.Context, tag *Tag) error {
	result, err := database.Conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO tags (name) VALUES (?)`, tag.Name)
	if err != nil {
		if database.IsDuplicateEntry(err) {
			return apperror.NewConflict("a tag with this name already exists")
		}
		return fmt.Errorf("inserting tag: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	tag.ID = id

	// created_at is filled in by the column default.
	return database.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT created_at FROM tags WHERE id = ?`, id).Scan(&tag.CreatedAt)
}

// FindByID retrieves a single tag by its primary key.
func (r *tagRepository) FindByID(ctx context.Context, id int64) (*Tag, error) {
	var t Tag
	err := database.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT id, name, created_at FROM tags WHERE id = ?`, id,
	).Scan(&t.ID, &t.Name, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("tag not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying tag by id: %w", err)
	}
	return &t, nil
}

// FindByIDs returns the existing tags among ids.
func (r *tagRepository) FindByIDs(ctx context.Context, ids []int64) ([]Tag, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders, args := database.InClause(ids)
	query := fmt.Sprintf(`SELECT id, name, created_at FROM tags WHERE id IN (%s)`, placeholders)

	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tags by ids: %w", err)
	}
	defer rows.Close()

	return scanTags(rows)
}

// List returns all tags ordered by name.
func (r *tagRepository) List(ctx context.Context) ([]Tag, error) {
	rows, err := database.Conn(ctx, r.db).QueryContext(ctx,
		`SELECT id, name, created_at FROM tags ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}
	defer rows.Close()

	return scanTags(rows)
}

// Update renames an existing tag.
func (r *tagRepository) Update(ctx context.Context, tag *Tag) error {
	result, err := database.Conn(ctx, r.db).ExecContext(ctx,
		`UPDATE tags SET name = ? WHERE id = ?`, tag.Name, tag.ID)
	if err != nil {
		if database.IsDuplicateEntry(err) {
			return apperror.NewConflict("a tag with this name already exists")
		}
		return fmt.Errorf("updating tag: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	// MariaDB reports 0 affected rows when the name is unchanged, so only
	// treat it as missing if the row is really gone.
	if rowsAffected == 0 {
		if _, err := r.FindByID(ctx, tag.ID); err != nil {
			return err
		}
	}

	return nil
}

// Delete removes a tag by ID. The album_tags and photo_tags rows are
// cascade-deleted by the foreign key constraints.
func (r *tagRepository) Delete(ctx context.Context, id int64) error {
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, `DELETE FROM tags WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting tag: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NewNotFound("tag not found")
	}

	return nil
}

// AddLink creates a row in the owner's join table. Uses INSERT IGNORE to
// silently skip if the association already exists.
func (r *tagRepository) AddLink(ctx context.Context, owner Owner, ownerID, tagID int64) error {
	query := fmt.Sprintf(`INSERT IGNORE INTO %s (%s, tag_id) VALUES (?, ?)`, owner.table, owner.column)

	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, ownerID, tagID); err != nil {
		return fmt.Errorf("adding tag to %s: %w", owner, err)
	}
	return nil
}

// RemoveLink deletes a row from the owner's join table.
func (r *tagRepository) RemoveLink(ctx context.Context, owner Owner, ownerID, tagID int64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE %s = ? AND tag_id = ?`, owner.table, owner.column)

	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, ownerID, tagID); err != nil {
		return fmt.Errorf("removing tag from %s: %w", owner, err)
	}
	return nil
}

// GetTags returns all tags linked to one owner record, ordered by name.
func (r *tagRepository) GetTags(ctx context.Context, owner Owner, ownerID int64) ([]Tag, error) {
	query := fmt.Sprintf(`SELECT t.id, t.name, t.created_at
	           FROM tags t
	           INNER JOIN %s l ON l.tag_id = t.id
	           WHERE l.%s = ?
	           ORDER BY t.name ASC, t.id ASC`, owner.table, owner.column)

	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("getting %s tags: %w", owner, err)
	}
	defer rows.Close()

	return scanTags(rows)
}

// GetTagsBatch returns tags for multiple owner records in a single query,
// keyed by owner ID. This avoids N+1 queries on list views.
//
// Returns an empty map if no owner IDs are provided.
func (r *tagRepository) GetTagsBatch(ctx context.Context, owner Owner, ownerIDs []int64) (map[int64][]Tag, error) {
	if len(ownerIDs) == 0 {
		return make(map[int64][]Tag), nil
	}

	placeholders, args := database.InClause(ownerIDs)
	query := fmt.Sprintf(`SELECT l.%s, t.id, t.name, t.created_at
	           FROM tags t
	           INNER JOIN %s l ON l.tag_id = t.id
	           WHERE l.%s IN (%s)
	           ORDER BY t.name ASC, t.id ASC`, owner.column, owner.table, owner.column, placeholders)

	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("batch getting %s tags: %w", owner, err)
	}
	defer rows.Close()

	result := make(map[int64][]Tag)
	for rows.Next() {
		var ownerID int64
		var t Tag
		if err := rows.Scan(&ownerID, &t.ID, &t.Name, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning batch %s tag row: %w", owner, err)
		}
		result[ownerID] = append(result[ownerID], t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating batch %s tag rows: %w", owner, err)
	}

	return result, nil
}

func scanTags(rows *sql.Rows) ([]Tag, error) {
	var tags []Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning tag row: %w", err)
		}
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tag rows: %w", err)
	}
	return tags, nil
}
