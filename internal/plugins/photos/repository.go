package photos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/keyxmakerx/gallery/internal/apperror"
	"github.com/keyxmakerx/gallery/internal/database"
	"github.com/keyxmakerx/gallery/internal/widgets/tags"
)

// PhotoRepository defines the data access contract for photos.
type PhotoRepository interface {
	Create(ctx context.Context, photo *Photo) error
	FindByID(ctx context.Context, id int64) (*Photo, error)
	Delete(ctx context.Context, id int64) error

	// Snapshot runs fn against one consistent view of the store.
	Snapshot(ctx context.Context, fn func(ctx context.Context) error) error

	// Transact runs fn as one all-or-nothing write.
	Transact(ctx context.Context, fn func(ctx context.Context) error) error

	// ListIDsByAlbum pages the photo ids of one album, most recent first,
	// and counts the album's photos.
	ListIDsByAlbum(ctx context.Context, albumID int64, limit, offset int) ([]int64, int, error)

	// FetchRows loads photos by id with their tags joined, one row per tag.
	// Row order is unspecified.
	FetchRows(ctx context.Context, ids []int64) ([]PhotoRow, error)
}

type photoRepository struct {
	db *sql.DB
}

// NewPhotoRepository creates a new PhotoRepository backed by MariaDB.
func NewPhotoRepository(db *sql.DB) PhotoRepository {
	return &photoRepository{db: db}
}

const photoColumns = `p.id, p.album_id, p.title, p.description, p.location, p.keywords,
	           p.upload_date, p.capture_date`

func (r *photoRepository) Create(ctx context.Context, photo *Photo) error {
	query := `INSERT INTO photos (album_id, title, description, location, keywords, upload_date, capture_date)
	           VALUES (?, ?, ?, ?, ?, ?, ?)`

	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query,
		photo.AlbumID, photo.Title, photo.Description, photo.Location, photo.Keywords,
		photo.UploadDate, photo.CaptureDate,
	)
	if err != nil {
		return fmt.Errorf("inserting photo: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	photo.ID = id
	return nil
}

func (r *photoRepository) FindByID(ctx context.Context, id int64) (*Photo, error) {
	query := `SELECT ` + photoColumns + ` FROM photos p WHERE p.id = ?`

	var p Photo
	err := database.Conn(ctx, r.db).QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.AlbumID, &p.Title, &p.Description, &p.Location, &p.Keywords,
		&p.UploadDate, &p.CaptureDate,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("photo not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying photo by id: %w", err)
	}
	return &p, nil
}

// Delete removes a photo. photo_tags rows cascade.
func (r *photoRepository) Delete(ctx context.Context, id int64) error {
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, `DELETE FROM photos WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting photo: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NewNotFound("photo not found")
	}
	return nil
}

func (r *photoRepository) Snapshot(ctx context.Context, fn func(ctx context.Context) error) error {
	return database.WithSnapshot(ctx, r.db, fn)
}

func (r *photoRepository) Transact(ctx context.Context, fn func(ctx context.Context) error) error {
	return database.WithTx(ctx, r.db, fn)
}

func (r *photoRepository) ListIDsByAlbum(ctx context.Context, albumID int64, limit, offset int) ([]int64, int, error) {
	conn := database.Conn(ctx, r.db)

	var total int
	if err := conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM photos WHERE album_id = ?`, albumID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting photos: %w", err)
	}
	if total == 0 || offset >= total {
		return nil, total, nil
	}

	rows, err := conn.QueryContext(ctx,
		`SELECT id FROM photos WHERE album_id = ?
		 ORDER BY COALESCE(capture_date, upload_date) DESC, id DESC
		 LIMIT ? OFFSET ?`, albumID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing photo ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, 0, fmt.Errorf("scanning photo id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating photo ids: %w", err)
	}
	return ids, total, nil
}

func (r *photoRepository) FetchRows(ctx context.Context, ids []int64) ([]PhotoRow, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders, args := database.InClause(ids)
	query := fmt.Sprintf(`SELECT %s, t.id, t.name, t.created_at
	           FROM photos p
	           LEFT JOIN photo_tags l ON l.photo_id = p.id
	           LEFT JOIN tags t ON t.id = l.tag_id
	           WHERE p.id IN (%s)
	           ORDER BY t.name ASC, t.id ASC`, photoColumns, placeholders)

	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetching photo rows: %w", err)
	}
	defer rows.Close()

	var out []PhotoRow
	for rows.Next() {
		var (
			row       PhotoRow
			tagID     sql.NullInt64
			tagName   sql.NullString
			tagCreate sql.NullTime
		)
		p := &row.Photo
		if err := rows.Scan(
			&p.ID, &p.AlbumID, &p.Title, &p.Description, &p.Location, &p.Keywords,
			&p.UploadDate, &p.CaptureDate, &tagID, &tagName, &tagCreate,
		); err != nil {
			return nil, fmt.Errorf("scanning photo row: %w", err)
		}
		if tagID.Valid {
			row.Tag = &tags.Tag{ID: tagID.Int64, Name: tagName.String, CreatedAt: tagCreate.Time}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating photo rows: %w", err)
	}
	return out, nil
}
