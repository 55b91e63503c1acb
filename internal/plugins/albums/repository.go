package albums

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/keyxmakerx/gallery/internal/apperror"
	"github.com/keyxmakerx/gallery/internal/database"
	"github.com/keyxmakerx/gallery/internal/widgets/tags"
)

// AlbumRepository defines the data access contract for albums. Tag links
// are written through the tags widget; this repository only reads them.
type AlbumRepository interface {
	// Create inserts a new album. The album's ID is set on the struct after insert.
	Create(ctx context.Context, album *Album) error

	// FindByID retrieves a bare album (no tags, no owner login).
	FindByID(ctx context.Context, id int64) (*Album, error)

	// Update replaces every column except creation_date.
	Update(ctx context.Context, album *Album) error

	// Delete removes an album. Tag links and photos go with it.
	Delete(ctx context.Context, id int64) error

	// Snapshot runs fn so that every read it makes through this repository
	// sees the same committed state where the store supports it.
	Snapshot(ctx context.Context, fn func(ctx context.Context) error) error

	// Transact runs fn as one write unit: either every change fn makes
	// through this or the tag repository is kept, or none is.
	Transact(ctx context.Context, fn func(ctx context.Context) error) error

	// ListIDs filters and orders albums and returns one page of ids plus
	// the number of matching albums.
	ListIDs(ctx context.Context, q Query) ([]int64, int, error)

	// FetchRows loads the given albums with owner login resolved. With
	// withTags the rows fan out one per tag. Row order is unspecified and
	// ids that no longer exist are simply absent.
	FetchRows(ctx context.Context, ids []int64, withTags bool) ([]AlbumRow, error)

	DistinctEvents(ctx context.Context) ([]string, error)
	DistinctYears(ctx context.Context) ([]int, error)
	DistinctTagNames(ctx context.Context) ([]string, error)
	DistinctOwnerLogins(ctx context.Context) ([]string, error)
}

// albumRepository implements AlbumRepository using MariaDB with hand-written SQL.
type albumRepository struct {
	db *sql.DB
}

// NewAlbumRepository creates a new AlbumRepository backed by the given database connection.
func NewAlbumRepository(db *sql.DB) AlbumRepository {
	return &albumRepository{db: db}
}

// albumColumns lists the album columns in scan order.
const albumColumns = `a.id, a.name, a.event, a.creation_date, a.override_date, a.keywords,
	           a.description, a.thumbnail, a.thumbnail_content_type, a.user_id`

// Create inserts an album row.
func (r *albumRepository) Create(ctx context.Context, album *Album) error {
	query := `INSERT INTO albums (name, event, creation_date, override_date, keywords,
	           description, thumbnail, thumbnail_content_type, user_id)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query,
		album.Name, album.Event, album.CreationDate, album.OverrideDate, album.Keywords,
		album.Description, album.Thumbnail, album.ThumbnailContentType, album.UserID,
	)
	if err != nil {
		return fmt.Errorf("inserting album: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	album.ID = id

	return nil
}

// FindByID retrieves a single album by its primary key.
func (r *albumRepository) FindByID(ctx context.Context, id int64) (*Album, error) {
	query := `SELECT ` + albumColumns + ` FROM albums a WHERE a.id = ?`

	var a Album
	err := database.Conn(ctx, r.db).QueryRowContext(ctx, query, id).Scan(
		&a.ID, &a.Name, &a.Event, &a.CreationDate, &a.OverrideDate, &a.Keywords,
		&a.Description, &a.Thumbnail, &a.ThumbnailContentType, &a.UserID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("album not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying album by id: %w", err)
	}
	return &a, nil
}

// Update modifies an existing album. creation_date is never written here.
func (r *albumRepository) Update(ctx context.Context, album *Album) error {
	query := `UPDATE albums SET name = ?, event = ?, override_date = ?, keywords = ?,
	           description = ?, thumbnail = ?, thumbnail_content_type = ?, user_id = ?
	           WHERE id = ?`

	_, err := database.Conn(ctx, r.db).ExecContext(ctx, query,
		album.Name, album.Event, album.OverrideDate, album.Keywords,
		album.Description, album.Thumbnail, album.ThumbnailContentType, album.UserID,
		album.ID,
	)
	if err != nil {
		return fmt.Errorf("updating album: %w", err)
	}
	// An UPDATE that changes nothing reports 0 rows, so existence is checked
	// by the service before calling Update.
	return nil
}

// Delete removes an album. album_tags and photos rows are cascade-deleted
// by the foreign key constraints.
func (r *albumRepository) Delete(ctx context.Context, id int64) error {
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, `DELETE FROM albums WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting album: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NewNotFound("album not found")
	}

	return nil
}

// Snapshot runs fn inside a read-only REPEATABLE READ transaction.
func (r *albumRepository) Snapshot(ctx context.Context, fn func(ctx context.Context) error) error {
	return database.WithSnapshot(ctx, r.db, fn)
}

func (r *albumRepository) Transact(ctx context.Context, fn func(ctx context.Context) error) error {
	return database.WithTx(ctx, r.db, fn)
}

// ListIDs runs the counting query and the paged id query.
func (r *albumRepository) ListIDs(ctx context.Context, q Query) ([]int64, int, error) {
	conn := database.Conn(ctx, r.db)
	where, args := buildWhere(q.Criteria)

	var total int
	countQuery := `SELECT COUNT(*) ` + albumFrom + ` ` + where
	if err := conn.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting albums: %w", err)
	}
	if total == 0 || q.Offset >= total {
		return nil, total, nil
	}

	idQuery := `SELECT a.id ` + albumFrom + ` ` + where + ` ` +
		buildOrderBy(q.SortBy, q.FieldSort) + ` LIMIT ? OFFSET ?`
	rows, err := conn.QueryContext(ctx, idQuery, append(args, q.Limit, q.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing album ids: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0, q.Limit)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, 0, fmt.Errorf("scanning album id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating album ids: %w", err)
	}

	return ids, total, nil
}

// FetchRows loads albums by id, joined with their owner and optionally
// their tags. No ORDER BY on the album side: callers restore id order.
func (r *albumRepository) FetchRows(ctx context.Context, ids []int64, withTags bool) ([]AlbumRow, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders, args := database.InClause(ids)
	var query string
	if withTags {
		query = fmt.Sprintf(`SELECT %s, u.login, t.id, t.name, t.created_at
	           FROM albums a
	           LEFT JOIN users u ON u.id = a.user_id
	           LEFT JOIN album_tags l ON l.album_id = a.id
	           LEFT JOIN tags t ON t.id = l.tag_id
	           WHERE a.id IN (%s)
	           ORDER BY t.name ASC, t.id ASC`, albumColumns, placeholders)
	} else {
		query = fmt.Sprintf(`SELECT %s, u.login, NULL, NULL, NULL
	           FROM albums a
	           LEFT JOIN users u ON u.id = a.user_id
	           WHERE a.id IN (%s)`, albumColumns, placeholders)
	}

	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetching album rows: %w", err)
	}
	defer rows.Close()

	var out []AlbumRow
	for rows.Next() {
		var (
			row       AlbumRow
			tagID     sql.NullInt64
			tagName   sql.NullString
			tagCreate sql.NullTime
		)
		a := &row.Album
		if err := rows.Scan(
			&a.ID, &a.Name, &a.Event, &a.CreationDate, &a.OverrideDate, &a.Keywords,
			&a.Description, &a.Thumbnail, &a.ThumbnailContentType, &a.UserID,
			&a.OwnerLogin, &tagID, &tagName, &tagCreate,
		); err != nil {
			return nil, fmt.Errorf("scanning album row: %w", err)
		}
		if tagID.Valid {
			row.Tag = &tags.Tag{ID: tagID.Int64, Name: tagName.String, CreatedAt: tagCreate.Time}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating album rows: %w", err)
	}

	return out, nil
}

// DistinctEvents returns the non-blank events in binary order. The binary
// collation also keeps values differing only in case apart.
func (r *albumRepository) DistinctEvents(ctx context.Context) ([]string, error) {
	return r.distinctStrings(ctx, "events", `SELECT DISTINCT a.event COLLATE utf8mb4_bin AS ev
	           FROM albums a
	           WHERE NOT `+blankEvent+`
	           ORDER BY ev`)
}

// DistinctYears returns the creation years, most recent first.
func (r *albumRepository) DistinctYears(ctx context.Context) ([]int, error) {
	rows, err := database.Conn(ctx, r.db).QueryContext(ctx,
		`SELECT DISTINCT YEAR(a.creation_date) AS y FROM albums a ORDER BY y DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying distinct years: %w", err)
	}
	defer rows.Close()

	var years []int
	for rows.Next() {
		var y int
		if err := rows.Scan(&y); err != nil {
			return nil, fmt.Errorf("scanning year: %w", err)
		}
		years = append(years, y)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating years: %w", err)
	}
	return years, nil
}

// DistinctTagNames returns the names of tags attached to any album.
func (r *albumRepository) DistinctTagNames(ctx context.Context) ([]string, error) {
	return r.distinctStrings(ctx, "tag names", `SELECT DISTINCT t.name COLLATE utf8mb4_bin AS n
	           FROM tags t
	           INNER JOIN album_tags l ON l.tag_id = t.id
	           ORDER BY n`)
}

// DistinctOwnerLogins returns the logins owning any album.
func (r *albumRepository) DistinctOwnerLogins(ctx context.Context) ([]string, error) {
	return r.distinctStrings(ctx, "owner logins", `SELECT DISTINCT u.login COLLATE utf8mb4_bin AS l
	           FROM users u
	           INNER JOIN albums a ON a.user_id = u.id
	           ORDER BY l`)
}

func (r *albumRepository) distinctStrings(ctx context.Context, what, query string) ([]string, error) {
	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying distinct %s: %w", what, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", what, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s: %w", what, err)
	}
	return out, nil
}
