package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/keyxmakerx/gallery/internal/apperror"
	"github.com/keyxmakerx/gallery/internal/database"
)

// UserRepository defines the data access contract for user operations.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	FindByID(ctx context.Context, id int64) (*User, error)
	LoginExists(ctx context.Context, login string) (bool, error)

	// List returns one page of users ordered by login, plus the total count.
	List(ctx context.Context, offset, limit int) ([]User, int, error)
}

// userRepository implements UserRepository with MariaDB queries.
type userRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

// Create inserts a new user and sets the generated ID and creation time.
func (r *userRepository) Create(ctx context.Context, user *User) error {
	result, err := r.db.ExecContext(ctx, `INSERT INTO users (login) VALUES (?)`, user.Login)
	if err != nil {
		if database.IsDuplicateEntry(err) {
			return apperror.NewConflict("login is already taken")
		}
		return fmt.Errorf("inserting user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	user.ID = id

	return r.db.QueryRowContext(ctx, `SELECT created_at FROM users WHERE id = ?`, id).Scan(&user.CreatedAt)
}

// FindByID retrieves a user by their primary key.
func (r *userRepository) FindByID(ctx context.Context, id int64) (*User, error) {
	var u User
	err := database.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT id, login, created_at FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Login, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by id: %w", err)
	}
	return &u, nil
}

// LoginExists checks whether a login is already registered.
func (r *userRepository) LoginExists(ctx context.Context, login string) (bool, error) {
	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE login = ?)`, login,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking login exists: %w", err)
	}
	return exists, nil
}

// List returns a page of users ordered by login.
func (r *userRepository) List(ctx context.Context, offset, limit int) ([]User, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting users: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, login, created_at FROM users ORDER BY login ASC, id ASC LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Login, &u.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating user rows: %w", err)
	}
	return users, total, nil
}
