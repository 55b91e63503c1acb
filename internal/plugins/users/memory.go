package users

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/keyxmakerx/gallery/internal/apperror"
	"github.com/keyxmakerx/gallery/internal/pagination"
)

// MemoryRepository is an in-process UserRepository for the memory storage driver.
type MemoryRepository struct {
	mu     sync.RWMutex
	nextID int64
	users  map[int64]User
}

// NewMemoryRepository creates an empty in-memory user store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{users: make(map[int64]User)}
}

var _ UserRepository = (*MemoryRepository)(nil)

func (r *MemoryRepository) Create(_ context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Login == user.Login {
			return apperror.NewConflict("login is already taken")
		}
	}
	r.nextID++
	user.ID = r.nextID
	user.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	r.users[user.ID] = *user
	return nil
}

func (r *MemoryRepository) FindByID(_ context.Context, id int64) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, apperror.NewNotFound("user not found")
	}
	return &u, nil
}

func (r *MemoryRepository) LoginExists(_ context.Context, login string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.Login == login {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRepository) List(_ context.Context, offset, limit int) ([]User, int, error) {
	r.mu.RLock()
	all := make([]User, 0, len(r.users))
	for _, u := range r.users {
		all = append(all, u)
	}
	r.mu.RUnlock()

	slices.SortFunc(all, func(a, b User) int {
		if c := cmp.Compare(a.Login, b.Login); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	total := len(all)
	start, end := pagination.Window(total, offset, limit)
	if start == end {
		return nil, total, nil
	}
	return all[start:end], total, nil
}

// Logins returns the login of every user in ids that exists, keyed by id.
// The album memory repository uses it to resolve owners.
func (r *MemoryRepository) Logins(ids []int64) map[int64]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[int64]string, len(ids))
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			out[id] = u.Login
		}
	}
	return out
}
