// Package users is the minimal identity store behind album ownership. A user
// is an id and a unique login; there are no credentials here. Albums
// reference their owner by id and the contributor filter matches on login.
package users

import "time"

// User is an album owner.
type User struct {
	ID        int64     `json:"id"`
	Login     string    `json:"login"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateUserRequest holds the data submitted when registering a user.
type CreateUserRequest struct {
	Login string `json:"login" validate:"required,max=50,login"`
}
