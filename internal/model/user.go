package model

import "time"

// User is an authenticated person. Sub is the stable external identity used
// as the owner string on courses.
type User struct {
	Sub       string `json:"sub"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// NewUser creates a User with timestamps set.
func NewUser(sub, email, name string) User {
	now := time.Now().UTC().Format(time.RFC3339)
	return User{Sub: sub, Email: email, Name: name, CreatedAt: now, UpdatedAt: now}
}
