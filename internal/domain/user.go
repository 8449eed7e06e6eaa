package domain

import "time"

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// UserSnapshot is the sanitized copy of a user embedded in orders. The
// password hash is never part of it.
type UserSnapshot struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Phone  string `json:"phone"`
}

func SnapshotUser(u User) UserSnapshot {
	return UserSnapshot{
		UserID: u.ID,
		Name:   u.Name,
		Email:  u.Email,
		Phone:  u.Phone,
	}
}
