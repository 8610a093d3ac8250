package auth

import (
	"strconv"
	"time"
)

// User represents an authenticated user account.
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity is the resolved caller of a request.
type Identity struct {
	UID   string `json:"uid"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// IdentityOf builds the identity for a user.
func IdentityOf(u User) Identity {
	name := u.Name
	if name == "" {
		name = u.Email
	}
	return Identity{UID: strconv.FormatInt(u.ID, 10), Name: name, Email: u.Email}
}

// UserID parses the numeric user id behind the identity.
func (i Identity) UserID() (int64, bool) {
	id, err := strconv.ParseInt(i.UID, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
