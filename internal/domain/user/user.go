package user

import (
	"errors"
	"time"
)

type User struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	PhoneNumber    string    `json:"phoneNumber"`
	PasswordHash   []byte    `json:"-"` // never expose hash in JSON
	PasswordSalt   []byte    `json:"-"`
	PasswordScheme string    `json:"-"`
	Roles          []Role    `json:"roles"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type Role struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// UserRole links exactly one user to one role; (UserID, RoleID) is unique.
type UserRole struct {
	UserID     string    `json:"userId"`
	RoleID     string    `json:"roleId"`
	AssignedAt time.Time `json:"assignedAt"`
}

// Profile is the read model handed out by lookups. It has no credential fields at all.
type Profile struct {
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	PhoneNumber string   `json:"phoneNumber"`
	Roles       []string `json:"roles"`
}

var (
	ErrNotFound      = errors.New("user not found")
	ErrEmailTaken    = errors.New("email already in use")
	ErrUsernameTaken = errors.New("username already in use")
	ErrRoleNotFound  = errors.New("role not found")
)

const (
	DefaultRoleName = "User"
	AdminRoleName   = "Admin"
)

func (u User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.Name)
	}
	return names
}

func (u User) Profile() Profile {
	return Profile{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		PhoneNumber: u.PhoneNumber,
		Roles:       u.RoleNames(),
	}
}
