package user

import (
	"time"

	"github.com/google/uuid"
)

// NewFromRegisterRequest builds the user row for a registration. Credentials are filled in by the caller.
func NewFromRegisterRequest(req RegisterRequest) User {
	now := time.Now().UTC()

	return User{
		ID:          uuid.NewString(),
		Username:    req.Username,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
