package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/geocoder89/accounthub/internal/security"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureRoles inserts the named roles that do not exist yet. Safe to run on every boot.
func EnsureRoles(ctx context.Context, pool *pgxpool.Pool, names ...string) error {
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		_, err := pool.Exec(ctx,
			`INSERT INTO roles (id, name) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`,
			uuid.NewString(), name,
		)
		if err != nil {
			return fmt.Errorf("seed role %q: %w", name, err)
		}
	}
	return nil
}

type AdminStore interface {
	EmailExists(ctx context.Context, email string) (bool, error)
	GetRoleByName(ctx context.Context, name string) (user.Role, error)
	CreateWithRoles(ctx context.Context, u user.User, roles []user.Role) error
}

type AdminSeed struct {
	Email    string
	Username string
	Password string
	// Roles assigned in order; typically the default role followed by "Admin".
	Roles []string
}

// EnsureAdminUser creates the bootstrap admin account when it is configured and missing.
// It reports whether an account was created.
func EnsureAdminUser(ctx context.Context, store AdminStore, hasher *security.Hasher, seed AdminSeed) (bool, error) {
	if seed.Email == "" || seed.Password == "" {
		return false, nil
	}

	exists, err := store.EmailExists(ctx, seed.Email)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	roles := make([]user.Role, 0, len(seed.Roles))
	for _, name := range seed.Roles {
		role, err := store.GetRoleByName(ctx, name)
		if err != nil {
			return false, fmt.Errorf("admin role %q: %w", name, err)
		}
		roles = append(roles, role)
	}

	digest, err := hasher.Hash(seed.Password)
	if err != nil {
		return false, err
	}

	username := seed.Username
	if username == "" {
		username = "admin"
	}

	u := user.NewFromRegisterRequest(user.RegisterRequest{Email: seed.Email, Username: username})
	u.PasswordHash = digest.Hash
	u.PasswordSalt = digest.Salt
	u.PasswordScheme = string(digest.Scheme)

	err = store.CreateWithRoles(ctx, u, roles)
	if errors.Is(err, user.ErrEmailTaken) {
		// another instance won the race
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return true, nil
}
