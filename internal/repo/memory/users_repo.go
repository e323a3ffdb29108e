package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/google/uuid"
)

// UsersRepo keeps users, roles and their assignments in maps.
// It mirrors the postgres constraints: case-insensitive unique email/username,
// unique (user, role) pairs and cascade on user delete.
type UsersRepo struct {
	mu        sync.RWMutex
	users     map[string]user.User // by id, Roles left empty
	roles     map[string]user.Role // by id
	userRoles []user.UserRole      // assignment order
}

func NewUsersRepo() *UsersRepo {
	return &UsersRepo{
		users: make(map[string]user.User),
		roles: make(map[string]user.Role),
	}
}

// EnsureRoles creates any missing roles by name.
func (r *UsersRepo) EnsureRoles(_ context.Context, names ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range names {
		if _, ok := r.roleByNameLocked(name); ok {
			continue
		}
		id := uuid.NewString()
		r.roles[id] = user.Role{ID: id, Name: name}
	}
	return nil
}

func (r *UsersRepo) EmailExists(_ context.Context, email string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byEmailLocked(email)
	return ok, nil
}

func (r *UsersRepo) UsernameExists(_ context.Context, username string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if strings.EqualFold(u.Username, username) {
			return true, nil
		}
	}
	return false, nil
}

func (r *UsersRepo) GetRoleByName(_ context.Context, name string) (user.Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	role, ok := r.roleByNameLocked(name)
	if !ok {
		return user.Role{}, user.ErrRoleNotFound
	}
	return role, nil
}

func (r *UsersRepo) CreateWithRoles(_ context.Context, u user.User, roles []user.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byEmailLocked(u.Email); ok {
		return user.ErrEmailTaken
	}
	for _, existing := range r.users {
		if strings.EqualFold(existing.Username, u.Username) {
			return user.ErrUsernameTaken
		}
	}

	// validate every assignment before writing anything
	for _, role := range roles {
		if _, ok := r.roles[role.ID]; !ok {
			return user.ErrRoleNotFound
		}
	}

	now := time.Now().UTC()
	u.Roles = nil
	r.users[u.ID] = u

	added := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		if _, dup := added[role.ID]; dup {
			continue
		}
		added[role.ID] = struct{}{}
		r.userRoles = append(r.userRoles, user.UserRole{UserID: u.ID, RoleID: role.ID, AssignedAt: now})
	}

	return nil
}

func (r *UsersRepo) GetByEmail(_ context.Context, email string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byEmailLocked(email)
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return r.withRolesLocked(u), nil
}

func (r *UsersRepo) GetByID(_ context.Context, id string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return r.withRolesLocked(u), nil
}

func (r *UsersRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[id]; !ok {
		return user.ErrNotFound
	}
	delete(r.users, id)

	kept := r.userRoles[:0]
	for _, ur := range r.userRoles {
		if ur.UserID != id {
			kept = append(kept, ur)
		}
	}
	r.userRoles = kept

	return nil
}

// Count reports how many users and assignments are stored.
func (r *UsersRepo) Count() (users, userRoles int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.users), len(r.userRoles)
}

func (r *UsersRepo) Ping(context.Context) error {
	return nil
}

func (r *UsersRepo) byEmailLocked(email string) (user.User, bool) {
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return u, true
		}
	}
	return user.User{}, false
}

func (r *UsersRepo) roleByNameLocked(name string) (user.Role, bool) {
	for _, role := range r.roles {
		if role.Name == name {
			return role, true
		}
	}
	return user.Role{}, false
}

func (r *UsersRepo) withRolesLocked(u user.User) user.User {
	u.Roles = make([]user.Role, 0, 1)
	for _, ur := range r.userRoles {
		if ur.UserID == u.ID {
			u.Roles = append(u.Roles, r.roles[ur.RoleID])
		}
	}
	return u
}
