package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/geocoder89/accounthub/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	emailUniqConstraint    = "users_email_lower_uniq"
	usernameUniqConstraint = "users_username_lower_uniq"
)

type UsersRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewUsersRepo(pool *pgxpool.Pool, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{pool: pool, prom: prom}
}

func (r *UsersRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *UsersRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *UsersRepo) EmailExists(ctx context.Context, email string) (exists bool, err error) {
	err = r.observe("users.email_exists", func() error {
		return r.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM users WHERE lower(email) = lower($1))`,
			email,
		).Scan(&exists)
	})
	return
}

func (r *UsersRepo) UsernameExists(ctx context.Context, username string) (exists bool, err error) {
	err = r.observe("users.username_exists", func() error {
		return r.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM users WHERE lower(username) = lower($1))`,
			username,
		).Scan(&exists)
	})
	return
}

func (r *UsersRepo) GetRoleByName(ctx context.Context, name string) (user.Role, error) {
	var role user.Role

	err := r.observe("roles.get_by_name", func() error {
		return r.pool.QueryRow(ctx, `SELECT id, name FROM roles WHERE name = $1`, name).Scan(&role.ID, &role.Name)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.Role{}, user.ErrRoleNotFound
		}
		return user.Role{}, err
	}
	return role, nil
}

// CreateWithRoles writes the user row and its role assignments in one transaction,
// so a failed assignment never leaves an orphan user behind.
func (r *UsersRepo) CreateWithRoles(ctx context.Context, u user.User, roles []user.Role) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	err = r.observe("users.create.insert_user", func() error {
		_, e := tx.Exec(ctx, `
		INSERT INTO users (id, username, email, phone_number, password_hash, password_salt, password_scheme, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, u.ID, u.Username, u.Email, u.PhoneNumber, u.PasswordHash, u.PasswordSalt, u.PasswordScheme, u.CreatedAt, u.UpdatedAt)
		return e
	})

	if err != nil {
		err = mapUniqueViolation(err)
		return
	}

	assignedAt := time.Now().UTC()

	for _, role := range roles {
		err = r.observe("users.create.insert_role", func() error {
			_, e := tx.Exec(ctx, `
			INSERT INTO user_roles (user_id, role_id, assigned_at)
			VALUES ($1,$2,$3)
			ON CONFLICT (user_id, role_id) DO NOTHING
		`, u.ID, role.ID, assignedAt)
			return e
		})

		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23503" {
				err = user.ErrRoleNotFound
			}
			return
		}
	}

	err = tx.Commit(ctx)
	return
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	return r.getOne(ctx, "users.get_by_email", `WHERE lower(u.email) = lower($1)`, email)
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	return r.getOne(ctx, "users.get_by_id", `WHERE u.id = $1`, id)
}

// getOne loads a user with its role assignments. Roles come back in assignment order.
func (r *UsersRepo) getOne(ctx context.Context, op, where string, arg any) (user.User, error) {
	var u user.User

	err := r.observe(op, func() error {
		return r.pool.QueryRow(ctx, `
		SELECT u.id, u.username, u.email, u.phone_number, u.password_hash, u.password_salt,
		       u.password_scheme, u.created_at, u.updated_at
		FROM users u
		`+where, arg).Scan(
			&u.ID,
			&u.Username,
			&u.Email,
			&u.PhoneNumber,
			&u.PasswordHash,
			&u.PasswordSalt,
			&u.PasswordScheme,
			&u.CreatedAt,
			&u.UpdatedAt,
		)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, err
	}

	var rows pgx.Rows
	err = r.observe(op+".roles", func() error {
		var qerr error
		rows, qerr = r.pool.Query(ctx, `
		SELECT r.id, r.name
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1
		ORDER BY ur.assigned_at ASC, r.name ASC
	`, u.ID)
		return qerr
	})
	if err != nil {
		return user.User{}, err
	}

	roles, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (user.Role, error) {
		var role user.Role
		err := row.Scan(&role.ID, &role.Name)
		return role, err
	})
	if err != nil {
		return user.User{}, err
	}

	u.Roles = roles
	return u, nil
}

// Delete removes the user; user_roles rows go with it through ON DELETE CASCADE.
func (r *UsersRepo) Delete(ctx context.Context, id string) error {
	var tag pgconn.CommandTag

	err := r.observe("users.delete", func() error {
		var e error
		tag, e = r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
		return e
	})
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}

func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return err
	}

	switch pgErr.ConstraintName {
	case emailUniqConstraint:
		return user.ErrEmailTaken
	case usernameUniqConstraint:
		return user.ErrUsernameTaken
	default:
		return err
	}
}
