package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// arbitrary key shared by every process that migrates this schema
const migrateLockKey = 7_313_004_211

type migration struct {
	version  int
	name     string
	upFile   string
	downFile string
}

var migFileRe = regexp.MustCompile(`^([0-9]{4})_(.+)\.(up|down)\.sql$`)

func loadMigrations(fsys fs.FS) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, "migrations")
	if err != nil {
		return nil, err
	}

	byVersion := map[int]migration{}
	for _, de := range entries {
		if de.IsDir() {
			continue
		}

		m := migFileRe.FindStringSubmatch(de.Name())
		if m == nil {
			continue
		}

		version, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf("migration %s: %w", de.Name(), err)
		}

		item := byVersion[version]
		item.version = version
		item.name = m[2]
		if m[3] == "up" {
			item.upFile = "migrations/" + de.Name()
		} else {
			item.downFile = "migrations/" + de.Name()
		}
		byVersion[version] = item
	}

	out := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.upFile == "" {
			return nil, fmt.Errorf("missing up migration for version %04d", m.version)
		}
		out = append(out, m)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

// Migrate applies every pending up migration, each in its own transaction.
// It returns the versions it applied.
func Migrate(ctx context.Context, pool *pgxpool.Pool) ([]int, error) {
	migs, err := loadMigrations(migrationsFS)
	if err != nil {
		return nil, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, migrateLockKey); err != nil {
		return nil, fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_, _ = conn.Exec(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, migrateLockKey)
	}()

	if _, err := conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		name       TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return nil, err
	}

	applied := []int{}

	for _, m := range migs {
		var exists bool
		err := conn.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, m.version).Scan(&exists)
		if err != nil {
			return applied, err
		}
		if exists {
			continue
		}

		sqlText, err := migrationsFS.ReadFile(m.upFile)
		if err != nil {
			return applied, err
		}

		err = pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(sqlText)); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.version, m.name)
			return err
		})
		if err != nil {
			return applied, fmt.Errorf("migration %04d_%s failed: %w", m.version, m.name, err)
		}

		applied = append(applied, m.version)
	}

	return applied, nil
}

// RollbackLast reverts the most recently applied migration using its down script.
func RollbackLast(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	var version int
	err := pool.QueryRow(ctx, `SELECT version FROM schema_migrations ORDER BY version DESC LIMIT 1`).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	migs, err := loadMigrations(migrationsFS)
	if err != nil {
		return 0, err
	}

	var target *migration
	for i := range migs {
		if migs[i].version == version {
			target = &migs[i]
		}
	}
	if target == nil || target.downFile == "" {
		return 0, fmt.Errorf("no down migration found for version %d", version)
	}

	sqlText, err := migrationsFS.ReadFile(target.downFile)
	if err != nil {
		return 0, err
	}

	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, string(sqlText)); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM schema_migrations WHERE version = $1`, version)
		return err
	})
	if err != nil {
		return 0, err
	}

	return version, nil
}
