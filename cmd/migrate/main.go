package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/geocoder89/accounthub/internal/config"
	"github.com/geocoder89/accounthub/internal/db"
	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/geocoder89/accounthub/internal/observability"
	"github.com/geocoder89/accounthub/internal/repo/postgres"
	"github.com/geocoder89/accounthub/internal/security"
)

func main() {
	down := flag.Bool("down", false, "roll back the most recent migration instead of applying pending ones")
	seed := flag.Bool("seed", true, "ensure roles and the configured admin user after migrating up")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		observability.NewLogger("prod", "").Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	log := observability.NewLogger(cfg.Env, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DBURL, 2)
	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if *down {
		version, err := db.RollbackLast(ctx, pool)
		if err != nil {
			log.Error("rollback failed", "err", err)
			os.Exit(1)
		}
		log.Info("rolled back", "version", version)
		return
	}

	applied, err := db.Migrate(ctx, pool)
	if err != nil {
		log.Error("migrate failed", "err", err)
		os.Exit(1)
	}
	log.Info("migrations applied", "versions", applied)

	if !*seed {
		return
	}

	roles := append([]string{cfg.DefaultRole}, cfg.SeedRoles...)
	if err := db.EnsureRoles(ctx, pool, roles...); err != nil {
		log.Error("seed roles failed", "err", err)
		os.Exit(1)
	}

	hasher, err := security.NewHasher(security.Scheme(cfg.PasswordScheme), security.DefaultArgon2Params)
	if err != nil {
		log.Error("hasher init failed", "err", err)
		os.Exit(1)
	}

	created, err := db.EnsureAdminUser(ctx, postgres.NewUsersRepo(pool, nil), hasher, db.AdminSeed{
		Email:    cfg.AdminEmail,
		Username: cfg.AdminUsername,
		Password: cfg.AdminPassword,
		Roles:    []string{cfg.DefaultRole, user.AdminRoleName},
	})
	if err != nil {
		log.Error("admin seed failed", "err", err)
		os.Exit(1)
	}

	log.Info("seed complete", "roles", roles, "admin_created", created)
}
