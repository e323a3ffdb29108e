package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/accounthub/internal/account"
	"github.com/geocoder89/accounthub/internal/auth"
	"github.com/geocoder89/accounthub/internal/cache"
	"github.com/geocoder89/accounthub/internal/config"
	"github.com/geocoder89/accounthub/internal/db"
	"github.com/geocoder89/accounthub/internal/domain/user"
	httpx "github.com/geocoder89/accounthub/internal/http"
	"github.com/geocoder89/accounthub/internal/http/handlers"
	"github.com/geocoder89/accounthub/internal/observability"
	"github.com/geocoder89/accounthub/internal/redisclient"
	"github.com/geocoder89/accounthub/internal/repo/memory"
	"github.com/geocoder89/accounthub/internal/repo/postgres"
	"github.com/geocoder89/accounthub/internal/security"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// Load the config set up
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	// start up the observability logger
	log := observability.NewLogger(cfg.Env, cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, observability.TracingConfig{
		ServiceName: cfg.ServiceName,
		Env:         cfg.Env,
		Endpoint:    cfg.OTLPEndpoint,
		SampleRatio: cfg.TraceSampleRate,
	})
	if err != nil {
		log.Error("tracer init failed", "err", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := observability.NewProm(reg)

	hasher, err := security.NewHasher(security.Scheme(cfg.PasswordScheme), security.DefaultArgon2Params)
	if err != nil {
		log.Error("hasher init failed", "err", err)
		os.Exit(1)
	}

	tokens, err := auth.NewManager(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		log.Error("token manager init failed", "err", err)
		os.Exit(1)
	}

	checks := map[string]handlers.Pinger{}
	store, closeStore, err := openStore(ctx, cfg, prom, log, checks)
	if err != nil {
		log.Error("store init failed", "store", cfg.Store, "err", err)
		os.Exit(1)
	}
	defer closeStore()

	created, err := db.EnsureAdminUser(ctx, store, hasher, db.AdminSeed{
		Email:    cfg.AdminEmail,
		Username: cfg.AdminUsername,
		Password: cfg.AdminPassword,
		Roles:    []string{cfg.DefaultRole, user.AdminRoleName},
	})
	if err != nil {
		log.Error("admin seed failed", "err", err)
		os.Exit(1)
	}
	if created {
		log.Info("admin user created", "email", cfg.AdminEmail)
	}

	profiles, closeProfiles := openProfileCache(ctx, cfg, log, checks)
	defer closeProfiles()

	svc, err := account.NewService(account.Deps{
		Store:       store,
		Tokens:      tokens,
		Hasher:      hasher,
		Profiles:    profiles,
		Roles:       cache.New[user.Role](cfg.RoleCacheTTL),
		Metrics:     prom,
		Log:         log,
		DefaultRole: cfg.DefaultRole,
	})
	if err != nil {
		log.Error("account service init failed", "err", err)
		os.Exit(1)
	}

	// set up routers with the log
	router := httpx.NewRouter(log, cfg, httpx.Deps{
		Accounts: svc,
		Tokens:   tokens,
		Prom:     prom,
		Gatherer: reg,
		Checks:   checks,
	})

	// server set up
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", "port", cfg.Port, "env", cfg.Env, "store", cfg.Store)
		err := srv.ListenAndServe()

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	select {
	case <-ctx.Done():
		log.Info("server shutting down")
	case err := <-serverErr:
		log.Error("server failed", "err", err)
	}

	shutdownCtx, cancel := config.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "err", err)
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Error("tracer shutdown failed", "err", err)
	}

	log.Info("shutdown complete")
}

func openStore(ctx context.Context, cfg config.Config, prom *observability.Prom, log *slog.Logger, checks map[string]handlers.Pinger) (account.UserStore, func(), error) {
	roles := append([]string{cfg.DefaultRole}, cfg.SeedRoles...)

	if cfg.Store == "memory" {
		log.Warn("using in-memory store; data is lost on restart")

		repo := memory.NewUsersRepo()
		if err := repo.EnsureRoles(ctx, roles...); err != nil {
			return nil, nil, err
		}
		checks["store"] = repo.Ping
		return repo, func() {}, nil
	}

	pool, err := db.NewPool(ctx, cfg.DBURL, cfg.DBMaxConns)
	if err != nil {
		return nil, nil, fmt.Errorf("connect: %w", err)
	}

	if cfg.AutoMigrate {
		applied, err := db.Migrate(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		if len(applied) > 0 {
			log.Info("migrations applied", "versions", applied)
		}
	}

	if err := db.EnsureRoles(ctx, pool, roles...); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("seed roles: %w", err)
	}

	checks["db"] = pool.Ping
	return postgres.NewUsersRepo(pool, prom), pool.Close, nil
}

// openProfileCache prefers redis so instances share lookups; without it each process caches alone.
func openProfileCache(ctx context.Context, cfg config.Config, log *slog.Logger, checks map[string]handlers.Pinger) (account.ProfileCache, func()) {
	if cfg.RedisAddr == "" {
		return cache.NewMemoryProfiles(cfg.ProfileCacheTTL), func() {}
	}

	client, err := redisclient.Connect(ctx, redisclient.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.Warn("redis unavailable, falling back to in-process profile cache", "addr", cfg.RedisAddr, "err", err)
		return cache.NewMemoryProfiles(cfg.ProfileCacheTTL), func() {}
	}

	checks["redis"] = client.Ping
	return cache.NewRedisProfiles(client.Raw(), cfg.ProfileCacheTTL, log), func() { _ = client.Close() }
}
