package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/geocoder89/accounthub/internal/account"
	"github.com/geocoder89/accounthub/internal/auth"
	"github.com/geocoder89/accounthub/internal/config"
	"github.com/geocoder89/accounthub/internal/db"
	apphttp "github.com/geocoder89/accounthub/internal/http"
	"github.com/geocoder89/accounthub/internal/http/handlers"
	"github.com/geocoder89/accounthub/internal/observability"
	"github.com/geocoder89/accounthub/internal/repo/postgres"
	"github.com/geocoder89/accounthub/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

func setupAccountRouter(t *testing.T) (*gin.Engine, *pgxpool.Pool) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}

	ctx := context.Background()

	pool, err := db.NewPool(ctx, dsn, 4)
	if err != nil {
		t.Fatalf("Failed to create pgx pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if _, err := db.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := db.EnsureRoles(ctx, pool, "User", "Admin"); err != nil {
		t.Fatalf("seed roles: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))

	reg := prometheus.NewRegistry()
	prom := observability.NewProm(reg)

	tokens, err := auth.NewManager(strings.Repeat("i", 64), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	hasher, err := security.NewHasher(security.SchemeHMACSHA512, security.Argon2Params{})
	if err != nil {
		t.Fatal(err)
	}

	svc, err := account.NewService(account.Deps{
		Store:   postgres.NewUsersRepo(pool, prom),
		Tokens:  tokens,
		Hasher:  hasher,
		Metrics: prom,
		Log:     logger,
	})
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.Config{Env: "test", ServiceName: "accounthub-it", MaxBodyBytes: 1 << 20}
	router := apphttp.NewRouter(logger, cfg, apphttp.Deps{
		Accounts: svc,
		Tokens:   tokens,
		Prom:     prom,
		Gatherer: reg,
		Checks:   map[string]handlers.Pinger{"db": pool.Ping},
	})

	return router, pool
}

func resetAccountDB(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	_, err := pool.Exec(context.Background(), `TRUNCATE user_roles, users CASCADE`)
	if err != nil {
		t.Fatalf("failed to truncate tables: %v", err)
	}
}

func doRequest(router http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	return w
}

func mustReadJSON[T any](t *testing.T, w *httptest.ResponseRecorder, out *T) {
	t.Helper()
	err := json.Unmarshal(w.Body.Bytes(), out)
	if err != nil {
		t.Fatalf("failed to unmarshal json: %v, body=%s", err, w.Body.String())
	}
}

func countRows(t *testing.T, pool *pgxpool.Pool) (users, links int) {
	t.Helper()

	err := pool.QueryRow(context.Background(),
		`SELECT (SELECT count(*) FROM users), (SELECT count(*) FROM user_roles)`).Scan(&users, &links)
	if err != nil {
		t.Fatalf("count rows: %v", err)
	}
	return users, links
}

func TestAccountIntegration_Register_Login_Lookup_Delete(t *testing.T) {
	router, pool := setupAccountRouter(t)
	resetAccountDB(t, pool)
	defer resetAccountDB(t, pool)

	w := doRequest(router, http.MethodPost, "/account/register",
		`{"email":"sam@example.com","username":"sam","password":"P@ss1","confirmPassword":"P@ss1","phoneNumber":"555"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("register got status %d, body=%s", w.Code, w.Body.String())
	}

	var reg account.Response
	mustReadJSON(t, w, &reg)
	if !reg.Success || reg.ID == "" || reg.Token == "" {
		t.Fatalf("register: %+v", reg)
	}

	if users, links := countRows(t, pool); users != 1 || links != 1 {
		t.Fatalf("expected 1 user and 1 link, got %d/%d", users, links)
	}

	w = doRequest(router, http.MethodPost, "/account/register",
		`{"email":"other@example.com","username":"SAM","password":"x","confirmPassword":"x","phoneNumber":"1"}`, "")
	var dup account.Response
	mustReadJSON(t, w, &dup)
	if dup.Success || dup.Message != account.MsgUsernameInUse {
		t.Fatalf("duplicate username: %+v", dup)
	}

	w = doRequest(router, http.MethodPost, "/account/login", `{"email":"SAM@example.com","password":"P@ss1"}`, "")
	var login account.Response
	mustReadJSON(t, w, &login)
	if !login.Success || login.ID != reg.ID {
		t.Fatalf("login: %+v", login)
	}

	w = doRequest(router, http.MethodGet, "/account/byId/"+reg.ID, "", login.Token)
	if w.Code != http.StatusOK {
		t.Fatalf("byId got status %d, body=%s", w.Code, w.Body.String())
	}

	w = doRequest(router, http.MethodDelete, "/account/delete", `{"userId":"`+reg.ID+`"}`, "")
	var del account.Response
	mustReadJSON(t, w, &del)
	if !del.Success || del.Message != account.MsgDeleted {
		t.Fatalf("delete: %+v", del)
	}

	if users, links := countRows(t, pool); users != 0 || links != 0 {
		t.Fatalf("expected cascade delete, got %d/%d", users, links)
	}
}

func TestAccountIntegration_ConcurrentRegisterSameEmail(t *testing.T) {
	router, pool := setupAccountRouter(t)
	resetAccountDB(t, pool)
	defer resetAccountDB(t, pool)

	const n = 8
	var wg sync.WaitGroup
	results := make([]account.Response, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body := `{"email":"race@example.com","username":"racer` + string(rune('a'+i)) +
				`","password":"p","confirmPassword":"p","phoneNumber":"1"}`
			w := doRequest(router, http.MethodPost, "/account/register", body, "")
			_ = json.Unmarshal(w.Body.Bytes(), &results[i])
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, r := range results {
		switch {
		case r.Success:
			wins++
		case r.Message != account.MsgEmailInUse:
			t.Fatalf("unexpected loser message: %+v", r)
		}
	}

	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
	if users, links := countRows(t, pool); users != 1 || links != 1 {
		t.Fatalf("expected 1 user and 1 link, got %d/%d", users, links)
	}
}
