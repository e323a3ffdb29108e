package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/geocoder89/accounthub/internal/account"
	"github.com/geocoder89/accounthub/internal/auth"
	"github.com/geocoder89/accounthub/internal/cache"
	"github.com/geocoder89/accounthub/internal/config"
	accounthttp "github.com/geocoder89/accounthub/internal/http"
	"github.com/geocoder89/accounthub/internal/observability"
	"github.com/geocoder89/accounthub/internal/repo/memory"
	"github.com/geocoder89/accounthub/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type server struct {
	handler http.Handler
	store   *memory.UsersRepo
}

func newServer(t *testing.T) server {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewUsersRepo()
	if err := store.EnsureRoles(context.Background(), "User", "Admin"); err != nil {
		t.Fatal(err)
	}

	tokens, err := auth.NewManager(strings.Repeat("s", 64), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	hasher, err := security.NewHasher(security.SchemeHMACSHA512, security.Argon2Params{})
	if err != nil {
		t.Fatal(err)
	}

	reg := prometheus.NewRegistry()
	prom := observability.NewProm(reg)

	svc, err := account.NewService(account.Deps{
		Store:    store,
		Tokens:   tokens,
		Hasher:   hasher,
		Profiles: cache.NewMemoryProfiles(time.Minute),
		Metrics:  prom,
		Log:      log,
	})
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.Config{Env: "test", ServiceName: "accounthub-test", MaxBodyBytes: 1 << 20}
	r := accounthttp.NewRouter(log, cfg, accounthttp.Deps{
		Accounts: svc,
		Tokens:   tokens,
		Prom:     prom,
		Gatherer: reg,
	})

	return server{handler: r, store: store}
}

func (s server) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) account.Response {
	t.Helper()

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d body=%s", w.Code, w.Body.String())
	}

	var resp account.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode envelope: %v body=%s", err, w.Body.String())
	}
	return resp
}

func TestAccountFlow_EndToEnd(t *testing.T) {
	s := newServer(t)

	reg := decodeEnvelope(t, s.do(t, http.MethodPost, "/account/register",
		`{"email":"a@x.com","username":"a","password":"P@ss1","confirmPassword":"P@ss1","phoneNumber":"555"}`, ""))
	if !reg.Success || reg.Message != account.MsgRegistered || reg.Token == "" {
		t.Fatalf("register: %+v", reg)
	}

	dup := decodeEnvelope(t, s.do(t, http.MethodPost, "/account/register",
		`{"email":"A@X.COM","username":"b","password":"p","confirmPassword":"p","phoneNumber":"1"}`, ""))
	if dup.Success || dup.Message != account.MsgEmailInUse {
		t.Fatalf("duplicate: %+v", dup)
	}

	bad := decodeEnvelope(t, s.do(t, http.MethodPost, "/account/login", `{"email":"a@x.com","password":"wrong"}`, ""))
	if bad.Success || bad.Message != account.MsgBadCredentials || bad.Token != "" {
		t.Fatalf("bad login: %+v", bad)
	}

	login := decodeEnvelope(t, s.do(t, http.MethodPost, "/account/login", `{"email":"a@x.com","password":"P@ss1"}`, ""))
	if !login.Success || login.Token == "" {
		t.Fatalf("login: %+v", login)
	}

	if w := s.do(t, http.MethodGet, "/account/byId/"+reg.ID, "", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("byId without token: got %d", w.Code)
	}

	w := s.do(t, http.MethodGet, "/account/byId/"+reg.ID, "", login.Token)
	if w.Code != http.StatusOK {
		t.Fatalf("byId: got %d body=%s", w.Code, w.Body.String())
	}
	if strings.Contains(strings.ToLower(w.Body.String()), "password") {
		t.Fatalf("profile leaks credentials: %s", w.Body.String())
	}

	del := decodeEnvelope(t, s.do(t, http.MethodDelete, "/account/delete", `{"userId":"`+reg.ID+`"}`, ""))
	if del != (account.Response{Success: true, Message: account.MsgDeleted}) {
		t.Fatalf("delete: %+v", del)
	}

	again := decodeEnvelope(t, s.do(t, http.MethodDelete, "/account/delete", `{"userId":"`+reg.ID+`"}`, ""))
	if again.Success || again.Message != account.MsgUserNotFound {
		t.Fatalf("second delete: %+v", again)
	}

	if w := s.do(t, http.MethodGet, "/account/byId/"+reg.ID, "", login.Token); w.Code != http.StatusNotFound {
		t.Fatalf("byId after delete: got %d", w.Code)
	}

	users, links := s.store.Count()
	if users != 0 || links != 0 {
		t.Fatalf("store not empty: %d/%d", users, links)
	}
}

func TestRouter_OpsEndpoints(t *testing.T) {
	s := newServer(t)

	// one login so the account counter has a sample
	s.do(t, http.MethodPost, "/account/login", `{"email":"a@x.com","password":"x"}`, "")

	tests := []struct {
		path     string
		contains string
	}{
		{"/healthz", "ok"},
		{"/readyz", "ready"},
		{"/metrics", "accounthub_account_operations_total"},
		{"/docs", "swagger-ui"},
		{"/docs/openapi.yaml", "/account/register"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := s.do(t, http.MethodGet, tt.path, "", "")
			if w.Code != http.StatusOK {
				t.Fatalf("got %d", w.Code)
			}
			if !strings.Contains(w.Body.String(), tt.contains) {
				t.Fatalf("body missing %q", tt.contains)
			}
		})
	}
}

func TestRouter_SecurityHeadersAndUnknownRoute(t *testing.T) {
	s := newServer(t)

	w := s.do(t, http.MethodGet, "/nope", "", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("got %d", w.Code)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("security headers missing")
	}
	if w.Header().Get("X-Request-Id") == "" {
		t.Fatalf("request id missing")
	}
}

func TestRouter_RegisterRequiresJSON(t *testing.T) {
	s := newServer(t)

	req := httptest.NewRequest(http.MethodPost, "/account/register", strings.NewReader("email=a"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("got %d", w.Code)
	}
}

func TestRouter_DeleteUsesDeleteMethod(t *testing.T) {
	s := newServer(t)

	reg := decodeEnvelope(t, s.do(t, http.MethodPost, "/account/register",
		`{"email":"a@x.com","username":"a","password":"P@ss1","confirmPassword":"P@ss1","phoneNumber":"555"}`, ""))
	body := `{"userId":"` + reg.ID + `"}`

	if w := s.do(t, http.MethodPost, "/account/delete", body, ""); w.Code != http.StatusNotFound {
		t.Fatalf("POST /account/delete: got %d", w.Code)
	}
	if users, _ := s.store.Count(); users != 1 {
		t.Fatalf("POST must not delete, users=%d", users)
	}

	req := httptest.NewRequest(http.MethodDelete, "/account/delete", strings.NewReader(body))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("DELETE without json: got %d", w.Code)
	}

	del := decodeEnvelope(t, s.do(t, http.MethodDelete, "/account/delete", body, ""))
	if !del.Success || del.Message != account.MsgDeleted {
		t.Fatalf("delete: %+v", del)
	}
}
