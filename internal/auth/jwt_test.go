package auth

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key-test-secret-key-test-secret-key-test-secret-key!!"

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	m, err := NewManager(testSecret, 0)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func decodePayload(t *testing.T, token string) map[string]any {
	t.Helper()

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("token has %d parts", len(parts))
	}

	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}

	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	return out
}

func TestNewManager_RejectsShortSecret(t *testing.T) {
	_, err := NewManager("short", time.Hour)
	if !errors.Is(err, ErrWeakSecret) {
		t.Fatalf("got %v, want ErrWeakSecret", err)
	}
}

func TestNewManager_DefaultTTL(t *testing.T) {
	m := newTestManager(t)
	if m.TTL() != 7*24*time.Hour {
		t.Fatalf("ttl got %s", m.TTL())
	}
}

func TestIssueToken_Claims(t *testing.T) {
	m := newTestManager(t)

	issuedAt := time.Now()
	token, err := m.IssueToken("user-1", "a@x.com", []string{"User", "Admin", "User"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	payload := decodePayload(t, token)

	if payload["sub"] != "user-1" {
		t.Fatalf("sub got %v", payload["sub"])
	}
	if payload["email"] != "a@x.com" {
		t.Fatalf("email got %v", payload["email"])
	}

	roles, ok := payload["role"].([]any)
	if !ok {
		t.Fatalf("role claim got %T", payload["role"])
	}
	want := []string{"User", "Admin", "User"}
	if len(roles) != len(want) {
		t.Fatalf("roles got %v, want %v", roles, want)
	}
	for i := range want {
		if roles[i] != want[i] {
			t.Fatalf("roles[%d] got %v, want %s", i, roles[i], want[i])
		}
	}

	allowed := map[string]bool{"sub": true, "email": true, "role": true, "exp": true, "iat": true, "nbf": true}
	for k := range payload {
		if !allowed[k] {
			t.Fatalf("unexpected claim %q", k)
		}
	}

	exp := time.Unix(int64(payload["exp"].(float64)), 0)
	lower := issuedAt.Add(6*24*time.Hour + 23*time.Hour)
	upper := issuedAt.Add(7*24*time.Hour + time.Hour)
	if exp.Before(lower) || exp.After(upper) {
		t.Fatalf("exp %s outside [%s, %s]", exp, lower, upper)
	}
}

func TestIssueToken_OmitsEmptyEmailAndRoles(t *testing.T) {
	m := newTestManager(t)

	token, err := m.IssueToken("user-2", "", nil)
	if err != nil {
		t.Fatal(err)
	}

	payload := decodePayload(t, token)
	if _, ok := payload["email"]; ok {
		t.Fatalf("expected no email claim")
	}
	if _, ok := payload["role"]; ok {
		t.Fatalf("expected no role claim")
	}
}

func TestIssueToken_UsesHS512(t *testing.T) {
	m := newTestManager(t)

	token, err := m.IssueToken("user-1", "a@x.com", []string{"User"})
	if err != nil {
		t.Fatal(err)
	}

	parsed, _, err := jwt.NewParser().ParseUnverified(token, &Claims{})
	if err != nil {
		t.Fatal(err)
	}
	if parsed.Method.Alg() != "HS512" {
		t.Fatalf("alg got %s", parsed.Method.Alg())
	}
}

func TestVerifyAccessToken(t *testing.T) {
	m := newTestManager(t)

	token, err := m.IssueToken("user-1", "a@x.com", []string{"User"})
	if err != nil {
		t.Fatal(err)
	}

	claims, err := m.VerifyAccessToken(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "user-1" || claims.Email != "a@x.com" || len(claims.Roles) != 1 || claims.Roles[0] != "User" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyAccessToken_Rejects(t *testing.T) {
	m := newTestManager(t)

	other, err := NewManager(strings.Repeat("z", MinSecretBytes), 0)
	if err != nil {
		t.Fatal(err)
	}
	foreign, err := other.IssueToken("user-1", "", nil)
	if err != nil {
		t.Fatal(err)
	}

	hs256, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}

	expiredManager := newTestManager(t)
	expiredManager.now = func() time.Time { return time.Now().Add(-8 * 24 * time.Hour) }
	expired, err := expiredManager.IssueToken("user-1", "", nil)
	if err != nil {
		t.Fatal(err)
	}

	noSubject, err := m.IssueToken("", "a@x.com", nil)
	if err != nil {
		t.Fatal(err)
	}

	tests := map[string]string{
		"garbage":        "not.a.jwt",
		"other secret":   foreign,
		"wrong alg":      hs256,
		"expired":        expired,
		"missing sub":    noSubject,
		"empty":          "",
		"tampered token": foreign[:len(foreign)-2] + "xx",
	}

	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := m.VerifyAccessToken(token); err == nil {
				t.Fatalf("expected verification to fail")
			}
		})
	}
}
