package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretBytes is the HS512 output size; shorter keys weaken the signature.
const MinSecretBytes = 64

const DefaultTokenTTL = 7 * 24 * time.Hour

var (
	ErrWeakSecret   = errors.New("jwt secret must be at least 64 bytes")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims carries the identity of an account: sub, an optional email and one entry per role
// assignment, in assignment order.
type Claims struct {
	Email string   `json:"email,omitempty"`
	Roles []string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewManager(secret string, ttl time.Duration) (*Manager, error) {
	if len(secret) < MinSecretBytes {
		return nil, ErrWeakSecret
	}

	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	return &Manager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

func (m *Manager) TTL() time.Duration {
	return m.ttl
}

func (m *Manager) IssueToken(subjectID, email string, roles []string) (string, error) {
	now := m.now().UTC()

	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	if len(roles) > 0 {
		claims.Roles = append([]string(nil), roles...)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	return token.SignedString(m.secret)
}

func (m *Manager) VerifyAccessToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)

	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
