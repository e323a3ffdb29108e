package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/geocoder89/accounthub/internal/cache"
	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/geocoder89/accounthub/internal/security"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type UserStore interface {
	EmailExists(ctx context.Context, email string) (bool, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	GetRoleByName(ctx context.Context, name string) (user.Role, error)
	CreateWithRoles(ctx context.Context, u user.User, roles []user.Role) error
	GetByEmail(ctx context.Context, email string) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
	Delete(ctx context.Context, id string) error
}

type TokenIssuer interface {
	IssueToken(subjectID, email string, roles []string) (string, error)
}

type PasswordHasher interface {
	Hash(plain string) (security.Digest, error)
	Verify(plain string, d security.Digest) bool
}

// ProfileCache must drop Set calls for ids invalidated earlier, so a lookup racing a delete
// cannot put the deleted profile back.
type ProfileCache interface {
	Get(ctx context.Context, id string) (user.Profile, bool)
	Set(ctx context.Context, p user.Profile)
	Invalidate(ctx context.Context, id string) error
}

type Metrics interface {
	ObserveAccountOp(op, result string)
}

const (
	resultOK       = "ok"
	resultRejected = "rejected"
	resultError    = "error"
)

type Deps struct {
	Store       UserStore
	Tokens      TokenIssuer
	Hasher      PasswordHasher
	Profiles    ProfileCache
	Roles       *cache.Cache[user.Role]
	Metrics     Metrics
	Log         *slog.Logger
	DefaultRole string
}

type Service struct {
	store       UserStore
	tokens      TokenIssuer
	hasher      PasswordHasher
	profiles    ProfileCache
	roles       *cache.Cache[user.Role]
	metrics     Metrics
	log         *slog.Logger
	defaultRole string
	tracer      trace.Tracer

	// login against an unknown email still pays for one verification
	decoy security.Digest
}

func NewService(d Deps) (*Service, error) {
	if d.Store == nil || d.Tokens == nil || d.Hasher == nil {
		return nil, errors.New("account: store, tokens and hasher are required")
	}
	if d.Roles == nil {
		d.Roles = cache.New[user.Role](0)
	}
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.DefaultRole == "" {
		d.DefaultRole = user.DefaultRoleName
	}

	decoy, err := d.Hasher.Hash("decoy-password")
	if err != nil {
		return nil, fmt.Errorf("account: build decoy digest: %w", err)
	}

	return &Service{
		store:       d.Store,
		tokens:      d.Tokens,
		hasher:      d.Hasher,
		profiles:    d.Profiles,
		roles:       d.Roles,
		metrics:     d.Metrics,
		log:         d.Log,
		defaultRole: d.DefaultRole,
		tracer:      otel.Tracer("accounthub/account"),
		decoy:       decoy,
	}, nil
}

func (s *Service) Register(ctx context.Context, req user.RegisterRequest) (resp Response, err error) {
	ctx, span := s.tracer.Start(ctx, "account.Register")
	defer func() { s.finish(span, "register", resp, err) }()

	taken, err := s.store.EmailExists(ctx, req.Email)
	if err != nil {
		return Response{}, fmt.Errorf("check email: %w", err)
	}
	if taken {
		return fail(MsgEmailInUse), nil
	}

	taken, err = s.store.UsernameExists(ctx, req.Username)
	if err != nil {
		return Response{}, fmt.Errorf("check username: %w", err)
	}
	if taken {
		return fail(MsgUsernameInUse), nil
	}

	if req.Password != req.ConfirmPassword {
		return fail(MsgPasswordMismatch), nil
	}

	role, err := s.defaultRoleFor(ctx)
	if errors.Is(err, user.ErrRoleNotFound) {
		s.log.ErrorContext(ctx, "default role missing", "role", s.defaultRole)
		return fail(MsgNoDefaultRole), nil
	}
	if err != nil {
		return Response{}, fmt.Errorf("resolve default role: %w", err)
	}

	digest, err := s.hasher.Hash(req.Password)
	if errors.Is(err, security.ErrEmptyPassword) {
		return fail(MsgEmptyPassword), nil
	}
	if err != nil {
		return Response{}, fmt.Errorf("hash password: %w", err)
	}

	u := user.NewFromRegisterRequest(req)
	u.PasswordHash = digest.Hash
	u.PasswordSalt = digest.Salt
	u.PasswordScheme = string(digest.Scheme)

	err = s.store.CreateWithRoles(ctx, u, []user.Role{role})
	switch {
	case errors.Is(err, user.ErrEmailTaken):
		return fail(MsgEmailInUse), nil
	case errors.Is(err, user.ErrUsernameTaken):
		return fail(MsgUsernameInUse), nil
	case errors.Is(err, user.ErrRoleNotFound):
		// role vanished between lookup and insert
		s.roles.Delete(s.defaultRole)
		return fail(MsgNoDefaultRole), nil
	case err != nil:
		return Response{}, fmt.Errorf("create user: %w", err)
	}

	token, err := s.tokens.IssueToken(u.ID, u.Email, []string{role.Name})
	if err != nil {
		return Response{}, fmt.Errorf("issue token: %w", err)
	}

	span.SetAttributes(attribute.String("user.id", u.ID))
	s.log.InfoContext(ctx, "user registered", "user_id", u.ID)

	return Response{
		Success:  true,
		Message:  MsgRegistered,
		Token:    token,
		ID:       u.ID,
		Username: u.Username,
	}, nil
}

func (s *Service) Login(ctx context.Context, req user.LoginRequest) (resp Response, err error) {
	ctx, span := s.tracer.Start(ctx, "account.Login")
	defer func() { s.finish(span, "login", resp, err) }()

	u, err := s.store.GetByEmail(ctx, req.Email)
	if errors.Is(err, user.ErrNotFound) {
		s.hasher.Verify(req.Password, s.decoy)
		return fail(MsgBadCredentials), nil
	}
	if err != nil {
		return Response{}, fmt.Errorf("lookup user: %w", err)
	}

	ok := s.hasher.Verify(req.Password, security.Digest{
		Scheme: security.Scheme(u.PasswordScheme),
		Hash:   u.PasswordHash,
		Salt:   u.PasswordSalt,
	})
	if !ok {
		return fail(MsgBadCredentials), nil
	}

	token, err := s.tokens.IssueToken(u.ID, u.Email, u.RoleNames())
	if err != nil {
		return Response{}, fmt.Errorf("issue token: %w", err)
	}

	span.SetAttributes(attribute.String("user.id", u.ID))

	return Response{
		Success:  true,
		Message:  MsgLoggedIn,
		Token:    token,
		ID:       u.ID,
		Username: u.Username,
	}, nil
}

func (s *Service) Delete(ctx context.Context, userID string) (resp Response, err error) {
	ctx, span := s.tracer.Start(ctx, "account.Delete", trace.WithAttributes(attribute.String("user.id", userID)))
	defer func() { s.finish(span, "delete", resp, err) }()

	err = s.store.Delete(ctx, userID)
	if errors.Is(err, user.ErrNotFound) {
		return fail(MsgUserNotFound), nil
	}
	if err != nil {
		return Response{}, fmt.Errorf("delete user: %w", err)
	}

	if s.profiles != nil {
		if err := s.profiles.Invalidate(ctx, userID); err != nil {
			s.log.ErrorContext(ctx, "profile cache invalidation failed", "user_id", userID, "err", err)
		}
	}
	s.log.InfoContext(ctx, "user deleted", "user_id", userID)

	return Response{Success: true, Message: MsgDeleted}, nil
}

// GetByID returns the redacted profile or user.ErrNotFound.
func (s *Service) GetByID(ctx context.Context, userID string) (p user.Profile, err error) {
	ctx, span := s.tracer.Start(ctx, "account.GetByID", trace.WithAttributes(attribute.String("user.id", userID)))
	defer func() {
		result := resultOK
		switch {
		case errors.Is(err, user.ErrNotFound):
			result = resultRejected
		case err != nil:
			result = resultError
			span.RecordError(err)
			span.SetStatus(codes.Error, "get user failed")
		}
		s.observe("get_by_id", result)
		span.End()
	}()

	if s.profiles != nil {
		if cached, ok := s.profiles.Get(ctx, userID); ok {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return cached, nil
		}
	}

	u, err := s.store.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.Profile{}, err
		}
		return user.Profile{}, fmt.Errorf("get user: %w", err)
	}

	p = u.Profile()
	if s.profiles != nil {
		s.profiles.Set(ctx, p)
	}
	return p, nil
}

func (s *Service) defaultRoleFor(ctx context.Context) (user.Role, error) {
	if r, ok := s.roles.Get(s.defaultRole); ok {
		return r, nil
	}

	r, err := s.store.GetRoleByName(ctx, s.defaultRole)
	if err != nil {
		return user.Role{}, err
	}

	s.roles.Set(s.defaultRole, r)
	return r, nil
}

func (s *Service) finish(span trace.Span, op string, resp Response, err error) {
	result := resultOK
	switch {
	case err != nil:
		result = resultError
		span.RecordError(err)
		span.SetStatus(codes.Error, op+" failed")
	case !resp.Success:
		result = resultRejected
		span.SetAttributes(attribute.String("account.reason", resp.Message))
	}

	s.observe(op, result)
	span.End()
}

func (s *Service) observe(op, result string) {
	if s.metrics != nil {
		s.metrics.ObserveAccountOp(op, result)
	}
}
