package service

import (
	"context"
	"fmt"
	"strings"

	"project-chimera/internal/cache"
	"project-chimera/internal/domain"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"
)

type UserRepository interface {
	CreateUser(ctx context.Context, email, passwordHash, fundName string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, string, error)
	FindByID(ctx context.Context, id int64) (*domain.User, error)
}

type AuthService struct {
	users    UserRepository
	sessions *cache.SessionStore
	tracer   trace.Tracer
}

func NewAuthService(users UserRepository, sessions *cache.SessionStore, tracer trace.Tracer) *AuthService {
	return &AuthService{users: users, sessions: sessions, tracer: tracer}
}

// Register creates the account and logs it in, returning a session token.
func (s *AuthService) Register(ctx context.Context, email, password, fundName string) (*domain.User, string, error) {
	ctx, span := s.tracer.Start(ctx, "auth-service.register")
	defer span.End()

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, "", fmt.Errorf("invalid email address")
	}
	if len(password) < 8 {
		return nil, "", fmt.Errorf("password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}
	user, err := s.users.CreateUser(ctx, email, string(hash), strings.TrimSpace(fundName))
	if err != nil {
		return nil, "", err
	}
	token, err := s.sessions.Create(ctx, user.ID)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// Login verifies credentials and issues a fresh session token. Unknown email
// and wrong password are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.User, string, error) {
	ctx, span := s.tracer.Start(ctx, "auth-service.login")
	defer span.End()

	email = strings.ToLower(strings.TrimSpace(email))
	user, hash, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, "", err
	}
	if user == nil {
		return nil, "", domain.ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, "", domain.ErrUnauthorized
	}
	token, err := s.sessions.Create(ctx, user.ID)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

func (s *AuthService) Logout(ctx context.Context, token string) error {
	ctx, span := s.tracer.Start(ctx, "auth-service.logout")
	defer span.End()

	return s.sessions.Revoke(ctx, token)
}

// Authenticate resolves a bearer token to a user id.
func (s *AuthService) Authenticate(ctx context.Context, token string) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "auth-service.authenticate")
	defer span.End()

	userID, err := s.sessions.Resolve(ctx, token)
	if err != nil {
		return 0, err
	}
	if userID == 0 {
		return 0, domain.ErrUnauthorized
	}
	return userID, nil
}

func (s *AuthService) Profile(ctx context.Context, userID int64) (*domain.User, error) {
	ctx, span := s.tracer.Start(ctx, "auth-service.profile")
	defer span.End()

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrNotFound
	}
	return user, nil
}
