package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"spendlog/internal/core"
	"spendlog/internal/log"
	"spendlog/internal/storage"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserExists         = errors.New("username already taken")
	ErrInvalidInput       = errors.New("username and password are required")
)

// Service registers users and exchanges credentials for tokens.
type Service struct {
	users  storage.UserStore
	secret []byte
	ttl    time.Duration
	logger *log.Logger
}

func NewService(users storage.UserStore, secret []byte, ttl time.Duration, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Discard()
	}
	return &Service{users: users, secret: secret, ttl: ttl, logger: logger.WithComponent(log.ComponentAuth)}
}

func (s *Service) Register(ctx context.Context, username, password string) (core.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return core.User{}, ErrInvalidInput
	}

	hash, err := HashPassword(password)
	if err != nil {
		return core.User{}, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.users.CreateUser(ctx, core.User{Username: username, PasswordHash: hash})
	if errors.Is(err, storage.ErrConflict) {
		return core.User{}, ErrUserExists
	}
	if err != nil {
		return core.User{}, &core.StorageError{Op: "create user", Err: err}
	}

	s.logger.InfoContext(ctx, "User registered", log.FieldOwner, u.ID, log.FieldOperation, log.OpRegister)
	return u, nil
}

// Login checks credentials and returns a signed bearer token.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	u, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, storage.ErrNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", &core.StorageError{Op: "get user", Err: err}
	}
	if !CheckPassword(u.PasswordHash, password) {
		s.logger.WarnContext(ctx, "Login rejected", log.FieldOwner, u.ID, log.FieldOperation, log.OpLogin)
		return "", ErrInvalidCredentials
	}
	return s.Token(u.ID)
}

// Token signs a token for userID with the service's secret and lifetime.
func (s *Service) Token(userID string) (string, error) {
	return GenerateToken(userID, s.secret, s.ttl)
}

// Verify returns the owner identity carried by token.
func (s *Service) Verify(token string) (string, error) {
	return UserIDFromToken(token, s.secret)
}
