// Package service provides business logic for the chat service.
package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/codechat-ai/codechat/internal/model"
	"github.com/codechat-ai/codechat/pkg/logger"
	"github.com/codechat-ai/codechat/pkg/metrics"
)

// UserStore is the persistence surface the auth service needs.
type UserStore interface {
	CreateUser(ctx context.Context, email, displayName, passwordHash string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	CreateResetToken(ctx context.Context, userID uuid.UUID, token string, expiresAt time.Time) (*model.ResetToken, error)
	ConsumeResetToken(ctx context.Context, token, newPasswordHash string) error
}

// AuthService handles registration, login and password recovery.
type AuthService struct {
	users         UserStore
	resetTokenTTL time.Duration
	logger        *logger.Logger
}

// NewAuthService creates a new auth service.
func NewAuthService(users UserStore, resetTokenTTL time.Duration, log *logger.Logger) *AuthService {
	return &AuthService{
		users:         users,
		resetTokenTTL: resetTokenTTL,
		logger:        log,
	}
}

// Register creates an account. Registration does not sign the user in.
func (s *AuthService) Register(ctx context.Context, email, password, displayName string) (*model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.users.CreateUser(ctx, email, displayName, string(hash))
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID.String()))
	return user, nil
}

// Login verifies credentials. Unknown email and wrong password are both
// ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, email, password string) (*model.User, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, model.ErrNotFound) {
		metrics.LoginsTotal.WithLabelValues("failure").Inc()
		return nil, model.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		metrics.LoginsTotal.WithLabelValues("failure").Inc()
		return nil, model.ErrInvalidCredentials
	}

	metrics.LoginsTotal.WithLabelValues("success").Inc()
	return user, nil
}

// LookupByID restores a previously authenticated identity from a
// persisted reference. Returns nil without error when the id is
// unknown.
func (s *AuthService) LookupByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// RequestPasswordReset mints a short-lived reset token for the account,
// or returns nil when the email is unknown. Out-of-band delivery of the
// token is the caller's responsibility.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (*model.ResetToken, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	token, err := s.users.CreateResetToken(ctx, user.ID, hex.EncodeToString(buf), time.Now().Add(s.resetTokenTTL))
	if err != nil {
		return nil, err
	}

	s.logger.Info("password reset requested", zap.String("user_id", user.ID.String()))
	return token, nil
}

// ResetPassword consumes a token and sets the new password digest. It
// reports false for an unknown or expired token; a consumed token never
// succeeds a second time.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) (bool, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return false, fmt.Errorf("failed to hash password: %w", err)
	}

	err = s.users.ConsumeResetToken(ctx, token, string(hash))
	if errors.Is(err, model.ErrInvalidToken) || errors.Is(err, model.ErrExpiredToken) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
