package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/codechat-ai/codechat/internal/model"
)

// UserStore persists users and reset tokens.
type UserStore struct {
	db *sql.DB
}

// NewUserStore creates a user store over the shared pool.
func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

// CreateUser inserts a new user. The unique email constraint is the
// authority under concurrent registration; a violation maps to
// ErrDuplicateEmail.
func (s *UserStore) CreateUser(ctx context.Context, email, displayName, passwordHash string) (*model.User, error) {
	user := &model.User{
		ID:           uuid.New(),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: passwordHash,
	}

	err := s.db.QueryRowContext(ctx,
		`INSERT INTO users (id, email, display_name, password_hash)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		user.ID, user.Email, user.DisplayName, user.PasswordHash,
	).Scan(&user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return nil, model.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// GetUserByEmail returns the user with the given email, or ErrNotFound.
func (s *UserStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, email, display_name, password_hash, created_at
		 FROM users WHERE email = $1`, email))
}

// GetUserByID returns the user with the given id, or ErrNotFound.
func (s *UserStore) GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, email, display_name, password_hash, created_at
		 FROM users WHERE id = $1`, id))
}

func (s *UserStore) scanUser(row *sql.Row) (*model.User, error) {
	var user model.User
	err := row.Scan(&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &user, nil
}

// CreateResetToken persists a reset token for the user.
func (s *UserStore) CreateResetToken(ctx context.Context, userID uuid.UUID, token string, expiresAt time.Time) (*model.ResetToken, error) {
	rt := &model.ResetToken{
		ID:        uuid.New(),
		UserID:    userID,
		Token:     token,
		ExpiresAt: expiresAt,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reset_tokens (id, user_id, token, expires_at)
		 VALUES ($1, $2, $3, $4)`,
		rt.ID, rt.UserID, rt.Token, rt.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create reset token: %w", err)
	}

	return rt, nil
}

// ConsumeResetToken looks up the token and, when valid and unexpired,
// atomically updates the owner's password digest and deletes the token.
// A token therefore succeeds at most once.
func (s *UserStore) ConsumeResetToken(ctx context.Context, token, newPasswordHash string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var rt model.ResetToken
	err = tx.QueryRowContext(ctx,
		`SELECT id, user_id, token, expires_at
		 FROM reset_tokens WHERE token = $1 FOR UPDATE`, token,
	).Scan(&rt.ID, &rt.UserID, &rt.Token, &rt.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrInvalidToken
	}
	if err != nil {
		return fmt.Errorf("failed to load reset token: %w", err)
	}

	if rt.Expired(time.Now()) {
		return model.ErrExpiredToken
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET password_hash = $1 WHERE id = $2`,
		newPasswordHash, rt.UserID); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM reset_tokens WHERE id = $1`, rt.ID); err != nil {
		return fmt.Errorf("failed to consume reset token: %w", err)
	}

	return tx.Commit()
}

// DeleteExpiredResetTokens removes tokens past their expiry. Called
// opportunistically; expired tokens are also rejected at consumption.
func (s *UserStore) DeleteExpiredResetTokens(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM reset_tokens WHERE expires_at < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tokens: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
