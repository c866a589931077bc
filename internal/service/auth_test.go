package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/codechat-ai/codechat/internal/model"
	"github.com/codechat-ai/codechat/pkg/logger"
)

// fakeUserStore is an in-memory UserStore mirroring the Postgres
// store's contract, including delete-on-consume reset tokens.
type fakeUserStore struct {
	users  map[uuid.UUID]*model.User
	tokens map[string]*model.ResetToken
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		users:  make(map[uuid.UUID]*model.User),
		tokens: make(map[string]*model.ResetToken),
	}
}

func (f *fakeUserStore) CreateUser(_ context.Context, email, displayName, passwordHash string) (*model.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return nil, model.ErrDuplicateEmail
		}
	}
	user := &model.User{
		ID:           uuid.New(),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeUserStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, model.ErrNotFound
}

func (f *fakeUserStore) GetUserByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserStore) CreateResetToken(_ context.Context, userID uuid.UUID, token string, expiresAt time.Time) (*model.ResetToken, error) {
	rt := &model.ResetToken{
		ID:        uuid.New(),
		UserID:    userID,
		Token:     token,
		ExpiresAt: expiresAt,
	}
	f.tokens[token] = rt
	return rt, nil
}

func (f *fakeUserStore) ConsumeResetToken(_ context.Context, token, newPasswordHash string) error {
	rt, ok := f.tokens[token]
	if !ok {
		return model.ErrInvalidToken
	}
	if rt.Expired(time.Now()) {
		return model.ErrExpiredToken
	}
	f.users[rt.UserID].PasswordHash = newPasswordHash
	delete(f.tokens, token)
	return nil
}

func newTestAuthService(store UserStore) *AuthService {
	log, _ := logger.New("error")
	return NewAuthService(store, 2*time.Hour, log)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	store := newFakeUserStore()
	svc := newTestAuthService(store)
	ctx := context.Background()

	first, err := svc.Register(ctx, "a@example.com", "password1", "Alice")
	if err != nil {
		t.Fatalf("first registration failed: %v", err)
	}

	_, err = svc.Register(ctx, "a@example.com", "password2", "Alice Again")
	if !errors.Is(err, model.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}

	// First registration is unaffected.
	kept, err := store.GetUserByID(ctx, first.ID)
	if err != nil {
		t.Fatalf("first user disappeared: %v", err)
	}
	if kept.DisplayName != "Alice" {
		t.Errorf("first user mutated: %q", kept.DisplayName)
	}
}

func TestLogin(t *testing.T) {
	store := newFakeUserStore()
	svc := newTestAuthService(store)
	ctx := context.Background()

	registered, err := svc.Register(ctx, "a@example.com", "correct-horse", "Alice")
	if err != nil {
		t.Fatalf("registration failed: %v", err)
	}

	user, err := svc.Login(ctx, "a@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if user.ID != registered.ID {
		t.Errorf("login returned wrong user")
	}

	if _, err := svc.Login(ctx, "a@example.com", "wrong"); !errors.Is(err, model.ErrInvalidCredentials) {
		t.Errorf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(ctx, "nobody@example.com", "whatever"); !errors.Is(err, model.ErrInvalidCredentials) {
		t.Errorf("unknown email: expected ErrInvalidCredentials, got %v", err)
	}
}

func TestDigestNeverSerialized(t *testing.T) {
	store := newFakeUserStore()
	svc := newTestAuthService(store)
	ctx := context.Background()

	user, err := svc.Register(ctx, "a@example.com", "correct-horse", "Alice")
	if err != nil {
		t.Fatalf("registration failed: %v", err)
	}
	if user.PasswordHash == "correct-horse" {
		t.Fatal("password stored in the clear")
	}

	data, err := json.Marshal(user)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if strings.Contains(string(data), user.PasswordHash) || strings.Contains(string(data), "password_hash") {
		t.Errorf("digest leaked into JSON: %s", data)
	}
}

func TestResetTokenSingleUse(t *testing.T) {
	store := newFakeUserStore()
	svc := newTestAuthService(store)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "a@example.com", "oldpassword", "Alice"); err != nil {
		t.Fatalf("registration failed: %v", err)
	}

	token, err := svc.RequestPasswordReset(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("reset request failed: %v", err)
	}
	if token == nil {
		t.Fatal("expected a token for a known email")
	}

	ok, err := svc.ResetPassword(ctx, token.Token, "newpassword1")
	if err != nil || !ok {
		t.Fatalf("first reset: ok=%v err=%v", ok, err)
	}

	// The new password works.
	if _, err := svc.Login(ctx, "a@example.com", "newpassword1"); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}

	// Consumed token never succeeds again.
	ok, err = svc.ResetPassword(ctx, token.Token, "anotherpassword")
	if err != nil {
		t.Fatalf("second reset errored: %v", err)
	}
	if ok {
		t.Error("consumed token was accepted a second time")
	}
}

func TestResetTokenExpired(t *testing.T) {
	store := newFakeUserStore()
	svc := newTestAuthService(store)
	ctx := context.Background()

	user, err := svc.Register(ctx, "a@example.com", "oldpassword", "Alice")
	if err != nil {
		t.Fatalf("registration failed: %v", err)
	}

	if _, err := store.CreateResetToken(ctx, user.ID, "stale-token", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("token setup failed: %v", err)
	}

	ok, err := svc.ResetPassword(ctx, "stale-token", "newpassword1")
	if err != nil {
		t.Fatalf("reset errored: %v", err)
	}
	if ok {
		t.Error("expired token was accepted")
	}
}

func TestRequestResetUnknownEmail(t *testing.T) {
	svc := newTestAuthService(newFakeUserStore())

	token, err := svc.RequestPasswordReset(context.Background(), "nobody@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != nil {
		t.Error("expected no token for an unknown email")
	}
}
