// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/codechat-ai/codechat/internal/model"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	// UserKey is the context key for the authenticated user.
	UserKey ContextKey = "user"
)

// IdentityCookie is the cookie carrying the persisted identity
// reference across reloads.
const IdentityCookie = "codechat_uid"

// Identity encodes and decodes the persisted identity reference. With
// an empty secret the reference is the raw user id, matching the
// observed behavior of the original system: anyone holding the value
// can impersonate the user. A non-empty secret switches to signed,
// expiring HS256 tokens.
type Identity struct {
	Secret string
	TTL    time.Duration
}

// Encode turns a user id into a cookie value.
func (i *Identity) Encode(userID uuid.UUID) (string, error) {
	if i.Secret == "" {
		return userID.String(), nil
	}

	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(i.TTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(i.Secret))
}

// Decode extracts the user id from a cookie or query value.
func (i *Identity) Decode(value string) (uuid.UUID, error) {
	if i.Secret == "" {
		return uuid.Parse(value)
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(value, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return uuid.Nil, jwt.ErrSignatureInvalid
		}
		return []byte(i.Secret), nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, model.ErrInvalidCredentials
	}
	return uuid.Parse(claims.Subject)
}

// UserLookup resolves a persisted identity reference to a user.
type UserLookup interface {
	LookupByID(ctx context.Context, id uuid.UUID) (*model.User, error)
}

// Auth restores the session identity from the cookie or the user_id
// query parameter and rejects requests without a valid one.
func Auth(identity *Identity, lookup UserLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			value := ""
			if cookie, err := r.Cookie(IdentityCookie); err == nil {
				value = cookie.Value
			}
			if value == "" {
				value = r.URL.Query().Get("user_id")
			}
			if value == "" {
				http.Error(w, `{"error":"not signed in"}`, http.StatusUnauthorized)
				return
			}

			userID, err := identity.Decode(value)
			if err != nil {
				http.Error(w, `{"error":"invalid session"}`, http.StatusUnauthorized)
				return
			}

			user, err := lookup.LookupByID(r.Context(), userID)
			if err != nil {
				http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
				return
			}
			if user == nil {
				http.Error(w, `{"error":"invalid session"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), UserKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUser gets the authenticated user from context.
func GetUser(ctx context.Context) *model.User {
	if v := ctx.Value(UserKey); v != nil {
		return v.(*model.User)
	}
	return nil
}
