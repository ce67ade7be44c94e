package auth

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"strings"
)

type contextKey string

const (
	UserIDKey   contextKey = "user_id"
	UsernameKey contextKey = "username"
)

func WithClaims(ctx context.Context, claims *CustomClaims) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, domain.UserID(claims.UserID))
	return context.WithValue(ctx, UsernameKey, claims.Username)
}

// UserFromContext returns the authenticated requester or ErrUnauthorized.
func UserFromContext(ctx context.Context) (domain.UserID, error) {
	userID, ok := ctx.Value(UserIDKey).(domain.UserID)
	if !ok || userID == "" {
		return "", errors.ErrUnauthorized
	}
	return userID, nil
}

// BearerToken extracts the token of an "Authorization: Bearer <token>" value.
func BearerToken(header string) (string, error) {
	token, ok := strings.CutPrefix(strings.TrimSpace(header), "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", errors.ErrMissingToken
	}
	return strings.TrimSpace(token), nil
}
