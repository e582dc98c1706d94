package services

import (
	"context"
	"strings"

	"github.com/saeid-a/ChatAppBack/pkg/utils"
)

// SessionResolver turns a presented credential into an identity id.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (string, error)
}

type TokenResolver struct {
	secret string
	users  UserDirectory
}

func NewTokenResolver(secret string, users UserDirectory) *TokenResolver {
	return &TokenResolver{secret: secret, users: users}
}

// Resolve accepts only access tokens whose subject still exists.
func (r *TokenResolver) Resolve(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return "", ErrUnauthenticated
	}

	claims, err := utils.ValidateTokenType(token, r.secret, utils.AccessToken)
	if err != nil {
		return "", ErrUnauthenticated
	}

	exists, err := r.users.Exists(ctx, claims.UserID)
	if err != nil {
		return "", storeFailure("resolve session", err)
	}
	if !exists {
		return "", ErrUnauthenticated
	}
	return claims.UserID, nil
}
