// Package auth resolves GitHub credentials for indexing runs.
package auth

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/braind/internal/config"
)

// ErrNotConnected indicates no GitHub credential is available for the caller.
var ErrNotConnected = errors.New("github account not connected")

// CredentialStore resolves the GitHub token to use for API calls.
type CredentialStore interface {
	// TokenFor returns the token for the given principal. It returns
	// ErrNotConnected when no credential exists.
	TokenFor(ctx context.Context, principal string) (config.Secret, error)
}

// StaticStore serves a single configured token to every principal.
type StaticStore struct {
	token config.Secret
}

// NewStaticStore creates a store backed by one configured token.
func NewStaticStore(token config.Secret) *StaticStore {
	return &StaticStore{token: token}
}

// TokenFor implements CredentialStore.
func (s *StaticStore) TokenFor(_ context.Context, _ string) (config.Secret, error) {
	if !s.token.IsSet() {
		return "", ErrNotConnected
	}
	return s.token, nil
}
