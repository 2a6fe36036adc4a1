// Package session stores the platform tokens the remote client needs. The
// interactive login flow that produces them lives outside this program; this
// package only keeps them between runs.
package session

import (
	"errors"
	"fmt"
	"time"
)

// ErrTokenNotFound is returned when no token is stored for an account.
var ErrTokenNotFound = errors.New("session: token not found")

// ErrInvalidToken is returned for tokens missing required fields.
var ErrInvalidToken = errors.New("session: invalid token")

// Token holds one account's platform credentials.
type Token struct {
	// Account is the local name the token is stored under
	Account string `json:"account"`
	// AccountID is the platform account id, the default traversal target
	AccountID uint64 `json:"account_id"`
	// AccessToken is the bearer token presented on API calls
	AccessToken string `json:"access_token"`
	// RefreshToken lets an external login flow mint new access tokens
	RefreshToken string    `json:"refresh_token,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// TokenStore is the interface for persisting tokens.
type TokenStore interface {
	Store(token *Token) error
	Retrieve(account string) (*Token, error)
	Delete(account string) error
}

// Manager tries a chain of stores: system keychain first, environment as
// the read-only fallback.
type Manager struct {
	stores []TokenStore
}

// NewManager builds the default store chain.
func NewManager() *Manager {
	var stores []TokenStore
	if ks, err := NewKeyringStore(); err == nil {
		stores = append(stores, ks)
	}
	stores = append(stores, NewEnvStore())
	return &Manager{stores: stores}
}

// Store saves the token in the first store that accepts it.
func (m *Manager) Store(token *Token) error {
	if token == nil || token.Account == "" {
		return ErrInvalidToken
	}
	if token.AccessToken == "" && token.RefreshToken == "" {
		return ErrInvalidToken
	}
	token.LastModified = time.Now()

	var lastErr error
	for _, s := range m.stores {
		if err := s.Store(token); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	if lastErr != nil {
		return fmt.Errorf("failed to store token: %w", lastErr)
	}
	return errors.New("session: no available token stores")
}

// Retrieve returns the token from the first store that has it.
func (m *Manager) Retrieve(account string) (*Token, error) {
	for _, s := range m.stores {
		if t, err := s.Retrieve(account); err == nil && t != nil {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w for account %q", ErrTokenNotFound, account)
}

// Delete removes the token from every store that has it.
func (m *Manager) Delete(account string) error {
	var lastErr error
	deleted := false
	for _, s := range m.stores {
		switch err := s.Delete(account); {
		case err == nil:
			deleted = true
		case !errors.Is(err, ErrTokenNotFound):
			lastErr = err
		}
	}
	if deleted {
		return nil
	}
	if lastErr != nil {
		return lastErr
	}
	return ErrTokenNotFound
}
