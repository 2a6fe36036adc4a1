package session

import (
	"os"
	"strconv"
)

// EnvStore reads tokens from the environment. It is read-only and ignores
// the account name, serving whatever the environment provides.
type EnvStore struct{}

// NewEnvStore creates the environment-backed store.
func NewEnvStore() *EnvStore {
	return &EnvStore{}
}

// Store is unsupported; the environment is not writable.
func (e *EnvStore) Store(token *Token) error {
	return ErrInvalidToken
}

// Retrieve builds a token from PIXMIRROR_* environment variables.
func (e *EnvStore) Retrieve(account string) (*Token, error) {
	access := os.Getenv("PIXMIRROR_ACCESS_TOKEN")
	refresh := os.Getenv("PIXMIRROR_REFRESH_TOKEN")
	if access == "" && refresh == "" {
		return nil, ErrTokenNotFound
	}

	token := &Token{
		Account:      account,
		AccessToken:  access,
		RefreshToken: refresh,
	}
	if v := os.Getenv("PIXMIRROR_ACCOUNT_ID"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 64); err == nil {
			token.AccountID = id
		}
	}
	return token, nil
}

// Delete is unsupported; the environment is not writable.
func (e *EnvStore) Delete(account string) error {
	return ErrTokenNotFound
}
