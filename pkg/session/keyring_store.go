package session

import (
	"encoding/json"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "pixmirror"
	keyringPrefix  = "pixiv_"
)

// KeyringStore keeps tokens in the system keychain.
type KeyringStore struct{}

// NewKeyringStore probes keychain availability before returning a store.
func NewKeyringStore() (*KeyringStore, error) {
	probe := "availability_probe"
	if err := keyring.Set(keyringService, probe, "ok"); err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(keyringService, probe)
	return &KeyringStore{}, nil
}

// Store saves the token to the system keychain.
func (k *KeyringStore) Store(token *Token) error {
	if token == nil || token.Account == "" {
		return ErrInvalidToken
	}
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := keyring.Set(keyringService, keyringPrefix+token.Account, string(data)); err != nil {
		return fmt.Errorf("failed to store in keyring: %w", err)
	}
	return nil
}

// Retrieve loads a token from the system keychain.
func (k *KeyringStore) Retrieve(account string) (*Token, error) {
	if account == "" {
		return nil, ErrInvalidToken
	}
	data, err := keyring.Get(keyringService, keyringPrefix+account)
	if err != nil {
		if err == keyring.ErrNotFound {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to read keyring: %w", err)
	}

	var token Token
	if err := json.Unmarshal([]byte(data), &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}
	return &token, nil
}

// Delete removes a token from the system keychain.
func (k *KeyringStore) Delete(account string) error {
	if account == "" {
		return ErrInvalidToken
	}
	if err := keyring.Delete(keyringService, keyringPrefix+account); err != nil {
		if err == keyring.ErrNotFound {
			return ErrTokenNotFound
		}
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}
	return nil
}
