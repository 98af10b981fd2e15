// Package storage persists the small set of long-lived secrets hubspaced
// needs between runs: the OAuth refresh token and the resolved account id.
package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// Credential keys.
const (
	keyRefreshToken = "refresh_token"
	keyAccountID    = "account_id"
)

// CredentialStore is a SQLite-backed store for vendor credentials.
type CredentialStore struct {
	db *sql.DB
}

// NewCredentialStore creates a store on top of an opened database.
func NewCredentialStore(db *sql.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

// RefreshToken returns the stored refresh token, or "" when none is stored.
func (s *CredentialStore) RefreshToken() (string, error) {
	return s.get(keyRefreshToken)
}

// SetRefreshToken stores the refresh token obtained from the login flow.
func (s *CredentialStore) SetRefreshToken(token string) error {
	return s.set(keyRefreshToken, token)
}

// AccountID returns the cached account id, or "" when it was never resolved.
func (s *CredentialStore) AccountID() (string, error) {
	return s.get(keyAccountID)
}

// SetAccountID caches the account id resolved via /users/me.
func (s *CredentialStore) SetAccountID(id string) error {
	return s.set(keyAccountID, id)
}

func (s *CredentialStore) get(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM credentials WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read credential %s: %w", key, err)
	}
	return value, nil
}

func (s *CredentialStore) set(key, value string) error {
	now := time.Now().UTC().Unix()
	_, err := s.db.Exec(`
		INSERT INTO credentials (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, key, value, now)
	if err != nil {
		return fmt.Errorf("failed to store credential %s: %w", key, err)
	}
	return nil
}
