package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidAPIKey is returned for tokens with no stored key.
var ErrInvalidAPIKey = errors.New("invalid api key")

// APIKeyStore keeps hashed bearer tokens for the HTTP transport.
type APIKeyStore struct {
	db  *DB
	now func() time.Time
}

// NewAPIKeyStore creates a new APIKeyStore
func NewAPIKeyStore(db *DB) *APIKeyStore {
	return &APIKeyStore{db: db, now: time.Now}
}

// Put stores token for caller, replacing an existing entry for the same token.
func (s *APIKeyStore) Put(ctx context.Context, caller, token, description string) error {
	if caller == "" || token == "" {
		return fmt.Errorf("caller and token are required")
	}
	query := `
		INSERT INTO api_keys (key_hash, caller, created_at, description)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key_hash) DO UPDATE SET caller = excluded.caller, description = excluded.description
	`
	_, err := s.db.ExecContext(ctx, query, hashToken(token), caller, s.now().UTC().Format(time.RFC3339Nano), description)
	if err != nil {
		return fmt.Errorf("failed to store api key: %w", err)
	}
	return nil
}

// VerifyToken returns the caller token belongs to and records its use.
func (s *APIKeyStore) VerifyToken(ctx context.Context, token string) (string, error) {
	hash := hashToken(token)
	var caller string
	err := s.db.QueryRowContext(ctx, `SELECT caller FROM api_keys WHERE key_hash = ?`, hash).Scan(&caller)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && caller == "") {
		return "", ErrInvalidAPIKey
	}
	if err != nil {
		return "", fmt.Errorf("failed to verify api key: %w", mapError(err))
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE api_keys SET last_used = ? WHERE key_hash = ?`,
		s.now().UTC().Format(time.RFC3339Nano), hash); err != nil {
		return "", fmt.Errorf("failed to record api key use: %w", mapError(err))
	}
	return caller, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
