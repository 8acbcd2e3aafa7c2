// Package apikey guards feature writes and cache administration with API
// keys. Raw keys are generated with crypto/rand and only their SHA-256 hash
// is stored; a presented key is valid when its hash names an active,
// unexpired row carrying the required scope.
package apikey

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/postgres"
)

var (
	ErrInvalidKey = errors.New("invalid api key")
	ErrExpiredKey = errors.New("api key expired")
	ErrForbidden  = errors.New("api key lacks scope")
)

// Scopes a key may carry.
const (
	ScopeIngest = "ingest"
	ScopeAdmin  = "admin"
)

const schema = `
CREATE TABLE IF NOT EXISTS api_keys (
    id         BIGSERIAL PRIMARY KEY,
    key_hash   TEXT NOT NULL UNIQUE,
    name       TEXT NOT NULL,
    scopes     TEXT[] NOT NULL DEFAULT '{}',
    is_active  BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    expires_at TIMESTAMPTZ
);`

type KeyInfo struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Scopes    []string   `json:"scopes"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Allows reports whether the key carries scope. Admin keys carry every
// scope.
func (k *KeyInfo) Allows(scope string) bool {
	return slices.Contains(k.Scopes, ScopeAdmin) || slices.Contains(k.Scopes, scope)
}

// ValidScope reports whether s names a known scope.
func ValidScope(s string) bool {
	return s == ScopeIngest || s == ScopeAdmin
}

// Validator keeps keys in the api_keys table.
type Validator struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewValidator(db *postgres.Client) *Validator {
	return &Validator{
		db:     db,
		logger: slog.Default().With("component", "apikey-validator"),
	}
}

// Migrate creates the api_keys table.
func (v *Validator) Migrate(ctx context.Context) error {
	if _, err := v.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrating api keys: %w", err)
	}
	return nil
}

// Validate returns the active key whose hash matches rawKey, ErrInvalidKey
// when there is none and ErrExpiredKey when it has expired.
func (v *Validator) Validate(ctx context.Context, rawKey string) (*KeyInfo, error) {
	var (
		info      KeyInfo
		expiresAt sql.NullTime
	)
	err := v.db.DB.QueryRowContext(ctx,
		`SELECT id, name, scopes, is_active, created_at, expires_at
		 FROM api_keys
		 WHERE key_hash = $1 AND is_active = true`,
		HashKey(rawKey),
	).Scan(&info.ID, &info.Name, pq.Array(&info.Scopes), &info.IsActive, &info.CreatedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidKey
	}
	if err != nil {
		return nil, fmt.Errorf("querying api key: %w", err)
	}
	if expiresAt.Valid {
		if expiresAt.Time.Before(time.Now()) {
			return nil, ErrExpiredKey
		}
		info.ExpiresAt = &expiresAt.Time
	}
	return &info, nil
}

// CreateKey stores a new key and returns it raw. The raw key cannot be
// recovered afterwards.
func (v *Validator) CreateKey(ctx context.Context, name string, scopes []string, expiresAt *time.Time) (string, error) {
	for _, s := range scopes {
		if !ValidScope(s) {
			return "", fmt.Errorf("unknown scope %q", s)
		}
	}
	rawKey, err := generateRawKey()
	if err != nil {
		return "", err
	}

	var expiry sql.NullTime
	if expiresAt != nil {
		expiry = sql.NullTime{Time: *expiresAt, Valid: true}
	}
	_, err = v.db.DB.ExecContext(ctx,
		`INSERT INTO api_keys (key_hash, name, scopes, expires_at) VALUES ($1, $2, $3, $4)`,
		HashKey(rawKey), name, pq.Array(scopes), expiry,
	)
	if err != nil {
		return "", fmt.Errorf("creating api key: %w", err)
	}
	v.logger.Info("api key created", "name", name, "scopes", strings.Join(scopes, ","))
	return rawKey, nil
}

// RevokeKey deactivates rawKey.
func (v *Validator) RevokeKey(ctx context.Context, rawKey string) error {
	result, err := v.db.DB.ExecContext(ctx,
		`UPDATE api_keys SET is_active = false WHERE key_hash = $1 AND is_active = true`,
		HashKey(rawKey),
	)
	if err != nil {
		return fmt.Errorf("revoking api key: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrInvalidKey
	}
	v.logger.Info("api key revoked")
	return nil
}

// ListKeys returns the active keys, newest first.
func (v *Validator) ListKeys(ctx context.Context) ([]KeyInfo, error) {
	rows, err := v.db.DB.QueryContext(ctx,
		`SELECT id, name, scopes, is_active, created_at, expires_at FROM api_keys WHERE is_active = true ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	defer rows.Close()

	var keys []KeyInfo
	for rows.Next() {
		var (
			k         KeyInfo
			expiresAt sql.NullTime
		)
		if err := rows.Scan(&k.ID, &k.Name, pq.Array(&k.Scopes), &k.IsActive, &k.CreatedAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("scanning api key row: %w", err)
		}
		if expiresAt.Valid {
			k.ExpiresAt = &expiresAt.Time
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// HashKey returns the SHA-256 hex digest of raw.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func generateRawKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating api key: %w", err)
	}
	return "geo_" + hex.EncodeToString(b), nil
}
