package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/palcid/livepal/crypto"
)

// SaveSessionToken stores a relay session credential, encrypted at rest when
// ENCRYPTION_KEY is configured. encryption_version 1 means AES-256-GCM,
// 0 means plaintext.
func SaveSessionToken(ctx context.Context, db *sql.DB, provider, token string) error {
	enc, err := getEncryptor()
	if err != nil {
		return err
	}
	version := 0
	stored := token
	if enc != nil && token != "" {
		if stored, err = crypto.EncryptString(enc, token); err != nil {
			return fmt.Errorf("encrypt session token: %w", err)
		}
		version = 1
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO session_tokens (provider, token, encryption_version, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (provider) DO UPDATE SET
			token = EXCLUDED.token,
			encryption_version = EXCLUDED.encryption_version,
			updated_at = NOW()
	`, provider, stored, version)
	if err != nil {
		return fmt.Errorf("save session token: %w", err)
	}
	return nil
}

// GetSessionToken loads and, if needed, decrypts a relay session credential.
// Returns ("", nil) when none is stored.
func GetSessionToken(ctx context.Context, db *sql.DB, provider string) (string, error) {
	var (
		stored  string
		version int
	)
	err := db.QueryRowContext(ctx,
		`SELECT token, encryption_version FROM session_tokens WHERE provider = $1`,
		provider).Scan(&stored, &version)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get session token: %w", err)
	}
	if version == 0 || stored == "" {
		return stored, nil
	}
	enc, err := getEncryptor()
	if err != nil {
		return "", err
	}
	if enc == nil {
		return "", fmt.Errorf("session token for %s is encrypted but ENCRYPTION_KEY is not set", provider)
	}
	plain, err := crypto.DecryptString(enc, stored)
	if err != nil {
		return "", fmt.Errorf("decrypt session token: %w", err)
	}
	return plain, nil
}
