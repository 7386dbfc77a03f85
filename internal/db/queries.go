package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNoSecret is returned by GetSecret when the key is absent.
var ErrNoSecret = errors.New("secret not found")

// GetSecret returns the value stored under key.
func (db *DB) GetSecret(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := db.QueryRowContext(ctx, sqlSelectSecret, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSecret
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read secret %q: %w", key, err)
	}
	return value, nil
}

// PutSecret stores value under key, replacing any previous value.
func (db *DB) PutSecret(ctx context.Context, key string, value []byte) error {
	if _, err := db.ExecContext(ctx, sqlUpsertSecret, key, value); err != nil {
		return fmt.Errorf("failed to write secret %q: %w", key, err)
	}
	return nil
}

// DeleteSecrets removes every key in a single transaction. Missing keys are
// not an error.
func (db *DB) DeleteSecrets(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete: %w", err)
	}

	for _, key := range keys {
		if _, err := tx.ExecContext(ctx, sqlDeleteSecret, key); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to delete secret %q: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

// ListSecretKeys returns the stored keys in ascending order.
func (db *DB) ListSecretKeys(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx, sqlListSecrets)
	if err != nil {
		return nil, fmt.Errorf("failed to list secrets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan secret key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
