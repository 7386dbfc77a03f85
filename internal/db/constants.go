package db

// tableSecrets holds one opaque value per key.
const tableSecrets = "secrets"

// SQL statements used by the secret store.
const (
	sqlSelectSecret = `SELECT value FROM ` + tableSecrets + ` WHERE key = ?`
	sqlUpsertSecret = `INSERT INTO ` + tableSecrets + ` (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	sqlDeleteSecret = `DELETE FROM ` + tableSecrets + ` WHERE key = ?`
	sqlListSecrets  = `SELECT key FROM ` + tableSecrets + ` ORDER BY key`
)
