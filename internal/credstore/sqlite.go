package credstore

import (
	"context"
	"errors"

	"github.com/j-veylop/codequota/internal/db"
)

// SQLiteStore keeps records in the application database.
type SQLiteStore struct {
	database *db.DB
}

// NewSQLite opens (or creates) the database at path.
func NewSQLite(path string) (*SQLiteStore, error) {
	database, err := db.New(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{database: database}, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.database.GetSecret(ctx, key)
	if errors.Is(err, db.ErrNoSecret) {
		return nil, ErrNotFound
	}
	return value, err
}

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, key string, value []byte) error {
	return s.database.PutSecret(ctx, key, value)
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, keys ...string) error {
	return s.database.DeleteSecrets(ctx, keys...)
}

// Keys returns the stored keys in ascending order.
func (s *SQLiteStore) Keys(ctx context.Context) ([]string, error) {
	return s.database.ListSecretKeys(ctx)
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.database.Close()
}
