package driver

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv_entries (
	k TEXT PRIMARY KEY,
	v TEXT NOT NULL
)`

// SqliteClient file-backed KeyValueDB for hosts without a redis instance,
// eg. the embedded/mobile tier
type SqliteClient struct {
	db *sqlx.DB
}

var _ KeyValueDB = &SqliteClient{}

// NewSqliteClient open (and create if needed) the cache database at path
func NewSqliteClient(path string) (*SqliteClient, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, err
	}
	return &SqliteClient{db: db}, nil
}

// Set implement KeyValueDB
func (s *SqliteClient) Set(ctx context.Context, key string, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv_entries (k, v) VALUES ($1, $2) ON CONFLICT(k) DO UPDATE SET v = excluded.v`,
		key, value)
	return err
}

// Get implement KeyValueDB
func (s *SqliteClient) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.GetContext(ctx, &value, `SELECT v FROM kv_entries WHERE k = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrKeyNotFound
	}
	return value, err
}

// Delete implement KeyValueDB
func (s *SqliteClient) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE k = $1`, key)
	return err
}

// Keys implement KeyValueDB
func (s *SqliteClient) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.db.SelectContext(ctx, &keys, `SELECT k FROM kv_entries WHERE k LIKE $1 || '%'`, prefix)
	return keys, err
}

// Ping implement KeyValueDB
func (s *SqliteClient) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implement KeyValueDB
func (s *SqliteClient) Close() error {
	return s.db.Close()
}
