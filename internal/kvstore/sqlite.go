/*
Copyright 2024 Docsync Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package kvstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const sqliteDialect = "sqlite3"

// Migrations is the schema the SQLite store runs on.
func Migrations() migrate.MigrationSource {
	return migrate.EmbedFileSystemMigrationSource{
		FileSystem: migrationFiles,
		Root:       "migrations",
	}
}

// Migrate applies or rolls back the store schema and returns the number of
// migrations run.
func Migrate(db *sql.DB, dir migrate.MigrationDirection) (int, error) {
	n, err := migrate.Exec(db, sqliteDialect, Migrations(), dir)
	if err != nil {
		return n, fmt.Errorf("migrate kv store: %w", err)
	}
	return n, nil
}

// SQLiteStore keeps blobs in the kv_store table.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// ConnectSQLite opens the database file at path without touching its schema.
func ConnectSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open(sqliteDialect, fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	return db, nil
}

// OpenSQLite opens the database file at path and brings its schema up to date.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := ConnectSQLite(path)
	if err != nil {
		return nil, err
	}
	n, err := Migrate(db, migrate.Up)
	if err != nil {
		db.Close()
		return nil, err
	}
	if n > 0 {
		logrus.WithFields(logrus.Fields{"path": path, "applied": n}).Info("kv store migrations applied")
	}
	return NewSQLiteStore(db), nil
}

// NewSQLiteStore wraps an open database whose schema is already migrated.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

func (s *SQLiteStore) Load(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv_store WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLiteStore) Save(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// DB exposes the underlying handle for migrations.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
