package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"

	"github.com/marku123123/petpals-new/internal/profile"
	"github.com/marku123123/petpals-new/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a database specified by its database driver name and a
// driver-specific data source name, usually consisting of at least a
// database name and connection information.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	postgresDB, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}
	if err := postgresDB.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping db")
	}

	driver := DB{db: postgresDB, profile: profile}

	return &driver, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Migrate creates the schema. The vector extension backs the optional
// fingerprint cache; a missing extension only disables that cache.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return errors.Wrap(err, "failed to create vector extension")
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS report (
			id SERIAL PRIMARY KEY,
			uid TEXT NOT NULL UNIQUE,
			pet_id INTEGER NOT NULL UNIQUE,
			category TEXT NOT NULL CHECK (category IN ('Lost', 'Found')),
			owner_id INTEGER NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			breed TEXT NOT NULL,
			size TEXT NOT NULL,
			gender TEXT NOT NULL,
			location TEXT NOT NULL,
			details TEXT NOT NULL DEFAULT '',
			image_path TEXT,
			reunited BOOLEAN NOT NULL DEFAULT FALSE,
			archived BOOLEAN NOT NULL DEFAULT FALSE,
			created_ts BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS pet_id_counter (
			id INTEGER PRIMARY KEY DEFAULT 1 CHECK (id = 1),
			next_pet_id INTEGER NOT NULL DEFAULT 1
		)`,
		`INSERT INTO pet_id_counter (id, next_pet_id) VALUES (1, 1) ON CONFLICT (id) DO NOTHING`,
		`CREATE TABLE IF NOT EXISTS stats (
			id INTEGER PRIMARY KEY DEFAULT 1 CHECK (id = 1),
			reunited_count INTEGER NOT NULL DEFAULT 0
		)`,
		`INSERT INTO stats (id, reunited_count) VALUES (1, 0) ON CONFLICT (id) DO NOTHING`,
		`CREATE TABLE IF NOT EXISTS report_fingerprint (
			id SERIAL PRIMARY KEY,
			pet_id INTEGER NOT NULL REFERENCES report (pet_id) ON DELETE CASCADE,
			content_hash TEXT NOT NULL,
			embedding vector(1024),
			model TEXT NOT NULL,
			created_ts BIGINT NOT NULL,
			updated_ts BIGINT NOT NULL,
			UNIQUE (pet_id, content_hash)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_report_category ON report (category)`,
		`CREATE INDEX IF NOT EXISTS idx_report_reunited ON report (reunited)`,
	}
	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "failed to execute migration: %s", stmt)
		}
	}
	return nil
}

// placeholder returns the $n placeholder for the given 1-based position.
func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

// placeholders returns "$1, $2, ..., $n".
func placeholders(n int) string {
	list := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		list = append(list, placeholder(i))
	}
	return strings.Join(list, ", ")
}
