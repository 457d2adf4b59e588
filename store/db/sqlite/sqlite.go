package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/marku123123/petpals-new/internal/profile"
	"github.com/marku123123/petpals-new/store"
)

// SQLite is supported on a best-effort basis for development and single-user
// instances. Concurrent writes and vector indexing are not supported;
// fingerprint embeddings are stored as BLOBs and compared in the application
// layer.

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

	// WAL journal mode prevents locking issues; with the modernc.org/sqlite
	// driver each pragma must be prefixed with `_pragma=`.
	sqliteDB, err := sql.Open("sqlite", profile.DSN+"?_pragma=foreign_keys(0)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	// SQLite: a single connection is optimal with WAL.
	sqliteDB.SetMaxOpenConns(1)
	sqliteDB.SetMaxIdleConns(1)
	sqliteDB.SetConnMaxLifetime(0)
	sqliteDB.SetConnMaxIdleTime(0)

	driver := DB{db: sqliteDB, profile: profile}

	return &driver, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS report (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
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
			reunited INTEGER NOT NULL DEFAULT 0,
			archived INTEGER NOT NULL DEFAULT 0,
			created_ts BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS pet_id_counter (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			next_pet_id INTEGER NOT NULL DEFAULT 1
		)`,
		`INSERT OR IGNORE INTO pet_id_counter (id, next_pet_id) VALUES (1, 1)`,
		`CREATE TABLE IF NOT EXISTS stats (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			reunited_count INTEGER NOT NULL DEFAULT 0
		)`,
		`INSERT OR IGNORE INTO stats (id, reunited_count) VALUES (1, 0)`,
		`CREATE TABLE IF NOT EXISTS report_fingerprint (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			pet_id INTEGER NOT NULL,
			content_hash TEXT NOT NULL,
			embedding BLOB,
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
