// Package db provides the database driver dispatch for the store.
package db

import (
	"github.com/pkg/errors"

	"github.com/marku123123/petpals-new/internal/profile"
	"github.com/marku123123/petpals-new/store"
	"github.com/marku123123/petpals-new/store/db/postgres"
	"github.com/marku123123/petpals-new/store/db/sqlite"
)

// NewDBDriver creates a new database driver based on the profile.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	switch profile.Driver {
	case "postgres":
		return postgres.NewDB(profile)
	case "sqlite":
		return sqlite.NewDB(profile)
	default:
		return nil, errors.Errorf("unsupported database driver: %s", profile.Driver)
	}
}
