package commands

import (
	"database/sql"

	"github.com/teranos/pulsebatch/am"
	"github.com/teranos/pulsebatch/db"
	"github.com/teranos/pulsebatch/errors"
	"github.com/teranos/pulsebatch/logger"
)

// openHistory opens and migrates the history database named by the configuration
func openHistory(cfg *am.Config) (*sql.DB, error) {
	path := cfg.GetDatabasePath()
	database, err := db.OpenWithMigrations(path, logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open history database at %s", path)
	}
	return database, nil
}

// openTarget opens the database the statement runs against. It is not migrated.
func openTarget(path string) (*sql.DB, error) {
	database, err := db.Open(path, logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open target database at %s", path)
	}
	return database, nil
}
