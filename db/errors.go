package db

import (
	"database/sql"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/teranos/pulsebatch/errors"
)

var (
	// ErrDatabaseClosed marks writes that reached the history or target
	// database after it was closed, e.g. a run saved during shutdown.
	ErrDatabaseClosed = errors.New("database is closed")

	// ErrDatabaseBusy marks writes that gave up waiting for another
	// connection's lock, usually a second run sharing the same file.
	ErrDatabaseBusy = errors.New("database is busy")
)

// IsDatabaseClosed reports whether err came from a closed connection pool.
// database/sql does not export its closed error, so its message is matched.
func IsDatabaseClosed(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrDatabaseClosed), errors.Is(err, sql.ErrConnDone):
		return true
	}
	return strings.Contains(err.Error(), "database is closed")
}

// IsBusy reports whether err is SQLite's SQLITE_BUSY or SQLITE_LOCKED after
// the busy timeout ran out.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDatabaseBusy) {
		return true
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// Classify marks driver errors with this package's sentinels so callers can
// test them with errors.Is. Other errors are returned unchanged.
func Classify(err error) error {
	switch {
	case IsDatabaseClosed(err):
		return errors.Mark(err, ErrDatabaseClosed)
	case IsBusy(err):
		return errors.WithHint(errors.Mark(err, ErrDatabaseBusy),
			"another pulsebatch process may be writing to the same database")
	}
	return err
}
