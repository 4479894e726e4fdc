package database

import (
	"database/sql"
	"fmt"
	"io/fs"
	"sync"

	"github.com/pressly/goose/v3"
)

// goose keeps its base filesystem and dialect in package state
var gooseMu sync.Mutex

// Migrate applies every pending goose migration found under dir in fsys.
// A nil fsys reads dir from the OS filesystem.
func Migrate(db *sql.DB, dialect Dialect, fsys fs.FS, dir string) error {
	if db == nil {
		return fmt.Errorf("%w: database not opened", ErrConnection)
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(fsys)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect(gooseDialect(dialect)); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}

	if err := goose.Up(db, dir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// MigrationVersion returns the current goose schema version.
func MigrationVersion(db *sql.DB, dialect Dialect) (int64, error) {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	if err := goose.SetDialect(gooseDialect(dialect)); err != nil {
		return 0, fmt.Errorf("failed to set dialect: %w", err)
	}
	return goose.GetDBVersion(db)
}

func gooseDialect(d Dialect) string {
	if d.Name == DriverSQLite {
		return "sqlite3"
	}
	return d.Name
}
