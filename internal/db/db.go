// Package db persists projects and their segments in SQLite. The schema is
// managed by embedded migrations; segments cascade away with their project.
package db

import (
	"database/sql"

	_ "modernc.org/sqlite"

	"github.com/ridgeline-data/segment.report/internal/fault"
)

type DB struct {
	*sql.DB
}

// Open connects to the database file and enables the pragmas the store
// relies on. It does not touch the schema; call MigrateUp for that.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fault.New(fault.Resource, "open database %s: %v", path, err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fault.New(fault.Resource, "%s: %v", pragma, err)
		}
	}

	return &DB{db}, nil
}
