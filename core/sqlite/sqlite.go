// Package sqlite opens databases for the manuscript store with whichever
// driver the build selected: modernc.org/sqlite by default, or
// mattn/go-sqlite3 through contrib/sqlite-external with -tags cgo_sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Driver describes the compiled-in driver.
type Driver struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"` // "purego" or "cgo"
	Package string `json:"package"`
}

// Compiled returns the driver chosen at build time.
func Compiled() Driver {
	return Driver{Name: driverName, Kind: driverType, Package: driverPackage}
}

// Open opens dsn with the compiled-in driver.
func Open(dsn string) (*sql.DB, error) {
	return sql.Open(driverName, dsn)
}

func inMemory(path string) bool {
	return path == ":memory:" || strings.HasPrefix(path, "file::memory:")
}

// OpenStore opens a database for read-write use by a single process: one
// connection, foreign keys on, a busy timeout, and WAL for file databases.
func OpenStore(ctx context.Context, path string) (*sql.DB, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"}
	if !inMemory(path) {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite %s: %w", p, err)
		}
	}
	return db, nil
}
