//go:build cgo_sqlite

package sqliteexternal

// Registers the "sqlite3" database/sql driver.
import _ "github.com/mattn/go-sqlite3"
