//go:build cgo_sqlite

package sqlite

import (
	_ "github.com/FocuswithJustin/JuniperStemma/contrib/sqlite-external"
)

const (
	driverName    = "sqlite3"
	driverType    = "cgo"
	driverPackage = "github.com/mattn/go-sqlite3"
)
