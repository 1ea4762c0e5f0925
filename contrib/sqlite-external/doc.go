// Package sqliteexternal registers the optional CGO SQLite driver.
//
// Build with it instead of the pure Go default:
//
//	CGO_ENABLED=1 go build -tags cgo_sqlite ./cmd/stemma
//
// core/sqlite imports this package under the same tag, so the manuscript
// store picks the driver up without further changes.
package sqliteexternal
