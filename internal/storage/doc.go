// Package storage persists run history and alert dedup state.
//
// Drivers:
//   - "file": JSON Lines files next to the configured path
//   - "sqlite": a SQLite database (modernc.org/sqlite, no cgo)
package storage
