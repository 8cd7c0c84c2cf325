// Package storage persists task execution history.
//
// Drivers:
//   - "file": JSON Lines file with an in-memory tail, no dependencies
//   - "sqlite": SQLite database (build with -tags sqlite)
package storage
