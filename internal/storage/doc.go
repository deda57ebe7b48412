// Package storage persists run history for scheduled report tasks.
//
// Two backends are available:
//   - file: append-only JSON Lines, no external dependencies
//   - sqlite: a single SQLite database file (pure Go driver)
package storage
