// Package storage persists the single next-fire timestamp of the bump reminder.
//
// Drivers:
//   - sqlite: SQLite database file (modernc.org/sqlite, default)
//   - mysql:  MySQL/MariaDB via DSN
//   - file:   one small JSON file, atomically replaced on every write
//   - memory: process-local only (tests, dry runs)
//
// The persisted layout is one row keyed by a constant singleton key holding
// a unix-millisecond timestamp. A missing row or NULL value means "no reminder
// pending".
package storage
