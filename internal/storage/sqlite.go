package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	logx "bumpbot/pkg/logx"
)

const defaultSQLitePath = "./bumpbot.db"

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = defaultSQLitePath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	// FULL: the timestamp must survive power loss, not just a process crash.
	_, _ = db.Exec("PRAGMA synchronous = FULL")

	n, err := migrateDB(db, "sqlite3", "migrations/sqlite")
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	if n > 0 {
		log.Info("applied migrations", logx.Int("count", n))
	}
	log.Debug("sqlite store opened", logx.String("path", path))

	return &sqlStore{
		db:     db,
		log:    log,
		upsert: `INSERT INTO reminder_state (id, next_fire_at) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET next_fire_at = excluded.next_fire_at`,
	}, nil
}
