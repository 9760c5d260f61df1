package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	migrate "github.com/rubenv/sql-migrate"

	logx "bumpbot/pkg/logx"
)

//go:embed migrations
var migrationsFS embed.FS

// singletonKey is the primary key of the only reminder_state row.
const singletonKey = 1

// sqlStore is shared by the sqlite and mysql drivers; only the upsert
// statement differs between dialects.
type sqlStore struct {
	db     *sqlx.DB
	log    logx.Logger
	upsert string
	closed atomic.Bool
}

func migrateDB(db *sqlx.DB, dialect, root string) (int, error) {
	src := &migrate.EmbedFileSystemMigrationSource{FileSystem: migrationsFS, Root: root}
	return migrate.Exec(db.DB, dialect, src, migrate.Up)
}

func (s *sqlStore) NextFire(ctx context.Context) (time.Time, bool, error) {
	if s.closed.Load() {
		return time.Time{}, false, ErrClosed
	}
	var ms sql.NullInt64
	err := s.db.GetContext(ctx, &ms, `SELECT next_fire_at FROM reminder_state WHERE id = ?`, singletonKey)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	if !ms.Valid {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms.Int64), true, nil
}

func (s *sqlStore) PutNextFire(ctx context.Context, at time.Time) error {
	if s.closed.Load() {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx, s.upsert, singletonKey, at.UnixMilli())
	return err
}

func (s *sqlStore) ClearNextFire(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM reminder_state WHERE id = ?`, singletonKey)
	return err
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil || !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}
