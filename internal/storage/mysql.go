package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	logx "bumpbot/pkg/logx"
)

func openMySQL(cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage.dsn is required for mysql driver")
	}
	mc, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("storage.dsn: %w", err)
	}
	if mc.Loc == nil {
		mc.Loc = time.Local
	}

	db, err := sqlx.Connect("mysql", mc.FormatDSN())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(10 * time.Minute)

	n, err := migrateDB(db, "mysql", "migrations/mysql")
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mysql migrate: %w", err)
	}
	if n > 0 {
		log.Info("applied migrations", logx.Int("count", n))
	}
	log.Debug("mysql store opened", logx.String("addr", mc.Addr), logx.String("db", mc.DBName))

	return &sqlStore{
		db:     db,
		log:    log,
		upsert: `INSERT INTO reminder_state (id, next_fire_at) VALUES (?, ?) ON DUPLICATE KEY UPDATE next_fire_at = VALUES(next_fire_at)`,
	}, nil
}
