package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const defaultPath = "./data/cerberus.db"

type Config struct {
	Path string // e.g. "./data/cerberus.db"
	Env  string // "dev" | "prod"
}

// DSN builds the modernc.org/sqlite connection string with the per-connection
// PRAGMAs every Cerberus database uses:
//   - foreign_keys ON
//   - WAL so HTTP reads do not block the single writer
//   - synchronous NORMAL
//   - busy_timeout to absorb SQLITE_BUSY
func DSN(path string) string {
	return fmt.Sprintf(
		"file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)",
		path,
	)
}

func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if cfg.Path == "" {
		cfg.Path = defaultPath
	}
	if cfg.Env == "" {
		cfg.Env = "dev"
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}

	db, err := sql.Open("sqlite", DSN(cfg.Path))
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}

	// Single connection: all writes go through Worker anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}
