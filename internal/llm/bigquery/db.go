package bigquery

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

type DBConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// Open connects to the warehouse that exposes the text-generation function.
// The driver must speak the BigQuery dialect and be linked into the binary.
func Open(ctx context.Context, cfg DBConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("warehouse dsn is required")
	}
	driver := strings.TrimSpace(cfg.Driver)
	if driver == "" {
		return nil, fmt.Errorf("warehouse driver is required")
	}
	if !SpeaksBigQuery(driver) {
		return nil, fmt.Errorf("warehouse driver %q does not speak the BigQuery dialect", driver)
	}
	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open warehouse db: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping warehouse db: %w", err)
	}
	return db, nil
}

// SpeaksBigQuery rejects the Postgres drivers. Statements use ML.GENERATE_TEXT
// and backslash-escaped literals, which Postgres cannot parse.
func SpeaksBigQuery(driver string) bool {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "pgx", "pgx/v5", "postgres", "postgresql":
		return false
	default:
		return true
	}
}
