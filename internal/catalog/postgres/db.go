package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

const defaultApplicationName = "askbi"

type DBConfig struct {
	DSN string
	// ApplicationName tags catalog sessions in pg_stat_activity.
	ApplicationName string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

// Open connects to the catalog holding prompt examples, exploration logs and
// API keys, and pings it before returning.
func Open(ctx context.Context, cfg DBConfig) (*sql.DB, error) {
	connConfig, err := parseConnConfig(cfg)
	if err != nil {
		return nil, err
	}
	db := stdlib.OpenDB(*connConfig)
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping catalog db: %w", err)
	}
	return db, nil
}

func parseConnConfig(cfg DBConfig) (*pgx.ConnConfig, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("catalog dsn is required")
	}
	connConfig, err := pgx.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse catalog dsn: %w", err)
	}
	if connConfig.RuntimeParams == nil {
		connConfig.RuntimeParams = map[string]string{}
	}
	name := strings.TrimSpace(cfg.ApplicationName)
	if name == "" {
		name = defaultApplicationName
	}
	// An application_name in the DSN wins.
	if _, ok := connConfig.RuntimeParams["application_name"]; !ok {
		connConfig.RuntimeParams["application_name"] = name
	}
	return connConfig, nil
}
