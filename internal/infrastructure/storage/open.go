// Package storage provides the price book and purchase order stores.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/orderguard/backend/internal/domain"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// Supported storage drivers
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config selects and configures the store
type Config struct {
	Driver   string
	DSN      string
	MaxConns int
}

// Open returns the single store selected by cfg.Driver, with its schema in place
func Open(ctx context.Context, cfg Config, logger *logrus.Logger) (domain.Store, error) {
	log := logger.WithFields(logrus.Fields{"component": "storage", "driver": cfg.Driver})

	switch cfg.Driver {
	case DriverMemory, "":
		log.Warn("using in-memory storage, data is lost on restart")
		return NewMemoryStore(), nil

	case DriverPostgres:
		store, err := OpenPostgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		log.Info("connected to postgres")
		return store, nil

	case DriverSQLite:
		store, err := OpenSQLite(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		log.Info("opened sqlite database")
		return store, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

// OpenPostgres creates a pgx pool, wraps it as *sql.DB and migrates the schema
func OpenPostgres(ctx context.Context, cfg Config) (*SQLStore, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = int32(cfg.MaxConns)
	}
	pc.MaxConnIdleTime = 5 * time.Minute
	pc.ConnConfig.RuntimeParams["application_name"] = "orderguard"

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(dialCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := NewSQLStore(stdlib.OpenDBFromPool(pool), DialectPostgres)
	store.onClose = pool.Close

	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// OpenSQLite opens (creating if needed) the database file at dsn and migrates the schema
func OpenSQLite(ctx context.Context, dsn string) (*SQLStore, error) {
	if dsn == "" {
		dsn = "orderguard.db"
	}

	db, err := sql.Open("sqlite", sqliteDSN(dsn))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps :memory: databases shared
	db.SetMaxOpenConns(1)

	store := NewSQLStore(db, DialectSQLite)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// sqliteDSN adds the options the store relies on unless the caller set them
func sqliteDSN(dsn string) string {
	var params []string
	if !strings.Contains(dsn, "_time_format") {
		params = append(params, "_time_format=sqlite")
	}
	if !strings.Contains(dsn, "foreign_keys") {
		params = append(params, "_pragma=foreign_keys(1)")
	}
	if len(params) == 0 {
		return dsn
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}
