// Package database stores run history in PostgreSQL.
package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DefaultMaxConns bounds the connection pool.
const DefaultMaxConns = 4

// DB is the run history store.
type DB struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

type options struct {
	logger   *zap.Logger
	maxConns int32
}

// Option configures a DB.
type Option func(*options)

// WithLogger sets the store logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.Named("database")
		}
	}
}

// WithMaxConns overrides DefaultMaxConns.
func WithMaxConns(n int32) Option {
	return func(o *options) {
		if n > 0 {
			o.maxConns = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: zap.NewNop(), maxConns: DefaultMaxConns}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Open applies pending migrations and connects.
func Open(ctx context.Context, databaseURL string, opts ...Option) (*DB, error) {
	o := buildOptions(opts)
	if err := migrateUp(databaseURL, o.logger); err != nil {
		return nil, err
	}
	return connect(ctx, databaseURL, o)
}

// New connects without migrating.
func New(ctx context.Context, databaseURL string, opts ...Option) (*DB, error) {
	return connect(ctx, databaseURL, buildOptions(opts))
}

func connect(ctx context.Context, databaseURL string, o options) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	cfg.MaxConns = o.maxConns
	cfg.ConnConfig.RuntimeParams["application_name"] = "smarttest"

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	o.logger.Debug("connected to run history",
		zap.String("host", cfg.ConnConfig.Host), zap.String("database", cfg.ConnConfig.Database))
	return &DB{pool: pool, logger: o.logger}, nil
}

// Close closes the connection pool.
func (db *DB) Close() {
	db.pool.Close()
}

func (db *DB) log() *zap.Logger {
	if db.logger == nil {
		return zap.NewNop()
	}
	return db.logger
}

// Pool returns the underlying pool.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

func migrateUp(databaseURL string, logger *zap.Logger) error {
	m, err := newMigrator(databaseURL, logger)
	if err != nil {
		return err
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}
	if version, dirty, err := m.Version(); err == nil {
		logger.Debug("schema ready", zap.Uint("version", version), zap.Bool("dirty", dirty))
	}
	return nil
}

func newMigrator(databaseURL string, logger *zap.Logger) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	m.Log = migrateLogger{logger}
	return m, nil
}

// migrateLogger routes golang-migrate output to zap at debug level.
type migrateLogger struct {
	l *zap.Logger
}

func (m migrateLogger) Printf(format string, v ...any) {
	m.l.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (m migrateLogger) Verbose() bool {
	return m.l.Core().Enabled(zap.DebugLevel)
}
