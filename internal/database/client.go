// Package database opens the collector's SQL store. PostgreSQL (lib/pq) is
// used in deployments and SQLite (modernc.org/sqlite, pure Go) for local
// development and tests. Queries use $N placeholders, which both drivers
// accept, and migrations are applied on open.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"  // PostgreSQL driver
	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Sentinel errors for the database package.
var (
	ErrDatabaseConnection = errors.New("database connection error")
	ErrUnsupportedDriver  = errors.New("unsupported database driver")
)

// Config holds database connection settings.
type Config struct {
	// Driver selects the backend: "postgres" or "sqlite".
	Driver string `env:"DRIVER" envDefault:"sqlite"`

	// SQLitePath is the database file, or ":memory:".
	SQLitePath string `env:"SQLITE_PATH" envDefault:"moveo-collector.db"`

	// PostgreSQL connection settings
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     int    `env:"PORT" envDefault:"5432"`
	User     string `env:"USER" envDefault:"moveo"`
	Password string `env:"PASSWORD" envDefault:"moveo"`
	Name     string `env:"NAME" envDefault:"moveo"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"`

	// Connection pool settings (PostgreSQL only; SQLite uses one connection)
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"5m"`
}

// Client owns the connection pool.
type Client struct {
	db     *sql.DB
	driver string
	logger *slog.Logger
}

// Open connects to the configured database, verifies the connection and
// applies pending migrations.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "database")

	var (
		db  *sql.DB
		err error
	)

	switch cfg.Driver {
	case DriverPostgres:
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode,
		)
		db, err = sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	case DriverSQLite:
		if cfg.SQLitePath == "" {
			return nil, fmt.Errorf("%w: sqlite path must not be empty", ErrDatabaseConnection)
		}
		// WAL mode for concurrent readers, 5s busy timeout for lock contention.
		dsn := cfg.SQLitePath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
		db, err = sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		// A single connection keeps ":memory:" databases coherent and
		// serializes writers.
		db.SetMaxOpenConns(1)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %w", ErrDatabaseConnection, err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	logger.Info("connected to database", "driver", cfg.Driver)

	return &Client{
		db:     db,
		driver: cfg.Driver,
		logger: logger,
	}, nil
}

// OpenSQLite opens a SQLite database at path with default settings.
// Repository tests use it with ":memory:".
func OpenSQLite(ctx context.Context, path string) (*Client, error) {
	return Open(ctx, Config{Driver: DriverSQLite, SQLitePath: path}, nil)
}

// Close closes the database connection.
func (c *Client) Close() error {
	return c.db.Close()
}

// DB returns the underlying connection pool for repositories.
func (c *Client) DB() *sql.DB {
	return c.db
}

// Driver returns the configured driver name.
func (c *Client) Driver() string {
	return c.driver
}

// Ping checks if the database connection is still alive.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}
