package database

import (
	"database/sql/driver"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"modernc.org/sqlite"

	"github.com/lysyi3m/rss-sync/app/trigram"
)

// DB wraps the connection pool together with the SQL dialect it speaks.
type DB struct {
	*sqlx.DB
	dialect Dialect
}

type ConnectionOptions struct {
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
	Path     string // SQLite database file
	DSN      string // overrides the discrete Postgres fields when set
	MaxConns int
}

func (db *DB) Dialect() Dialect {
	return db.dialect
}

// NewConnection opens and pings the configured database.
func NewConnection(opts ConnectionOptions) (*DB, error) {
	switch opts.Driver {
	case DriverPostgres, "":
		return openPostgres(opts)
	case DriverSQLite:
		return openSQLite(opts)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", opts.Driver)
	}
}

func openPostgres(opts ConnectionOptions) (*DB, error) {
	sslMode := opts.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := opts.DSN
	if dsn == "" {
		dsn = (&url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(opts.User, opts.Password),
			Host:     opts.Host + ":" + opts.Port,
			Path:     opts.Name,
			RawQuery: "sslmode=" + url.QueryEscape(sslMode),
		}).String()
	}

	conn, err := sqlx.Connect(DriverPostgres, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	maxConns := opts.MaxConns
	if maxConns <= 0 {
		maxConns = 10
	}
	conn.SetMaxOpenConns(maxConns)
	conn.SetMaxIdleConns(maxConns)
	conn.SetConnMaxLifetime(30 * time.Minute)

	slog.Debug("Connected to database", "driver", DriverPostgres, "host", opts.Host, "name", opts.Name)
	return &DB{DB: conn, dialect: Postgres}, nil
}

func openSQLite(opts ConnectionOptions) (*DB, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("sqlite database path is required")
	}

	if err := registerSQLiteFunctions(); err != nil {
		return nil, err
	}

	dsn := opts.Path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	conn, err := sqlx.Connect(DriverSQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// SQLite has a single writer.
	conn.SetMaxOpenConns(1)

	slog.Debug("Connected to database", "driver", DriverSQLite, "path", opts.Path)
	return &DB{DB: conn, dialect: SQLite}, nil
}

var (
	registerOnce sync.Once
	registerErr  error
)

// registerSQLiteFunctions provides the pg_trgm similarity() function to SQLite
// connections. Functions apply to connections opened after registration.
func registerSQLiteFunctions() error {
	registerOnce.Do(func() {
		registerErr = sqlite.RegisterDeterministicScalarFunction("similarity", 2,
			func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
				return trigram.Similarity(sqlText(args[0]), sqlText(args[1])), nil
			})
		if registerErr != nil {
			registerErr = fmt.Errorf("failed to register sqlite similarity function: %w", registerErr)
		}
	})
	return registerErr
}

func sqlText(v driver.Value) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}
