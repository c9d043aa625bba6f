package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect identifies the SQL flavour spoken by a data source.
type Dialect string

const (
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Config holds connection details
type Config struct {
	Driver          string // "mysql", "postgres", "pgx", "sqlite"; inferred from DSN when empty
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DataSource wraps a connection pool together with its dialect.
type DataSource struct {
	db      *sql.DB
	dialect Dialect
	driver  string
}

// Open resolves the driver, opens the pool and pings it.
func Open(ctx context.Context, config Config) (*DataSource, error) {
	driver, dsn, dialect, err := resolve(config)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s database: %w", driver, err)
	}

	return &DataSource{db: db, dialect: dialect, driver: driver}, nil
}

// New wraps an already opened pool.
func New(db *sql.DB, dialect Dialect) *DataSource {
	return &DataSource{db: db, dialect: dialect, driver: string(dialect)}
}

func (d *DataSource) DB() *sql.DB {
	return d.db
}

func (d *DataSource) Dialect() Dialect {
	return d.dialect
}

func (d *DataSource) Driver() string {
	return d.driver
}

func (d *DataSource) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// QuoteIdent quotes a table or column name for the source's dialect.
func (d *DataSource) QuoteIdent(name string) string {
	if d.dialect == DialectMySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// resolve maps the configured driver (or the DSN shape) to a registered
// database/sql driver name, a DSN that driver understands, and a dialect.
func resolve(config Config) (driver, dsn string, dialect Dialect, err error) {
	dsn = strings.TrimSpace(config.DSN)
	if dsn == "" {
		return "", "", "", fmt.Errorf("database DSN is required")
	}
	// SQLAlchemy-style URLs carry the python driver after a plus sign.
	if i := strings.Index(dsn, "://"); i > 0 {
		if plus := strings.IndexByte(dsn[:i], '+'); plus > 0 {
			dsn = dsn[:plus] + dsn[i:]
		}
	}

	driver = strings.ToLower(strings.TrimSpace(config.Driver))
	if driver == "" {
		driver = inferDriver(dsn)
		if driver == "" {
			return "", "", "", fmt.Errorf("cannot infer database driver from DSN; set database.driver")
		}
	}

	switch driver {
	case "mysql":
		dsn, err = mysqlDSN(dsn)
		if err != nil {
			return "", "", "", err
		}
		return "mysql", dsn, DialectMySQL, nil
	case "postgres", "postgresql":
		return "postgres", dsn, DialectPostgres, nil
	case "pgx":
		return "pgx", dsn, DialectPostgres, nil
	case "sqlite", "sqlite3":
		return "sqlite", strings.TrimPrefix(dsn, "sqlite://"), DialectSQLite, nil
	default:
		return "", "", "", fmt.Errorf("unsupported database driver: %s (supported: mysql, postgres, pgx, sqlite)", driver)
	}
}

func inferDriver(dsn string) string {
	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return "postgres"
	case strings.HasPrefix(lower, "mysql://"), strings.Contains(lower, "@tcp("), strings.Contains(lower, "@unix("):
		return "mysql"
	case strings.HasPrefix(lower, "sqlite://"), strings.HasPrefix(lower, "file:"), lower == ":memory:",
		strings.HasSuffix(lower, ".db"), strings.HasSuffix(lower, ".sqlite"):
		return "sqlite"
	}
	return ""
}

// mysqlDSN accepts either a go-sql-driver DSN or a mysql:// URL and returns
// a go-sql-driver DSN with time parsing enabled.
func mysqlDSN(dsn string) (string, error) {
	if !strings.HasPrefix(strings.ToLower(dsn), "mysql://") {
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", fmt.Errorf("parse mysql DSN: %w", err)
		}
		cfg.ParseTime = true
		return cfg.FormatDSN(), nil
	}

	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql URL: %w", err)
	}

	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = u.Host
	if u.Port() == "" && u.Host != "" {
		cfg.Addr = net.JoinHostPort(u.Hostname(), "3306")
	}
	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
	}
	cfg.DBName = strings.TrimPrefix(u.Path, "/")
	cfg.ParseTime = true
	if q := u.Query(); len(q) > 0 {
		cfg.Params = make(map[string]string, len(q))
		for k := range q {
			cfg.Params[k] = q.Get(k)
		}
	}
	return cfg.FormatDSN(), nil
}
