// Package database opens the site database and applies its migrations.
//
// Two backends are supported: a local SQLite file (the default) and
// PostgreSQL, selected by the scheme of the connection string.
package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"homesite/internal/security"
)

const (
	// DefaultTimeout is used when executing queries to avoid leaking resources on hung calls.
	DefaultTimeout = 5 * time.Second
)

// Dialect identifies the SQL backend.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

//go:embed migrations
var migrations embed.FS

// DB wraps a *sql.DB together with the dialect it speaks.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// DialectFor returns the dialect implied by a connection string.
// postgres:// and postgresql:// URLs select PostgreSQL; anything else is
// treated as a SQLite file path.
func DialectFor(url string) Dialect {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return DialectPostgres
	}
	return DialectSQLite
}

// Open connects to the database named by url and pings it.
func Open(ctx context.Context, url string) (*DB, error) {
	if url == "" {
		return nil, fmt.Errorf("database url is empty")
	}

	dialect := DialectFor(url)

	var (
		sqlDB *sql.DB
		err   error
	)
	switch dialect {
	case DialectPostgres:
		sqlDB, err = sql.Open("pgx", url)
	default:
		sqlDB, err = sql.Open("sqlite", sqliteDSN(url))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dialect == DialectSQLite {
		// SQLite allows a single writer.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if dialect == DialectSQLite {
		if err := restrictFile(url); err != nil {
			sqlDB.Close()
			return nil, err
		}
	}

	return &DB{DB: sqlDB, Dialect: dialect}, nil
}

// restrictFile limits a SQLite database file to owner and group, since it
// holds visitor addresses.
func restrictFile(url string) error {
	path, _, _ := strings.Cut(strings.TrimPrefix(url, "file:"), "?")
	if path == "" || path == ":memory:" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat database file: %w", err)
	}
	if err := os.Chmod(path, security.PermDBFile); err != nil {
		return fmt.Errorf("failed to set database file permissions: %w", err)
	}
	return nil
}

func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)"
}

// Migrate applies all pending embedded migrations for the dialect and
// returns the versions that were applied.
func (db *DB) Migrate(ctx context.Context) ([]int64, error) {
	fsys, err := fs.Sub(migrations, "migrations/"+string(db.Dialect))
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}

	gooseDialect := goose.DialectSQLite3
	if db.Dialect == DialectPostgres {
		gooseDialect = goose.DialectPostgres
	}

	provider, err := goose.NewProvider(gooseDialect, db.DB, fsys)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	applied := make([]int64, 0, len(results))
	for _, r := range results {
		applied = append(applied, r.Source.Version)
	}
	return applied, nil
}

// Rebind rewrites ? placeholders into the form the dialect expects.
func (db *DB) Rebind(query string) string {
	if db.Dialect != DialectPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Exec executes a statement with the default timeout applied.
func (db *DB) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	return db.DB.ExecContext(ctx, db.Rebind(query), args...)
}

// Get retrieves a single row into dest with the default timeout applied.
func (db *DB) Get(ctx context.Context, dest any, query string, args ...any) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	return sqlscan.Get(ctx, db.DB, dest, db.Rebind(query), args...)
}

// Select retrieves multiple rows into dest with the default timeout applied.
func (db *DB) Select(ctx context.Context, dest any, query string, args ...any) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	return sqlscan.Select(ctx, db.DB, dest, db.Rebind(query), args...)
}

// Ping ensures the database is reachable with the default timeout.
func (db *DB) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()
	return db.DB.PingContext(ctx)
}
