// Package store keeps ingested coverage in a SQL database and serves it
// through the backend.Source contract.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	_ "modernc.org/sqlite"             // SQLite driver
)

// Backend names a database engine.
type Backend string

const (
	SQLiteBackend     Backend = "sqlite"
	PostgreSQLBackend Backend = "postgresql"
	MySQLBackend      Backend = "mysql"
)

// DefaultSQLitePath is used when the sqlite backend is given no DSN.
const DefaultSQLitePath = "coverage-browser.db"

// Store is a SQL-backed coverage database.
type Store struct {
	db      *sql.DB
	backend Backend
}

// Open connects to the database and creates the schema if needed.
func Open(ctx context.Context, backend Backend, dsn string) (*Store, error) {
	var (
		db  *sql.DB
		err error
	)

	switch backend {
	case SQLiteBackend:
		path := dsn
		if path == "" {
			path = DefaultSQLitePath
		}
		db, err = sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
		if err != nil {
			return nil, fmt.Errorf("open SQLite database at %q: %w", path, err)
		}
		// A single connection avoids "database is locked" errors.
		db.SetMaxOpenConns(1)

	case PostgreSQLBackend:
		// host=localhost port=5432 user=postgres dbname=coverage
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open PostgreSQL database: %w", err)
		}

	case MySQLBackend:
		// user:password@tcp(host:port)/dbname
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open MySQL database: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported store backend: %s. Must be sqlite, postgresql, or mysql", backend)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to %s database: %w", backend, err)
	}

	s := &Store{db: db, backend: backend}
	if err := s.createSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Backend reports the engine in use.
func (s *Store) Backend() Backend {
	return s.backend
}

func (s *Store) schemaStatements() []string {
	switch s.backend {
	case MySQLBackend:
		return []string{
			`CREATE TABLE IF NOT EXISTS revisions (
				revision    VARCHAR(191) PRIMARY KEY,
				pushed_at   BIGINT NOT NULL,
				ingested_at BIGINT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS files (
				revision      VARCHAR(191) NOT NULL,
				path          VARCHAR(512) NOT NULL,
				coverage_json LONGTEXT NOT NULL,
				source        LONGTEXT NOT NULL,
				covered       INT NOT NULL DEFAULT 0,
				instrumented  INT NOT NULL DEFAULT 0,
				PRIMARY KEY (revision, path)
			)`,
			`CREATE TABLE IF NOT EXISTS history (
				path     VARCHAR(512) NOT NULL,
				revision VARCHAR(191) NOT NULL,
				date     BIGINT NOT NULL,
				coverage DOUBLE NOT NULL,
				PRIMARY KEY (path, revision)
			)`,
		}
	case PostgreSQLBackend:
		return []string{
			`CREATE TABLE IF NOT EXISTS revisions (
				revision    TEXT PRIMARY KEY,
				pushed_at   BIGINT NOT NULL,
				ingested_at BIGINT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS files (
				revision      TEXT NOT NULL,
				path          TEXT NOT NULL,
				coverage_json TEXT NOT NULL,
				source        TEXT NOT NULL,
				covered       INTEGER NOT NULL DEFAULT 0,
				instrumented  INTEGER NOT NULL DEFAULT 0,
				PRIMARY KEY (revision, path)
			)`,
			`CREATE TABLE IF NOT EXISTS history (
				path     TEXT NOT NULL,
				revision TEXT NOT NULL,
				date     BIGINT NOT NULL,
				coverage DOUBLE PRECISION NOT NULL,
				PRIMARY KEY (path, revision)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_history_path_date ON history(path, date)`,
		}
	default:
		return []string{
			`CREATE TABLE IF NOT EXISTS revisions (
				revision    TEXT PRIMARY KEY,
				pushed_at   INTEGER NOT NULL,
				ingested_at INTEGER NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS files (
				revision      TEXT NOT NULL,
				path          TEXT NOT NULL,
				coverage_json TEXT NOT NULL,
				source        TEXT NOT NULL DEFAULT '',
				covered       INTEGER NOT NULL DEFAULT 0,
				instrumented  INTEGER NOT NULL DEFAULT 0,
				PRIMARY KEY (revision, path)
			)`,
			`CREATE TABLE IF NOT EXISTS history (
				path     TEXT NOT NULL,
				revision TEXT NOT NULL,
				date     INTEGER NOT NULL,
				coverage REAL NOT NULL,
				PRIMARY KEY (path, revision)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_history_path_date ON history(path, date)`,
		}
	}
}

func (s *Store) createSchema(ctx context.Context) error {
	for _, stmt := range s.schemaStatements() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// rebind rewrites '?' placeholders for engines that number them.
func (s *Store) rebind(query string) string {
	if s.backend != PostgreSQLBackend {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// upsertQuery builds an insert-or-update statement for the engine in use.
func (s *Store) upsertQuery(table string, cols, keys []string) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), placeholders)

	isKey := make(map[string]bool, len(keys))
	for _, k := range keys {
		isKey[k] = true
	}

	var updates []string
	for _, c := range cols {
		if isKey[c] {
			continue
		}
		if s.backend == MySQLBackend {
			updates = append(updates, fmt.Sprintf("%s = VALUES(%s)", c, c))
		} else {
			updates = append(updates, fmt.Sprintf("%s = excluded.%s", c, c))
		}
	}

	if s.backend == MySQLBackend {
		return s.rebind(insert + " ON DUPLICATE KEY UPDATE " + strings.Join(updates, ", "))
	}
	return s.rebind(fmt.Sprintf("%s ON CONFLICT(%s) DO UPDATE SET %s", insert, strings.Join(keys, ", "), strings.Join(updates, ", ")))
}
