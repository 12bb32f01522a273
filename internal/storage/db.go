package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite driver

	"github.com/spherical-ai/spherical/libs/sales-engine/internal/domain"
)

// Common errors
var (
	ErrNotFound = domain.NotFound("record not found", nil)
	ErrConflict = errors.New("record conflict")
)

// DB represents a database connection interface.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// OpenOptions configures Open.
type OpenOptions struct {
	Driver          string // sqlite or postgres
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	JournalMode     string
}

// Open opens and pings a database handle for the given driver.
func Open(ctx context.Context, opts OpenOptions) (*sql.DB, error) {
	var (
		driverName string
		dsn        = opts.DSN
	)
	switch opts.Driver {
	case "sqlite", "":
		driverName = "sqlite3"
		dsn = sqliteDSN(dsn, opts.JournalMode)
	case "postgres":
		driverName = "postgres"
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", opts.Driver)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if driverName == "sqlite3" && isMemory(opts.DSN) {
		// each connection to :memory: is its own database
		db.SetMaxOpenConns(1)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driverName, err)
	}
	return db, nil
}

func sqliteDSN(path, journalMode string) string {
	params := "_foreign_keys=on"
	if isMemory(path) {
		return "file::memory:?" + params
	}
	if journalMode != "" {
		params += "&_journal_mode=" + journalMode
	}
	return "file:" + path + "?" + params
}

func isMemory(path string) bool {
	return path == "" || path == ":memory:"
}

func now() time.Time {
	return time.Now().UTC()
}
