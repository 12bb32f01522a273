package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MigrationStatus reports which migrations have been applied.
type MigrationStatus struct {
	Applied []string
	Pending []string
}

// UpToDate reports whether nothing is pending.
func (s *MigrationStatus) UpToDate() bool {
	return len(s.Pending) == 0
}

// Migrator applies the embedded schema migrations.
type Migrator struct {
	db     *sql.DB
	driver string // sqlite or postgres
}

// NewMigrator creates a migrator for the given driver.
func NewMigrator(db *sql.DB, driver string) *Migrator {
	return &Migrator{db: db, driver: driver}
}

// Migrate applies every pending migration.
func Migrate(ctx context.Context, db *sql.DB, driver string) (*MigrationStatus, error) {
	m := NewMigrator(db, driver)
	status, err := m.Status(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.Run(ctx, status); err != nil {
		return nil, err
	}
	return m.Status(ctx)
}

// Status lists applied and pending migrations.
func (m *Migrator) Status(ctx context.Context) (*MigrationStatus, error) {
	if err := m.ensureSchemaMigrationsTable(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	files, err := m.listMigrationFiles()
	if err != nil {
		return nil, fmt.Errorf("list migration files: %w", err)
	}

	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("read applied versions: %w", err)
	}

	status := &MigrationStatus{}
	for _, file := range files {
		if applied[versionOf(file)] {
			status.Applied = append(status.Applied, file)
		} else {
			status.Pending = append(status.Pending, file)
		}
	}
	return status, nil
}

// Run executes the pending migrations in order.
func (m *Migrator) Run(ctx context.Context, status *MigrationStatus) error {
	pending := append([]string(nil), status.Pending...)
	sort.Strings(pending)

	for _, file := range pending {
		if err := m.runMigration(ctx, file); err != nil {
			return fmt.Errorf("run migration %s: %w", file, err)
		}
	}
	return nil
}

func (m *Migrator) ensureSchemaMigrationsTable(ctx context.Context) error {
	var query string
	switch m.driver {
	case "sqlite", "":
		query = `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				version TEXT UNIQUE NOT NULL,
				applied_at TEXT NOT NULL DEFAULT (datetime('now'))
			);
		`
	default:
		query = `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				id SERIAL PRIMARY KEY,
				version TEXT UNIQUE NOT NULL,
				applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
		`
	}
	_, err := m.db.ExecContext(ctx, query)
	return err
}

// listMigrationFiles returns the files for the active driver. SQLite prefers
// a "_sqlite.sql" variant of a migration when one exists.
func (m *Migrator) listMigrationFiles() ([]string, error) {
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	if err != nil {
		return nil, err
	}

	sqliteFiles := make(map[string]string)
	regularFiles := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		if strings.HasSuffix(name, "_sqlite.sql") {
			sqliteFiles[strings.TrimSuffix(name, "_sqlite.sql")] = name
		} else {
			regularFiles[strings.TrimSuffix(name, ".sql")] = name
		}
	}

	bases := make(map[string]bool)
	for base := range sqliteFiles {
		bases[base] = true
	}
	for base := range regularFiles {
		bases[base] = true
	}

	var files []string
	for base := range bases {
		if m.driver == "sqlite" || m.driver == "" {
			if f, ok := sqliteFiles[base]; ok {
				files = append(files, f)
			} else if f, ok := regularFiles[base]; ok {
				files = append(files, f)
			}
			continue
		}
		if f, ok := regularFiles[base]; ok {
			files = append(files, f)
		}
	}
	sort.Strings(files)
	return files, nil
}

func (m *Migrator) appliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func (m *Migrator) runMigration(ctx context.Context, file string) error {
	data, err := migrationFiles.ReadFile("migrations/" + file)
	if err != nil {
		return err
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range splitStatements(string(data)) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}

	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", versionOf(file)); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	return tx.Commit()
}

// versionOf maps "0001_init_sqlite.sql" and "0001_init.sql" to "0001_init".
func versionOf(file string) string {
	return strings.TrimSuffix(strings.TrimSuffix(file, ".sql"), "_sqlite")
}

func splitStatements(script string) []string {
	var out []string
	for _, part := range strings.Split(script, ";") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
