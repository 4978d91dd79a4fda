package database

import (
	"cmp"
	"context"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"time"
)

const upSuffix = ".up.sql"

const createMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version    TEXT PRIMARY KEY,
	applied_at TEXT NOT NULL
)`

// Migration is one *.up.sql file, named VERSION_NAME.up.sql where VERSION
// is YYYYMMDD_HHMMSS.
type Migration struct {
	Version string
	Name    string
	UpSQL   string
}

// Migrate applies the migrations in source that schema_migrations does not
// list yet and returns how many it applied.
//
// Each migration runs in its own transaction, in version order. The first
// failure stops the run; migrations committed before it stay applied.
func (db *DB) Migrate(ctx context.Context, source fs.FS) (int, error) {
	if _, err := db.ExecContext(ctx, createMigrationsTable); err != nil {
		return 0, fmt.Errorf("creating schema_migrations: %w", err)
	}

	pending, err := LoadMigrations(source)
	if err != nil {
		return 0, err
	}
	done, err := db.appliedVersions(ctx)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, m := range pending {
		if _, ok := done[m.Version]; ok {
			continue
		}
		if err := db.apply(ctx, m); err != nil {
			return n, fmt.Errorf("migration %s_%s: %w", m.Version, m.Name, err)
		}
		n++
	}
	return n, nil
}

func (db *DB) appliedVersions(ctx context.Context) (map[string]struct{}, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("reading schema_migrations: %w", err)
	}
	defer rows.Close()

	versions := make(map[string]struct{})
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("reading schema_migrations: %w", err)
		}
		versions[v] = struct{}{}
	}
	return versions, rows.Err()
}

func (db *DB) apply(ctx context.Context, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
		m.Version, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("recording version: %w", err)
	}
	return tx.Commit()
}

// LoadMigrations returns the up migrations at the root of source, oldest
// first. Files that do not follow the naming scheme are skipped.
func LoadMigrations(source fs.FS) ([]Migration, error) {
	names, err := fs.Glob(source, "*"+upSuffix)
	if err != nil {
		return nil, fmt.Errorf("listing migrations: %w", err)
	}

	out := make([]Migration, 0, len(names))
	for _, file := range names {
		version, name, ok := parseMigrationFilename(file)
		if !ok {
			continue
		}
		body, err := fs.ReadFile(source, file)
		if err != nil {
			return nil, fmt.Errorf("reading migration %s: %w", file, err)
		}
		out = append(out, Migration{Version: version, Name: name, UpSQL: string(body)})
	}

	slices.SortFunc(out, func(a, b Migration) int { return cmp.Compare(a.Version, b.Version) })
	return out, nil
}

// parseMigrationFilename splits "20260301_090000_print_jobs.up.sql" into
// "20260301_090000" and "print_jobs".
func parseMigrationFilename(file string) (version, name string, ok bool) {
	base, ok := strings.CutSuffix(file, upSuffix)
	if !ok {
		return "", "", false
	}
	date, rest, ok := strings.Cut(base, "_")
	if !ok || date == "" {
		return "", "", false
	}
	clock, name, _ := strings.Cut(rest, "_")
	if clock == "" {
		return "", "", false
	}
	return date + "_" + clock, name, true
}
