// Package migrations applies the embedded SQL schema to PostgreSQL and ClickHouse.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"
)

//go:embed postgres/*.sql clickhouse/*.sql
var files embed.FS

// Migration is one versioned SQL file. Version is the file name.
type Migration struct {
	Version string
	SQL     string
}

// Postgres returns the PostgreSQL migrations in apply order.
func Postgres() ([]Migration, error) { return load(files, "postgres") }

// Clickhouse returns the ClickHouse migrations in apply order.
func Clickhouse() ([]Migration, error) { return load(files, "clickhouse") }

// load reads dir/*.sql from fsys. fs.ReadDir returns names sorted, which is
// the apply order.
func load(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("list %s migrations: %w", dir, err)
	}

	var out []Migration
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".sql" {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		out = append(out, Migration{Version: e.Name(), SQL: string(data)})
	}
	return out, nil
}
