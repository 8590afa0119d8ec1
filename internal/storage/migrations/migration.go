package migrations

import (
	"fmt"
	"io/fs"
	"path"
	"strings"
)

// Migration is one schema file. Version is the file name without the .sql
// extension, e.g. "001_datasets"; versions apply in lexical order.
type Migration struct {
	Version string
	SQL     string
}

// Postgres returns the embedded PostgreSQL migrations.
func Postgres() ([]Migration, error) {
	return load(postgresFS, postgresDir)
}

// Clickhouse returns the embedded ClickHouse migrations.
func Clickhouse() ([]Migration, error) {
	return load(clickhouseFS, clickhouseDir)
}

func load(fsys fs.FS, dir string) ([]Migration, error) {
	// fs.Glob returns names in lexical order.
	files, err := fs.Glob(fsys, dir+"/*.sql")
	if err != nil {
		return nil, err
	}

	out := make([]Migration, 0, len(files))
	for _, file := range files {
		data, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", file, err)
		}
		sql := strings.TrimSpace(string(data))
		if sql == "" {
			continue
		}
		out = append(out, Migration{
			Version: strings.TrimSuffix(path.Base(file), ".sql"),
			SQL:     sql,
		})
	}
	return out, nil
}

// pending returns the migrations whose version is not in applied.
func pending(all []Migration, applied map[string]struct{}) []Migration {
	var out []Migration
	for _, m := range all {
		if _, ok := applied[m.Version]; !ok {
			out = append(out, m)
		}
	}
	return out
}
