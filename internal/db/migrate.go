package db

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// RunMigrations applies every .sql file in name order. When dir names an
// existing directory it overrides the embedded set, which lets deployments
// patch the schema without rebuilding.
func RunMigrations(db *sql.DB, dir string) error {
	fsys, root := fs.FS(embeddedMigrations), "migrations"
	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			fsys, root = os.DirFS(dir), "."
		}
	}

	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		data, err := fs.ReadFile(fsys, path.Join(root, name))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if len(strings.TrimSpace(string(data))) == 0 {
			continue
		}
		if _, err := db.Exec(string(data)); err != nil {
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
	}
	return nil
}
