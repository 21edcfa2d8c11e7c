package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

type sqlScript struct {
	name string
	data []byte
}

// RunMigrations brings the checklist schema up to date. Scripts come
// from migrationsDir when it exists, otherwise from the embedded copies,
// and run in lexical order; every script is idempotent (CREATE IF NOT
// EXISTS), so re-running on an existing database is safe.
func RunMigrations(db *sql.DB, migrationsDir string) error {
	scripts, err := loadScripts(migrationsDir)
	if err != nil {
		return err
	}
	for _, sc := range scripts {
		if len(sc.data) == 0 {
			continue
		}
		if _, err := db.Exec(string(sc.data)); err != nil {
			return fmt.Errorf("exec migration %s: %w", sc.name, err)
		}
	}
	return nil
}

func loadScripts(dir string) ([]sqlScript, error) {
	if dir != "" {
		scripts, err := readScriptDir(dir)
		if err == nil {
			return scripts, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read migrations: %w", err)
		}
	}

	entries, err := embeddedMigrations.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read embedded migrations: %w", err)
	}
	var scripts []sqlScript
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".sql" {
			continue
		}
		data, err := embeddedMigrations.ReadFile(filepath.Join("migrations", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read embedded migration %s: %w", entry.Name(), err)
		}
		scripts = append(scripts, sqlScript{name: entry.Name(), data: data})
	}
	sortScripts(scripts)
	return scripts, nil
}

func readScriptDir(dir string) ([]sqlScript, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var scripts []sqlScript
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".sql" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		scripts = append(scripts, sqlScript{name: entry.Name(), data: data})
	}
	sortScripts(scripts)
	return scripts, nil
}

func sortScripts(scripts []sqlScript) {
	sort.Slice(scripts, func(i, j int) bool { return scripts[i].name < scripts[j].name })
}
