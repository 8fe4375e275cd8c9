package migration

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
)

// MigrationFile describes a generated up/down migration pair
type MigrationFile struct {
	Version     string
	Name        string
	Description string
	Timestamp   string
	UpPath      string
	DownPath    string
}

// CreateMigration writes a stub up/down migration pair into migrationsDir.
// The version prefix is the creation time, so file order is apply order.
func CreateMigration(migrationsDir, name, description string) (*MigrationFile, error) {
	if err := os.MkdirAll(migrationsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create migrations directory: %w", err)
	}

	now := time.Now()
	mf := &MigrationFile{
		Version:     now.Format("20060102150405"),
		Name:        name,
		Description: description,
		Timestamp:   now.Format(time.RFC3339),
	}

	base := mf.Version + "_" + sanitizeName(name)
	mf.UpPath = filepath.Join(migrationsDir, base+upSuffix)
	mf.DownPath = filepath.Join(migrationsDir, base+downSuffix)

	if err := os.WriteFile(mf.UpPath, []byte(migrationStub(mf, false)), 0644); err != nil {
		return nil, fmt.Errorf("failed to create up migration: %w", err)
	}
	if err := os.WriteFile(mf.DownPath, []byte(migrationStub(mf, true)), 0644); err != nil {
		// don't leave a half pair behind
		_ = os.Remove(mf.UpPath)
		return nil, fmt.Errorf("failed to create down migration: %w", err)
	}

	return mf, nil
}

func migrationStub(mf *MigrationFile, rollback bool) string {
	var b strings.Builder
	title := mf.Name
	if rollback {
		title += " (rollback)"
	}
	fmt.Fprintf(&b, "-- Migration: %s\n", title)
	fmt.Fprintf(&b, "-- Created: %s\n", mf.Timestamp)
	if mf.Description != "" {
		fmt.Fprintf(&b, "-- %s\n", mf.Description)
	}
	if rollback {
		b.WriteString("\n-- SQL to undo the migration goes here\n\n")
	} else {
		b.WriteString("\n-- SQL to apply the migration goes here\n\n")
	}
	return b.String()
}

// sanitizeName lowercases a migration name and collapses separators so it is
// safe as a file name: "Add Payment Records" becomes "add_payment_records".
func sanitizeName(name string) string {
	var b strings.Builder
	lastSep := true // also swallows leading separators
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'A' && c <= 'Z':
			c += 'a' - 'A'
			fallthrough
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			b.WriteByte(c)
			lastSep = false
		case c == ' ', c == '-', c == '_':
			if !lastSep {
				b.WriteByte('_')
				lastSep = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// ListMigrations returns the base names of the migration pairs in a
// directory. A missing directory is treated as empty, not as an error.
func ListMigrations(migrationsDir string) ([]string, error) {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	migrations := make([]string, 0, len(entries)/2)
	seen := make(map[string]bool)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), upSuffix) {
			continue
		}
		base := strings.TrimSuffix(entry.Name(), upSuffix)
		if !seen[base] {
			seen[base] = true
			migrations = append(migrations, base)
		}
	}

	return migrations, nil
}
