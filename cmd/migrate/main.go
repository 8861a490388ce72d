package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"storefront/internal/config"
	"storefront/internal/db"
	"storefront/internal/logger"

	"go.uber.org/zap"
)

const schemaTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at TIMESTAMP NOT NULL DEFAULT NOW()
	)`

func main() {
	mode := flag.String("mode", "up", "migration mode: up or down")
	dir := flag.String("dir", "./migrations", "directory holding *.sql migrations")
	flag.Parse()

	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv)
	defer logger.Sync()
	log := logger.L()

	database, err := db.NewDatabase(cfg)
	if err != nil {
		log.Fatal("database init", zap.Error(err))
	}
	defer database.Close()

	m := &migrator{db: database, log: log}
	if err := m.run(context.Background(), *mode, *dir); err != nil {
		log.Error("migration failed", zap.Error(err))
		os.Exit(1)
	}
}

type migrator struct {
	db  *sql.DB
	log *zap.Logger
}

func (m *migrator) run(ctx context.Context, mode, dir string) error {
	if _, err := m.db.ExecContext(ctx, schemaTable); err != nil {
		return fmt.Errorf("failed to ensure schema_migrations table: %w", err)
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}
	// file names carry a timestamp prefix
	slices.Sort(files)

	switch mode {
	case "up":
		return m.up(ctx, files)
	case "down":
		return m.down(ctx, files)
	default:
		return fmt.Errorf("unknown mode: %s (use 'up' or 'down')", mode)
	}
}

func (m *migrator) up(ctx context.Context, files []string) error {
	applied := 0
	for _, file := range files {
		version := filepath.Base(file)

		var exists bool
		err := m.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, version).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check migration status: %w", err)
		}
		if exists {
			m.log.Debug("skipping applied migration", zap.String("version", version))
			continue
		}

		content, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", file, err)
		}

		m.log.Info("applying migration", zap.String("version", version))
		err = m.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, extractMigrationPart(string(content), "Up")); err != nil {
				return fmt.Errorf("migration %s: %w", version, err)
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version)
			return err
		})
		if err != nil {
			return err
		}
		applied++
	}

	m.log.Info("migrations up to date", zap.Int("applied", applied))
	return nil
}

func (m *migrator) down(ctx context.Context, files []string) error {
	var version string
	err := m.db.QueryRowContext(ctx,
		`SELECT version FROM schema_migrations ORDER BY applied_at DESC, version DESC LIMIT 1`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		m.log.Info("no migrations to roll back")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get last applied migration: %w", err)
	}

	i := slices.IndexFunc(files, func(f string) bool { return filepath.Base(f) == version })
	if i < 0 {
		return fmt.Errorf("migration file not found for version: %s", version)
	}

	content, err := os.ReadFile(files[i])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", files[i], err)
	}

	m.log.Info("rolling back migration", zap.String("version", version))
	return m.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, extractMigrationPart(string(content), "Down")); err != nil {
			return fmt.Errorf("rollback %s: %w", version, err)
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = $1`, version)
		return err
	})
}

func (m *migrator) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// extractMigrationPart returns the lines between "-- +migrate <section>" and
// the next marker.
func extractMigrationPart(content string, section string) string {
	var (
		part   strings.Builder
		inPart bool
	)
	for line := range strings.SplitSeq(content, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "-- +migrate") {
			if inPart {
				break
			}
			inPart = strings.Contains(line, "-- +migrate "+section)
			continue
		}
		if inPart {
			part.WriteString(line)
			part.WriteByte('\n')
		}
	}
	return part.String()
}
