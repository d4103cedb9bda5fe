package main

import (
	"context"
	"embed"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"time"

	"github.com/tokenmint/ledger/internal/config"
	"github.com/tokenmint/ledger/internal/logger"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

//go:embed all:../../migrations
var migrationsFS embed.FS

const migrationsDir = "../../migrations"

func main() {
	dryRun := flag.Bool("dry-run", false, "print migration SQL without executing it")
	flag.Parse()

	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}

	names, err := sortedMigrationFiles()
	if err != nil {
		log.Fatalf("failed to list migrations: %v", err)
	}

	if *dryRun {
		for _, name := range names {
			body, err := migrationsFS.ReadFile(migrationsDir + "/" + name)
			if err != nil {
				log.Fatalf("failed to read migration %s: %v", name, err)
			}
			fmt.Printf("-- %s\n%s\n", name, body)
		}
		return
	}

	dsn := cfg.Postgres.GetDSN()
	log.Infow("connecting to database", "host", cfg.Postgres.Host)

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, schemaMigrationsDDL); err != nil {
		log.Fatalf("failed to ensure schema_migrations table: %v", err)
	}

	for _, name := range names {
		applied, err := isApplied(ctx, db, name)
		if err != nil {
			log.Fatalf("failed to check migration state for %s: %v", name, err)
		}
		if applied {
			log.Infow("skipping already-applied migration", "migration", name)
			continue
		}

		body, err := migrationsFS.ReadFile(migrationsDir + "/" + name)
		if err != nil {
			log.Fatalf("failed to read migration %s: %v", name, err)
		}

		log.Infow("applying migration", "migration", name)
		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			log.Fatalf("failed to begin transaction for %s: %v", name, err)
		}
		if _, err := tx.ExecContext(ctx, string(body)); err != nil {
			_ = tx.Rollback()
			log.Fatalf("failed to apply migration %s: %v", name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name, applied_at) VALUES ($1, $2)`, name, time.Now().UTC()); err != nil {
			_ = tx.Rollback()
			log.Fatalf("failed to record migration %s: %v", name, err)
		}
		if err := tx.Commit(); err != nil {
			log.Fatalf("failed to commit migration %s: %v", name, err)
		}
	}

	fmt.Println("migration process completed")
}

const schemaMigrationsDDL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	name TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL
)`

func isApplied(ctx context.Context, db *sqlx.DB, name string) (bool, error) {
	var count int
	err := db.GetContext(ctx, &count, `SELECT count(*) FROM schema_migrations WHERE name = $1`, name)
	return count > 0, err
}

func sortedMigrationFiles() ([]string, error) {
	entries, err := fs.ReadDir(migrationsFS, migrationsDir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
