// Package main provides a CLI tool for running the SQLite preference store migrations.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/wallet-sync/internal/config"
	"github.com/wallet-sync/internal/storage"
)

func main() {
	var (
		action = flag.String("action", "up", "Migration action: up, down, version")
		dbPath = flag.String("db", "", "SQLite database path (defaults to SQLITE_PATH)")
	)
	flag.Parse()

	path := *dbPath
	if path == "" {
		cfg, err := config.LoadConfig()
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		path = cfg.Store.SQLitePath
	}

	if err := run(path, *action); err != nil {
		log.Fatalf("SQLite migration failed: %v", err)
	}
}

func run(path, action string) error {
	switch action {
	case "up":
		log.Printf("Running SQLite migrations on %s...", path)
		if err := storage.RunMigrations(path); err != nil {
			return err
		}
		log.Println("SQLite migrations completed successfully")

	case "down":
		log.Printf("Rolling back SQLite migration on %s...", path)
		if err := storage.RollbackMigrations(path); err != nil {
			return err
		}
		log.Println("SQLite migration rolled back successfully")

	case "version":
		version, dirty, err := storage.MigrationVersion(path)
		if err != nil {
			return err
		}
		log.Printf("Current SQLite migration version: %d (dirty: %v)", version, dirty)

	default:
		return fmt.Errorf("unknown action: %s", action)
	}

	return nil
}
