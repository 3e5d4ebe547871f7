// Command migrate applies the PostgreSQL schema used by the postgres store
// driver. The MongoDB driver needs no migrations.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"bookshelf/internal/platform/logging"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

func main() {
	var (
		command = flag.String("command", "up", "Migration command: up, down, status, create")
		name    = flag.String("name", "", "Name for 'create' command")
	)
	flag.Parse()

	logger := logging.New(os.Stderr, os.Getenv("LOG_LEVEL"))
	cfg, err := loadSettings()
	if err != nil {
		logger.Error("invalid settings", "error", err)
		os.Exit(2)
	}

	if err := run(cfg, *command, *name); err != nil {
		logger.Error("migrate failed", "command", *command, "error", err)
		os.Exit(1)
	}
}

func run(cfg settings, command, name string) error {
	dir := cfg.dir
	if command == "create" {
		if name == "" {
			return fmt.Errorf("name is required for 'create' command")
		}
		return goose.Create(nil, dir, name, "sql")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, cfg.dsn)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	goose.SetTableName(cfg.table)

	switch command {
	case "up":
		if err := goose.UpContext(ctx, db, dir); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		fmt.Println("Migrations applied successfully")
	case "down":
		if err := goose.DownContext(ctx, db, dir); err != nil {
			return fmt.Errorf("roll back migration: %w", err)
		}
		fmt.Println("Migration rolled back successfully")
	case "status":
		return goose.StatusContext(ctx, db, dir)
	default:
		return fmt.Errorf("unknown command %q, use: up, down, status, create", command)
	}
	return nil
}
