// Command migrate manages the warden database schema.
//
// Migrations live under migrations/ as goose-annotated SQL; the target
// database comes from DATABASE_URL.
//
// Usage:
//
//	go run ./cmd/migrate up          # Apply all pending migrations
//	go run ./cmd/migrate down        # Roll back the last migration
//	go run ./cmd/migrate status      # Show applied and pending migrations
//	go run ./cmd/migrate version     # Show current schema version
//	go run ./cmd/migrate redo        # Roll back and re-apply last migration
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

const connectTimeout = 10 * time.Second

func main() {
	dir := flag.String("dir", "migrations", "directory holding goose migration files")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Println("Usage: migrate [-dir migrations] <command> [args]")
		fmt.Println("Commands: up, down, status, version, redo, up-to <version>, down-to <version>")
		os.Exit(1)
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	pingCtx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatalf("Failed to set dialect: %v", err)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	if err := goose.RunContext(context.Background(), command, db, *dir, args...); err != nil {
		log.Fatalf("Migration %s failed: %v", command, err)
	}
}
