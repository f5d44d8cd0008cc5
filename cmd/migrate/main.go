// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/opentrusty/auth-service/internal/config"
	"github.com/opentrusty/auth-service/internal/store/postgres"
)

// migrate applies or rolls back the embedded schema without starting the
// server. The connection comes from the DB_* environment unless -url is set.
func main() {
	url := flag.String("url", "", "postgres connection URL (defaults to DB_* settings)")
	down := flag.Bool("down", false, "roll back the most recent migration")
	flag.Parse()

	ctx := context.Background()

	connStr := *url
	if connStr == "" {
		cfg, err := config.Load()
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
		connStr = postgres.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.Database,
			SSLMode:  cfg.Database.SSLMode,
		}.URL()
	}

	db, err := sql.Open("pgx", connStr)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("Failed to ping: %v", err)
	}
	fmt.Println("Connected to database")

	migrations, err := postgres.Migrations()
	if err != nil {
		log.Fatalf("Failed to load migrations: %v", err)
	}

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name       TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		log.Fatalf("Failed to create schema_migrations: %v", err)
	}

	if *down {
		if err := rollback(ctx, db, migrations); err != nil {
			log.Fatal(err)
		}
		return
	}

	applied := 0
	for _, m := range migrations {
		var done bool
		if err := db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE name = $1)`, m.Name,
		).Scan(&done); err != nil {
			log.Fatalf("Failed to check %s: %v", m.Name, err)
		}
		if done {
			continue
		}

		fmt.Printf("Running %s...\n", m.Name)
		if err := inTx(ctx, db, m.Up, `INSERT INTO schema_migrations (name) VALUES ($1)`, m.Name); err != nil {
			log.Fatalf("Failed to apply %s: %v", m.Name, err)
		}
		applied++
	}

	fmt.Printf("%d migration(s) applied\n", applied)
}

func rollback(ctx context.Context, db *sql.DB, migrations []postgres.Migration) error {
	var last string
	err := db.QueryRowContext(ctx,
		`SELECT name FROM schema_migrations ORDER BY name DESC LIMIT 1`,
	).Scan(&last)
	if err == sql.ErrNoRows {
		fmt.Println("Nothing to roll back")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read schema_migrations: %w", err)
	}

	for _, m := range migrations {
		if m.Name != last {
			continue
		}
		if m.Down == "" {
			return fmt.Errorf("migration %s has no down script", m.Name)
		}
		fmt.Printf("Rolling back %s...\n", m.Name)
		return inTx(ctx, db, m.Down, `DELETE FROM schema_migrations WHERE name = $1`, m.Name)
	}
	return fmt.Errorf("applied migration %s is not embedded in this binary", last)
}

// inTx runs script and the bookkeeping statement atomically
func inTx(ctx context.Context, db *sql.DB, script, record, name string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, script); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, record, name); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
