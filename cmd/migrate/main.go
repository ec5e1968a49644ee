// Command migrate applies the embedded schema migrations. Statements are
// idempotent (IF NOT EXISTS), so re-running is safe.
package main

import (
	"context"
	"os"

	"allowgate/internal/platform/config"
	"allowgate/internal/platform/logger"
	"allowgate/internal/platform/postgres"
	"allowgate/migrations"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx := context.Background()
	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	stmts, err := migrations.Statements()
	if err != nil {
		log.Error("load migrations", "error", err)
		os.Exit(1)
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			log.Error("apply migration", "error", err)
			os.Exit(1)
		}
	}

	log.Info("migrations applied", "count", len(stmts))
}
