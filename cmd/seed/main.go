// Command seed populates the allowlist with random wallet addresses for
// local development and load testing. Re-running is a no-op once the table
// already holds the requested count.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"allowgate/internal/gate/models"
	"allowgate/internal/gate/store/allowlist"
	"allowgate/internal/platform/config"
	"allowgate/internal/platform/logger"
	"allowgate/internal/platform/postgres"
)

func main() {
	count := flag.Int("count", 500, "number of dummy wallets to ensure in the allowlist")
	flag.Parse()

	cfg := config.FromEnv()
	log := logger.New()

	ctx := context.Background()
	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	store := allowlist.NewPostgres(db)

	existing, err := store.Count(ctx)
	if err != nil {
		log.Error("count allowlist entries", "error", err)
		os.Exit(1)
	}
	if existing >= int64(*count) {
		log.Info("allowlist already seeded", "existing", existing, "requested", *count)
		return
	}

	missing := int64(*count) - existing
	log.Info("seeding allowlist", "existing", existing, "inserting", missing)

	for i := int64(0); i < missing; i++ {
		address := randomWallet()
		if _, err := store.InsertAddress(ctx, address); err != nil {
			log.Error("insert dummy wallet", "address", address.String(), "error", err)
			os.Exit(1)
		}
	}

	log.Info("seeding complete", "total", existing+missing)
}

// randomWallet fabricates a hex-looking wallet address from a random UUID.
func randomWallet() models.WalletAddress {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return models.WalletAddress(fmt.Sprintf("0x%s", hex))
}
