package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/odyssey-erp/cashbook/internal/app"
	"github.com/odyssey-erp/cashbook/internal/ledger"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.StorageBackend == app.StorageMemory {
		log.Fatalf("seed: STORAGE_BACKEND=memory has nothing to persist; use postgres or docstore")
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	storage, err := app.OpenLedgerStorage(ctx, cfg, app.NewDocstoreClient(cfg), logger)
	if err != nil {
		log.Fatalf("open storage: %v", err)
	}
	defer storage.Close()

	svc := ledger.NewService(ledger.Options{Repository: storage.Repository, Logger: logger})
	if err := svc.Load(ctx); err != nil {
		log.Fatalf("load ledger: %v", err)
	}

	fmt.Printf("→ Seeding demo cashbook into %s...\n", cfg.StorageBackend)
	seeded, err := svc.SeedDemo(ctx)
	if err != nil {
		log.Fatalf("seed demo: %v", err)
	}
	if !seeded {
		fmt.Println("✓ Ledger already has data, nothing to do")
		return
	}
	snap := svc.Snapshot()
	fmt.Printf("✓ Seeded %d accounts and %d transactions\n", len(snap.Accounts), len(snap.Transactions))
}
