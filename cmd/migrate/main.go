// Command migrate prepares the configured store backend: it creates the
// sqlite database file with its schema, or the BigQuery dataset and tables.
// The in-memory backend needs no preparation.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/raizfin/finance-amendments/internal/config"
	bqstore "github.com/raizfin/finance-amendments/internal/store/bigquery"
	"github.com/raizfin/finance-amendments/internal/store/sqlite"
)

var (
	configPath = flag.String("config", "", "Path to YAML config (or set AMEND_CONFIG)")
	backend    = flag.String("backend", "", "Override the configured store backend")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *backend != "" {
		cfg.StoreBackend = *backend
	}

	ctx := context.Background()

	switch cfg.StoreBackend {
	case config.BackendMemory:
		log.Println("Memory backend needs no migration")

	case config.BackendSQLite:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("Failed to open sqlite database: %v", err)
		}
		defer db.Close()
		log.Printf("SQLite schema applied at %s", cfg.SQLitePath)

	case config.BackendBigQuery:
		if cfg.BigQuery.Project == "" {
			log.Fatal("Error: bigquery.project is required (set BIGQUERY_PROJECT)")
		}
		store, err := bqstore.NewStore(ctx, cfg.BigQuery.Project, cfg.BigQuery.Dataset)
		if err != nil {
			log.Fatalf("Failed to create BigQuery client: %v", err)
		}
		defer store.Close()

		if err := store.EnsureTables(ctx); err != nil {
			log.Fatalf("Failed to create BigQuery tables: %v", err)
		}
		log.Printf("BigQuery tables ready in %s.%s", cfg.BigQuery.Project, cfg.BigQuery.Dataset)

	default:
		log.Fatal(fmt.Errorf("unknown store backend %q", cfg.StoreBackend))
	}
}
