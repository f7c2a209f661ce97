package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/raizfin/finance-amendments/internal/amendments"
	"github.com/raizfin/finance-amendments/internal/auth"
	"github.com/raizfin/finance-amendments/internal/config"
	"github.com/raizfin/finance-amendments/internal/domain"
	"github.com/raizfin/finance-amendments/internal/logger"
	"github.com/raizfin/finance-amendments/internal/store"
	bqstore "github.com/raizfin/finance-amendments/internal/store/bigquery"
	"github.com/raizfin/finance-amendments/internal/store/inmemory"
	"github.com/raizfin/finance-amendments/internal/store/sqlite"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "list":
		runList(log)
	case "inspect":
		runInspect(log)
	case "approve":
		runResolve(log, "approve")
	case "reject":
		runResolve(log, "reject")
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Amendments CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  list      List change requests")
	fmt.Println("  inspect   Inspect a change request and its transaction")
	fmt.Println("  approve   Approve a pending change request")
	fmt.Println("  reject    Reject a pending change request")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// openStores opens the configured backend. Callers must invoke the returned
// closer when done.
func openStores(ctx context.Context, log zerolog.Logger) (store.RecordStore, store.ChangeStore, *config.Config, func()) {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	switch cfg.StoreBackend {
	case config.BackendMemory:
		return inmemory.NewRecordStore(), inmemory.NewChangeStore(), cfg, func() {}
	case config.BackendSQLite:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.SQLitePath).Msg("Failed to open sqlite store")
		}
		return db, db, cfg, func() { db.Close() }
	case config.BackendBigQuery:
		bq, err := bqstore.NewStore(ctx, cfg.BigQuery.Project, cfg.BigQuery.Dataset)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create bigquery store")
		}
		return bq, bq, cfg, func() { bq.Close() }
	}
	log.Fatal().Str("backend", cfg.StoreBackend).Msg("Unknown store backend")
	return nil, nil, nil, nil
}

func runList(log zerolog.Logger) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	status := fs.String("status", "", "Filter by change status (Pendente, Aplicado, Reprovado)")
	fs.Parse(os.Args[2:])

	ctx := context.Background()
	_, changes, _, closer := openStores(ctx, log)
	defer closer()

	list, err := changes.ListChanges(ctx, store.ChangeFilter{Status: domain.ChangeStatus(*status)})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list change requests")
	}

	fmt.Printf("=== Change Requests (%d) ===\n", len(list))
	for _, c := range list {
		fmt.Printf("\n%s  [%s/%s]\n", c.ID, c.Type, c.Status)
		fmt.Printf("   Transaction: %s (%s)\n", c.TransactionID, c.OriginalSnapshot.Description)
		fmt.Printf("   Requested:   %s by %s\n", c.RequestedAt.Format("2006-01-02 15:04"), c.RequestedBy)
		if c.ApprovedBy != nil {
			fmt.Printf("   Resolved by: %s\n", *c.ApprovedBy)
		}
	}
	fmt.Println()
}

func runInspect(log zerolog.Logger) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	changeID := fs.String("change-id", "", "Change request ID to inspect")
	fs.Parse(os.Args[2:])

	if *changeID == "" {
		log.Fatal().Msg("Error: --change-id is required")
	}

	ctx := context.Background()
	records, changes, _, closer := openStores(ctx, log)
	defer closer()

	c, err := changes.GetChange(ctx, *changeID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load change request")
	}

	fmt.Println("\n=== Change Request ===")
	fmt.Printf("ID:            %s\n", c.ID)
	fmt.Printf("Type:          %s\n", c.Type)
	fmt.Printf("Status:        %s\n", c.Status)
	fmt.Printf("Justification: %s\n", c.Justification)
	fmt.Printf("Requested by:  %s at %s\n", c.RequestedBy, c.RequestedAt.Format("2006-01-02 15:04"))
	if c.ApprovedBy != nil && c.ApprovedAt != nil {
		fmt.Printf("Resolved by:   %s at %s\n", *c.ApprovedBy, c.ApprovedAt.Format("2006-01-02 15:04"))
	}

	fmt.Println("\n=== Snapshot at Request Time ===")
	printTransaction(&c.OriginalSnapshot)

	tx, err := records.GetTransaction(ctx, c.TransactionID)
	if err != nil {
		fmt.Printf("\nLive transaction: unavailable (%v)\n", err)
		return
	}
	fmt.Println("\n=== Live Transaction ===")
	printTransaction(tx)
}

func printTransaction(tx *domain.Transaction) {
	fmt.Printf("ID:          %s\n", tx.ID)
	fmt.Printf("Description: %s\n", tx.Description)
	fmt.Printf("Amount:      %s\n", tx.Amount.StringFixed(2))
	fmt.Printf("Month:       %s\n", tx.Date.Format("2006-01"))
	fmt.Printf("Category:    %s (%s)\n", tx.Category, tx.Type)
	fmt.Printf("Branch:      %s", tx.Branch)
	if tx.Brand != "" {
		fmt.Printf(" / %s", tx.Brand)
	}
	fmt.Println()
	fmt.Printf("Status:      %s\n", tx.Status)
}

func runResolve(log zerolog.Logger, action string) {
	fs := flag.NewFlagSet(action, flag.ExitOnError)
	changeID := fs.String("change-id", "", "Change request ID")
	email := fs.String("actor", "", "Acting admin email")
	fs.Parse(os.Args[2:])

	if *changeID == "" || *email == "" {
		log.Fatal().Msgf("Usage: cli %s -change-id ID -actor EMAIL", action)
	}

	ctx := context.Background()
	records, changes, cfg, closer := openStores(ctx, log)
	defer closer()

	gate := auth.NewStaticGate(cfg.AdminEmails)
	engine := amendments.NewEngine(gate, records, changes, log, cfg.StoreTimeout)
	actor := auth.Actor{Email: *email, Role: auth.RoleAdmin}

	var err error
	if action == "approve" {
		err = engine.Approve(ctx, *changeID, actor)
	} else {
		err = engine.Reject(ctx, *changeID, actor)
	}
	if err != nil {
		log.Fatal().Err(err).Str("change_id", *changeID).Msgf("Failed to %s change request", action)
	}

	if action == "approve" {
		fmt.Printf("Change %s approved.\n", *changeID)
	} else {
		fmt.Printf("Change %s rejected.\n", *changeID)
	}
}
