package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/raizfin/finance-amendments/internal/amendments"
	"github.com/raizfin/finance-amendments/internal/api/handlers"
	"github.com/raizfin/finance-amendments/internal/api/middleware"
	"github.com/raizfin/finance-amendments/internal/auth"
	"github.com/raizfin/finance-amendments/internal/config"
	"github.com/raizfin/finance-amendments/internal/logger"
	"github.com/raizfin/finance-amendments/internal/store"
	bqstore "github.com/raizfin/finance-amendments/internal/store/bigquery"
	"github.com/raizfin/finance-amendments/internal/store/inmemory"
	"github.com/raizfin/finance-amendments/internal/store/sqlite"
)

func main() {
	// Initialize logger
	log := logger.New()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if len(cfg.AdminEmails) == 0 {
		log.Warn().Msg("No admin emails configured - every approval will be denied")
	}

	ctx := context.Background()

	// Initialize stores
	var (
		records store.RecordStore
		changes store.ChangeStore
	)
	switch cfg.StoreBackend {
	case config.BackendMemory:
		records = inmemory.NewRecordStore()
		changes = inmemory.NewChangeStore()
	case config.BackendSQLite:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.SQLitePath).Msg("Failed to open sqlite store")
		}
		defer db.Close()
		records, changes = db, db
	case config.BackendBigQuery:
		bq, err := bqstore.NewStore(ctx, cfg.BigQuery.Project, cfg.BigQuery.Dataset)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create bigquery store")
		}
		defer bq.Close()
		records, changes = bq, bq
	}

	log.Info().
		Str("backend", cfg.StoreBackend).
		Int("admins", len(cfg.AdminEmails)).
		Msg("Stores initialized")

	// Initialize workflow
	gate := auth.NewStaticGate(cfg.AdminEmails)
	registry := amendments.NewRegistry(records, changes, log, cfg.StoreTimeout)
	engine := amendments.NewEngine(gate, records, changes, log, cfg.StoreTimeout)

	// Initialize handlers
	changesHandler := handlers.NewChangesHandler(records, changes, registry, engine, log)
	transactionsHandler := handlers.NewTransactionsHandler(records, log)

	// Create router
	mux := http.NewServeMux()

	// Change request endpoints
	mux.HandleFunc("/api/changes", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			changesHandler.ListChanges(w, r)
		case http.MethodPost:
			changesHandler.SubmitChange(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/changes/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}

		// Extract change ID and action from path
		rest := strings.TrimPrefix(r.URL.Path, "/api/changes/")
		changeID, action, ok := strings.Cut(rest, "/")
		if !ok || changeID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Change ID and action are required")
			return
		}

		switch action {
		case "approve":
			changesHandler.ApproveChange(w, r, changeID)
		case "reject":
			changesHandler.RejectChange(w, r, changeID)
		default:
			middleware.WriteError(w, http.StatusNotFound, "Unknown action")
		}
	})

	// Transactions endpoints
	mux.HandleFunc("/api/transactions", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			transactionsHandler.ListTransactions(w, r)
		case http.MethodPost:
			transactionsHandler.CreateTransaction(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Health check endpoint
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(
					middleware.Actor(mux),
				),
			),
		),
	)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
