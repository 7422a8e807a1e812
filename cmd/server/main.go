package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/liamcoop/sqlgen/internal/config"
	"github.com/liamcoop/sqlgen/internal/logger"
	"github.com/liamcoop/sqlgen/migrations"
	"github.com/liamcoop/sqlgen/rules"
	"github.com/liamcoop/sqlgen/workspace"
	_ "github.com/lib/pq"
)

// ownerHeader carries the id of the user whose data a request touches
const ownerHeader = "X-User-ID"

type Server struct {
	db      *sql.DB
	cfg     *config.Config
	manager *workspace.Manager
	router  *chi.Mux
}

// NewServer wires the workspace manager to PostgreSQL when db is non-nil
// and to in-memory stores otherwise
func NewServer(cfg *config.Config, db *sql.DB) *Server {
	factory := workspace.MemoryStores()
	if db != nil {
		factory = workspace.PostgresStores(db)
	}

	s := &Server{
		db:      db,
		cfg:     cfg,
		manager: workspace.NewManager(factory, rules.CacheConfig{TTL: cfg.CacheTTL()}),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.cfg.Timeout()))

	r.Get("/api/v1/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.withWorkspace)

		r.Route("/api/v1/datasets", func(r chi.Router) {
			r.Post("/", s.handleUploadDataset)
			r.Get("/{id}", s.handleGetDataset)
			r.Get("/{id}/preview", s.handlePreviewDataset)
		})

		r.Route("/api/v1/rules", func(r chi.Router) {
			r.Post("/", s.handleCreateRule)
			r.Get("/", s.handleListRules)
			r.Get("/categories", s.handleRuleCategories)
			r.Get("/{id}", s.handleGetRule)
			r.Put("/{id}", s.handleUpdateRule)
			r.Delete("/{id}", s.handleDeleteRule)
			r.Post("/{id}/copy", s.handleCopyRule)
			r.Post("/{id}/enable", s.handleSetRuleEnabled(true))
			r.Post("/{id}/disable", s.handleSetRuleEnabled(false))
		})

		r.Route("/api/v1/templates", func(r chi.Router) {
			r.Post("/", s.handleCreateTemplate)
			r.Get("/", s.handleListTemplates)
			r.Get("/categories", s.handleTemplateCategories)
			r.Get("/export", s.handleExportTemplates)
			r.Post("/import", s.handleImportTemplates)
			r.Get("/{id}", s.handleGetTemplate)
			r.Put("/{id}", s.handleUpdateTemplate)
			r.Delete("/{id}", s.handleDeleteTemplate)
			r.Post("/{id}/copy", s.handleCopyTemplate)
			r.Post("/{id}/enable", s.handleSetTemplateEnabled(true))
			r.Post("/{id}/disable", s.handleSetTemplateEnabled(false))
		})

		r.Post("/api/v1/generate", s.handleGenerate)

		r.Get("/api/v1/history", s.handleListHistory)
		r.Get("/api/v1/history/{id}", s.handleHistoryDetail)
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	store := "memory"
	if s.db != nil {
		store = "postgres"
		if err := s.db.PingContext(r.Context()); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":           "healthy",
		"store":            store,
		"workspacesLoaded": len(s.manager.ListOwners()),
		"counters":         logger.Snapshot(),
	})
}

func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, nil
	}

	if cfg.AutoMigrate {
		logger.Info("Running database migrations...")
		if err := migrations.Up(cfg.DatabaseURL); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func main() {
	configPath := flag.String("config", "", "Path to an HCL config file")
	writeConfig := flag.String("write-config", "", "Write the effective configuration to this path and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Failed to load config", "error", err)
	}
	if err := logger.Configure(cfg.LogLevel, cfg.ErrorSampleRate); err != nil {
		logger.Fatal("Failed to configure logger", "error", err)
	}

	if *writeConfig != "" {
		if err := config.Export(*writeConfig, cfg); err != nil {
			logger.Fatal("Failed to write config", "error", err)
		}
		logger.Info("Config written", "path", *writeConfig)
		return
	}

	db, err := openDatabase(context.Background(), cfg)
	if err != nil {
		logger.Fatal("Failed to set up database", "error", err)
	}
	if db != nil {
		defer db.Close()
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory stores")
	}

	server := NewServer(cfg, db)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Timeout() + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed to start", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Server stopped")
}
