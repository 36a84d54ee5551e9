package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/liamcoop/rulesets/internal/broadcast"
	"github.com/liamcoop/rulesets/internal/config"
	"github.com/liamcoop/rulesets/internal/db"
	"github.com/liamcoop/rulesets/internal/logger"
	"github.com/liamcoop/rulesets/internal/metrics"
	"github.com/liamcoop/rulesets/ruleservice"
	"github.com/liamcoop/rulesets/rules"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "0.0.0.0", "HTTP listen host")
	serveCmd.Flags().Int("port", 8080, "HTTP listen port")
	serveCmd.Flags().String("store", config.StoreMemory, "ruleset store (memory, sql, dir)")
	serveCmd.Flags().String("db-url", "", "database connection URL (sqlite://path or postgres://...)")
	serveCmd.Flags().String("rules-dir", "", "directory of ruleset files for the dir store")
}

func runServe(cmd *cobra.Command, args []string) error {
	v := config.New()
	bindings := map[string]string{
		"server.host":  "host",
		"server.port":  "port",
		"store.driver": "store",
		"store.url":    "db-url",
		"store.dir":    "rules-dir",
	}
	for key, flag := range bindings {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("failed to bind --%s: %w", flag, err)
		}
	}

	cfg, err := config.Load(v, configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	evaluator := rules.NewEvaluator(rules.WithMaxDepth(cfg.Evaluator.MaxDepth))
	validate := func(rs *rules.Ruleset) error {
		return ruleservice.ValidateRuleset(rs, evaluator.MaxDepth())
	}

	store, ping, closeStore, err := openStore(ctx, cfg.Store, validate)
	if err != nil {
		return err
	}
	defer closeStore()

	hub := broadcast.NewHub(cfg.Broadcast.Buffer)
	go hub.Run(ctx)

	m := metrics.New(cfg.Metrics.Namespace)
	manager := ruleservice.NewManager(store, evaluator,
		ruleservice.WithPublisher(hub),
		ruleservice.WithRecorder(m),
	)

	server := NewServer(manager, hub, m, ServerOptions{
		StoreName:      cfg.Store.Driver,
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		Ping:           ping,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "addr", httpServer.Addr, "store", cfg.Store.Driver)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}
	if err := logger.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "logger shutdown: %v\n", err)
	}

	logger.Info("Server stopped")
	return nil
}

// openStore builds the configured RulesetStore. Persistent stores are fronted
// by a read-through cache. validate gates rulesets loaded from a directory.
func openStore(ctx context.Context, cfg config.StoreConfig, validate func(*rules.Ruleset) error) (rules.RulesetStore, func(context.Context) error, func(), error) {
	noop := func() {}

	switch cfg.Driver {
	case config.StoreSQL:
		database, err := db.Open(cfg.URL)
		if err != nil {
			return nil, nil, noop, err
		}
		if err := db.Migrate(database); err != nil {
			database.Close()
			return nil, nil, noop, err
		}
		queries, err := db.LoadQueries(database)
		if err != nil {
			database.Close()
			return nil, nil, noop, fmt.Errorf("failed to load queries: %w", err)
		}

		cache := rules.NewInMemoryRulesetCache(rules.CacheConfig{TTL: cfg.CacheTTL})
		store := rules.NewCachedRulesetStore(rules.NewSQLRulesetStore(queries), cache)
		closeDB := func() {
			if err := database.Close(); err != nil {
				logger.Warn("Failed to close database", "error", err)
			}
		}
		return store, database.PingContext, closeDB, nil

	case config.StoreDir:
		dirStore, err := rules.NewDirRulesetStore(cfg.Dir, rules.WithValidator(validate))
		if err != nil {
			return nil, nil, noop, err
		}
		cache := rules.NewInMemoryRulesetCache(rules.CacheConfig{TTL: cfg.CacheTTL})
		go func() {
			if err := dirStore.Watch(ctx, cache.Clear); err != nil {
				logger.Error("Ruleset watcher stopped", "error", err)
			}
		}()
		return rules.NewCachedRulesetStore(dirStore, cache), nil, noop, nil

	default:
		return rules.NewInMemoryRulesetStore(), nil, noop, nil
	}
}
