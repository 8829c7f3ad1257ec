package main

import (
	"flag"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/motdiem/email-kanban/internal/account"
	"github.com/motdiem/email-kanban/internal/dispatch"
	"github.com/motdiem/email-kanban/internal/httpapi"
	"github.com/motdiem/email-kanban/internal/model"
	"github.com/motdiem/email-kanban/internal/oauth"
	"github.com/motdiem/email-kanban/internal/provider/registry"
	"github.com/motdiem/email-kanban/internal/store"
	"github.com/motdiem/email-kanban/internal/synccache"
	"github.com/motdiem/email-kanban/internal/token"
)

func main() {
	configPath := flag.String("config", model.DefaultConfigPath(), "path to the configuration file")
	listen := flag.String("listen", "", "listen address, overrides the configuration file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		logger.Error("loading configuration", "path", *configPath, "error", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	loc, err := cfg.Location()
	if err != nil {
		logger.Error("resolving timezone", "error", err)
		os.Exit(1)
	}

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error("creating data directory", "dir", dir, "error", err)
			os.Exit(1)
		}
	}
	db, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		logger.Error("opening database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	exchanger := oauth.New(cfg.OAuth)
	tokens, err := token.New(db, cfg.Secret, exchanger)
	if err != nil {
		logger.Error("initializing token store", "error", err)
		os.Exit(1)
	}

	factory := registry.New()
	cache := synccache.New(db, tokens, factory, synccache.Options{
		TTL:      cfg.CacheTTL(),
		Location: loc,
		Logger:   logger,
	})
	accounts := account.New(db, tokens, cache, logger)
	dispatcher := dispatch.New(db, tokens, factory, cache)

	server := httpapi.New(accounts, cache, dispatcher, tokens, exchanger, logger)

	logger.Info("listening", "addr", cfg.Listen)
	if err := http.ListenAndServe(cfg.Listen, server); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
