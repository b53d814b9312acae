package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/nanaoosaki/health-companion/internal/coach"
	"github.com/nanaoosaki/health-companion/internal/companion"
	"github.com/nanaoosaki/health-companion/internal/config"
	"github.com/nanaoosaki/health-companion/internal/healthlog"
	"github.com/nanaoosaki/health-companion/internal/healthstore"
	"github.com/nanaoosaki/health-companion/internal/llm"
	"github.com/nanaoosaki/health-companion/internal/profile"
	"github.com/nanaoosaki/health-companion/internal/recall"
	"github.com/nanaoosaki/health-companion/internal/router"
	"github.com/nanaoosaki/health-companion/internal/session"
	"github.com/nanaoosaki/health-companion/internal/usage"
)

// profileUser keys the profile table. The companion serves one person.
const profileUser = "default"

// env is a loaded config plus the logger built from it.
type env struct {
	cfg      *config.Config
	path     string
	logger   *slog.Logger
	closeLog func() error
}

func (c *cli) environment() (*env, error) {
	cfg, path, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	// Validate has already accepted the level.
	level, _ := config.ParseLogLevel(cfg.LogLevel)
	logger, closeLog := config.SetupLogger(c.stderr, cfg.LogFile, level)

	if path != "" {
		logger.Debug("config loaded", "path", path)
	} else {
		logger.Debug("no config file found, using defaults")
	}
	return &env{cfg: cfg, path: path, logger: logger, closeLog: closeLog}, nil
}

func (e *env) close() {
	_ = e.closeLog()
}

func (e *env) openStore() (*healthstore.Store, error) {
	if err := os.MkdirAll(e.cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	store, err := healthstore.NewStore(e.cfg.DatabasePath(), e.logger)
	if err != nil {
		return nil, fmt.Errorf("open health store: %w", err)
	}
	return store, nil
}

// app is the fully wired companion.
type app struct {
	store     *healthstore.Store
	usage     *usage.Store
	router    *router.Router
	companion *companion.Companion
	sessions  *session.Manager
	client    llm.Client
}

func (c *cli) newApp(e *env) (*app, error) {
	cfg, logger := e.cfg, e.logger

	store, err := e.openStore()
	if err != nil {
		return nil, err
	}
	client, err := c.newClient(cfg, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	profiles, err := profile.NewStoreWithDB(store.DB())
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open profile store: %w", err)
	}

	usageStore, err := usage.NewStoreWithDB(store.DB())
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open usage store: %w", err)
	}

	rtr := router.NewRouter(logger, usage.Track(client, usageStore, usage.RoleRouter, logger),
		router.Config{Model: cfg.LLM.RouterModelName()})
	workflow := healthlog.NewWorkflow(logger, store,
		healthlog.NewExtractor(usage.Track(client, usageStore, usage.RoleExtractor, logger), cfg.LLM.Model, logger),
		healthlog.Config{
			CandidateWindow: cfg.Episodes.CandidateWindow(),
			LinkingWindow:   cfg.Episodes.LinkingWindow(),
			Model:           cfg.LLM.Model,
		})
	handlers := companion.Handlers{
		Recall:  recall.NewHandler(recall.NewService(store, logger)),
		Coach:   coach.NewHandler(usage.Track(client, usageStore, usage.RoleCoach, logger), cfg.LLM.Model, store, logger),
		Profile: profile.NewHandler(profiles, profileUser, logger),
	}
	sessions := session.NewManager(cfg.Sessions.Max, cfg.Sessions.TTL())

	return &app{
		store:     store,
		usage:     usageStore,
		router:    rtr,
		companion: companion.New(logger, sessions, rtr, workflow, handlers),
		sessions:  sessions,
		client:    client,
	}, nil
}

func (a *app) close() {
	a.store.Close()
}

// buildLLMClient creates the provider for llm.model and, when the router
// runs on a different provider, a second backend mapped to the router
// model. Unmapped models go to the main provider.
func buildLLMClient(cfg *config.Config, logger *slog.Logger) (llm.Client, error) {
	primary, err := llm.NewLangChainClient(llm.ProviderConfig{
		Provider:     cfg.LLM.Provider,
		BaseURL:      cfg.LLM.BaseURL,
		APIKey:       cfg.LLM.APIKey,
		DefaultModel: cfg.LLM.Model,
	}, logger)
	if err != nil {
		return nil, err
	}

	multi := llm.NewMultiClient(primary)
	multi.AddProvider(cfg.LLM.Provider, primary)

	if rp := cfg.LLM.RouterProvider; rp != "" && rp != cfg.LLM.Provider {
		routerClient, err := llm.NewLangChainClient(llm.ProviderConfig{
			Provider:     rp,
			APIKey:       cfg.LLM.APIKey,
			DefaultModel: cfg.LLM.RouterModelName(),
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("router provider: %w", err)
		}
		multi.AddProvider(rp, routerClient)
		multi.AddModel(cfg.LLM.RouterModelName(), rp)
	}

	logger.Debug("LLM client initialized", "provider", cfg.LLM.Provider, "model", cfg.LLM.Model,
		"router_model", cfg.LLM.RouterModelName())
	return multi, nil
}
