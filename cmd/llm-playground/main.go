package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jyasuu/llm-playground/internal/config"
	"github.com/jyasuu/llm-playground/internal/llm"
	"github.com/jyasuu/llm-playground/internal/logger"
	"github.com/jyasuu/llm-playground/internal/mcp"
	"github.com/jyasuu/llm-playground/internal/notify"
	"github.com/jyasuu/llm-playground/internal/orchestrator"
	"github.com/jyasuu/llm-playground/internal/session"
	"github.com/jyasuu/llm-playground/internal/tools"
	"github.com/jyasuu/llm-playground/internal/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "config.json", "path to the configuration file")
		addr       = flag.String("addr", "", "HTTP listen address (overrides config)")
		dbPath     = flag.String("db", "", "SQLite database path (overrides config)")
		logFile    = flag.String("log-file", "", "write logs to this file instead of stderr")
		logLevel   = flag.String("log-level", "", "log level: debug, info, warn, error (overrides config)")
		watch      = flag.Bool("watch", true, "reload the configuration file on change")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	if *dbPath != "" {
		cfg.DatabasePath = *dbPath
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	if err := logger.Init(logger.ParseLevel(cfg.LogLevel), *logFile); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Global().Close()

	// Route slog-based logging from the provider SDKs into the same sink.
	slog.SetDefault(slog.New(logger.NewSlogHandler(logger.Global())))

	store, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	registry := tools.NewRegistry()
	for _, def := range cfg.ToolDefinitions() {
		registry.Register(def)
	}

	manager := mcp.NewManager(cfg.MCPServers)
	refreshDiscoveredTools(manager, registry)

	executor := tools.NewExecutor(registry, manager)

	client, err := buildClient(cfg)
	if err != nil {
		return err
	}

	broadcaster := notify.NewBroadcaster()
	notifier := notify.Multi{notify.LogNotifier{}, broadcaster}

	orch := orchestrator.New(store, registry, executor, client, settingsFromConfig(cfg), notifier)

	server := web.NewServer(cfg.ListenAddr, store, orch, registry, broadcaster)

	var stopWatch func()
	if *watch {
		stopWatch, err = config.Watch(*configPath, func(next *config.Config) {
			applyConfig(next, orch, registry, manager)
		})
		if err != nil {
			logger.Warn("config watcher unavailable: %v", err)
		}
	}
	if stopWatch != nil {
		defer stopWatch()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("received %s, shutting down", sig)
		return server.Stop()
	}
}

func buildStore(cfg *config.Config) (session.Store, error) {
	if cfg.DatabasePath == "" {
		logger.Info("using in-memory session store")
		return session.NewMemoryStore(), nil
	}

	store, err := session.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}
	logger.Info("using session database at %s", cfg.DatabasePath)
	return store, nil
}

func buildClient(cfg *config.Config) (llm.Client, error) {
	providerCfg, err := cfg.CurrentProviderConfig()
	if err != nil {
		return nil, err
	}

	provider, err := llm.ParseProvider(cfg.CurrentProvider)
	if err != nil {
		return nil, err
	}

	client, err := llm.NewClient(provider, providerCfg.APIKey, providerCfg.BaseURL, providerCfg.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s client: %w", cfg.CurrentProvider, err)
	}

	logger.Info("provider %s ready with model %s", cfg.CurrentProvider, client.GetModelName())
	return client, nil
}

func settingsFromConfig(cfg *config.Config) orchestrator.Settings {
	return orchestrator.Settings{
		Temperature:    cfg.SharedSettings.Temperature,
		MaxTokens:      cfg.SharedSettings.MaxTokens,
		SystemPrompt:   cfg.SystemPrompt,
		RetryBaseDelay: time.Duration(cfg.SharedSettings.RetryDelayMS) * time.Millisecond,
	}
}

// applyConfig pushes a reloaded configuration into the running components.
// Provider changes take effect on the next turn; in-flight turns finish with
// the client they started with.
func applyConfig(cfg *config.Config, orch *orchestrator.Orchestrator, registry *tools.Registry, manager *mcp.Manager) {
	orch.SetSettings(settingsFromConfig(cfg))

	if client, err := buildClient(cfg); err != nil {
		logger.Warn("keeping previous provider, reload failed: %v", err)
	} else {
		orch.SetClient(client)
	}

	for _, def := range cfg.ToolDefinitions() {
		registry.Register(def)
	}

	manager.SetServers(cfg.MCPServers)
	if manager.ConfigChanged() {
		refreshDiscoveredTools(manager, registry)
	}
}

func refreshDiscoveredTools(manager *mcp.Manager, registry *tools.Registry) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	defs := manager.Refresh(ctx)
	registry.ReplaceKind(tools.KindDiscovered, defs)
	if len(defs) > 0 {
		logger.Info("registered %d discovered tools", len(defs))
	}
}
