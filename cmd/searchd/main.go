// Command searchd runs the unified personal-data search service: the
// capability registry, routing and fusion core, the HTTP/WebSocket API, and
// an MCP tool surface for external agents.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"unisearch/internal/backend"
	"unisearch/internal/capability"
	"unisearch/internal/dispatch"
	"unisearch/internal/entity"
	"unisearch/internal/intent"
	"unisearch/internal/lmclient"
	"unisearch/internal/mcpsrv"
	"unisearch/internal/model"
	"unisearch/internal/orchestrator"
	"unisearch/internal/router"
	"unisearch/internal/server"
	"unisearch/internal/storage"
	"unisearch/internal/watcher"

	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: .env.unisearch in current dir)")
	flag.Parse()

	if *configPath != "" {
		if err := godotenv.Overload(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config from %s: %v\n", *configPath, err)
			os.Exit(1)
		}
	} else if err := godotenv.Load(".env.unisearch"); err == nil {
		fmt.Println("loaded configuration from ./.env.unisearch")
	}

	logger, err := buildLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Fatal("searchd failed", zap.Error(err))
	}
}

func buildLogger() (*zap.Logger, error) {
	if os.Getenv("LOG_LEVEL") == "debug" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(ctx context.Context, logger *zap.Logger) error {
	registry := capability.New(logger)

	// Mongo-backed capability persistence is optional; without it the
	// registry starts empty and is filled by the watcher and the admin API.
	var capStore storage.CapabilityStoreInterface
	if mongoURI := os.Getenv("MONGODB_URI"); mongoURI != "" {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(mongoURI))
		if err != nil {
			return fmt.Errorf("mongo connect: %w", err)
		}
		defer client.Disconnect(context.Background())

		dbName := os.Getenv("MONGODB_DATABASE")
		if dbName == "" {
			dbName = "unisearch"
		}
		store, err := storage.NewCapabilityStore(client.Database(dbName), logger)
		if err != nil {
			return fmt.Errorf("capability store: %w", err)
		}
		capStore = store

		persisted, err := store.LoadAll(ctx)
		if err != nil {
			return fmt.Errorf("loading persisted capabilities: %w", err)
		}
		for _, c := range persisted {
			if err := registry.Register(c); err != nil {
				logger.Warn("persisted capability rejected",
					zap.String("source", c.SourceName), zap.Error(err))
			}
		}
		logger.Info("persisted capabilities loaded", zap.Int("count", len(persisted)))
	}

	// Capability definition files, hot-reloaded between searches.
	if dir := os.Getenv("CAPABILITY_DIR"); dir != "" {
		w, err := watcher.New(dir, registry, logger)
		if err != nil {
			return err
		}
		w.LoadExisting()
		go w.Run(ctx)
	}

	dispatcher := dispatch.New(logger)
	if err := connectMCPBackends(ctx, dispatcher, registry, logger); err != nil {
		return err
	}

	backends := buildDirectBackends(registry, logger)

	var completer orchestrator.Completer
	if lmConfig, err := lmclient.LoadConfig(""); err != nil {
		logger.Warn("LM fallback disabled", zap.Error(err))
	} else if lmConfig == nil {
		logger.Info("LM fallback disabled: AI_PROVIDER not set")
	} else if c, err := lmclient.NewCompleter(lmConfig); err != nil {
		logger.Warn("LM fallback disabled", zap.Error(err))
	} else {
		completer = c
	}

	timezone := loadTimezone(logger)

	rt := router.New(registry, logger)
	analyzer := intent.New(rt, logger)
	entities := entity.New(completer, logger)
	orch := orchestrator.New(registry, rt, analyzer, dispatcher, backends, entities, completer, timezone, logger)

	toolHandler := mcpsrv.NewSearchToolHandler(orch, registry, logger)
	mcpServer := mcpsrv.NewServer(toolHandler)

	httpServer := server.NewHTTPServer(server.Config{
		Port:           os.Getenv("PORT"),
		AllowedOrigins: splitNonEmpty(os.Getenv("CORS_ORIGINS")),
	}, orch, registry, capStore, mcpServer, logger)

	return httpServer.Run(ctx)
}

// connectMCPBackends dials every endpoint in MCP_BACKENDS (comma-separated
// URLs), discovers each backend's capabilities, and binds its sources to the
// dispatcher. A backend that fails to connect is logged and skipped so the
// rest of the service still comes up.
func connectMCPBackends(ctx context.Context, dispatcher *dispatch.Dispatcher, registry *capability.Registry, logger *zap.Logger) error {
	for _, endpoint := range splitNonEmpty(os.Getenv("MCP_BACKENDS")) {
		conn, err := dispatch.Connect(ctx, endpoint)
		if err != nil {
			logger.Warn("MCP backend unreachable", zap.String("endpoint", endpoint), zap.Error(err))
			continue
		}
		callFn := conn.CallFunc()

		caps, err := dispatcher.FetchCapabilities(ctx, callFn)
		if err != nil {
			logger.Warn("MCP capability discovery failed", zap.String("endpoint", endpoint), zap.Error(err))
			conn.Close()
			continue
		}

		names := make([]string, 0, len(caps))
		for _, c := range caps {
			if err := registry.Register(c); err != nil {
				logger.Warn("discovered capability rejected",
					zap.String("source", c.SourceName), zap.Error(err))
				continue
			}
			names = append(names, c.SourceName)
			dispatcher.RegisterMCP(endpoint, []string{c.SourceName}, callFn, c.RequestRoutingArgs)
		}
		logger.Info("MCP backend connected",
			zap.String("endpoint", endpoint),
			zap.Strings("sources", names))
	}
	return nil
}

// buildDirectBackends wires the in-process sources and registers their
// capabilities alongside the discovered remote ones.
func buildDirectBackends(registry *capability.Registry, logger *zap.Logger) *backend.Registry {
	var list []backend.Backend

	if os.Getenv("ENABLE_WEB_SEARCH") == "true" {
		web := backend.NewWebBackend(backend.WebBackendConfig{}, logger)
		if err := registry.Register(model.Capability{
			SourceName:       web.SourceName(),
			SourceClass:      model.SourceClassWeb,
			SupportedMethods: web.SupportedMethods(),
			SupportedModes:   []model.Mode{model.ModeSearch},
			DisplayLabel:     "Web Search",
			AliasHints:       []string{"web", "internet", "online"},
			LatencyTier:      model.TierHigh,
			QualityTier:      model.TierMedium,
			CostTier:         model.TierLow,
		}); err != nil {
			logger.Warn("web search capability rejected", zap.Error(err))
		} else {
			list = append(list, web)
		}
	}

	return backend.NewRegistry(list...)
}

func loadTimezone(logger *zap.Logger) *time.Location {
	name := os.Getenv("SEARCH_TIMEZONE")
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		logger.Warn("invalid SEARCH_TIMEZONE, using UTC", zap.String("timezone", name), zap.Error(err))
		return time.UTC
	}
	return loc
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
