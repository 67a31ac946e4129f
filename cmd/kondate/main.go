// Package main is the Kondate CLI entry point.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kondate/internal/config"
	"github.com/hyperjump/kondate/internal/embedding"
	"github.com/hyperjump/kondate/internal/extract"
	"github.com/hyperjump/kondate/internal/llm"
	"github.com/hyperjump/kondate/internal/models"
	"github.com/hyperjump/kondate/internal/rag"
	"github.com/hyperjump/kondate/internal/retrieval"
	"github.com/hyperjump/kondate/internal/server"
	"github.com/hyperjump/kondate/internal/storage"
	"github.com/hyperjump/kondate/internal/store"
	"github.com/hyperjump/kondate/internal/watcher"
	"github.com/hyperjump/kondate/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kondate/config.yaml"

// loadConfig loads config from path. When path is the default, a config.yaml
// in the current directory takes precedence so development runs pick up the
// project's config.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	configPath := flag.String("config", defaultConfigPath, "config file path")
	query := flag.String("query", "", "answer a single question and exit")
	serve := flag.Bool("serve", false, "run the HTTP API server")
	debug := flag.Bool("debug", false, "enable debug logging")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("kondate version %s\n", version)
		return
	}

	cfg, resolvedPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedPath),
		zap.Bool("debug", debugMode),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	system, err := initializeSystem(ctx, cfg, logger)
	if err != nil {
		logger.Error("initialization failed", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer system.Close()

	if err := system.Bootstrap(ctx); err != nil {
		logger.Error("bootstrap failed", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Failed to build knowledge base: %v\n", err)
		os.Exit(1)
	}

	switch {
	case *query != "":
		runQuery(ctx, system, *query)
	case *serve:
		runServer(ctx, system, cfg, logger)
	default:
		runInteractive(ctx, system)
	}
}

// initializeSystem builds the component graph from config. Providers other
// than "openai" fall back to the deterministic offline implementations.
func initializeSystem(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*rag.System, error) {
	var embedder embedding.Embedder
	switch cfg.Embedding.Provider {
	case "openai":
		key := os.Getenv(cfg.Embedding.APIKeyEnv)
		e, err := embedding.NewOpenAIEmbedder(key, cfg.Embedding.Model, cfg.Embedding.Dimensions,
			embedding.WithCache(cfg.Embedding.CacheSize),
			embedding.WithBatchSize(cfg.Embedding.BatchSize),
			embedding.WithMaxRetries(cfg.Embedding.MaxRetries),
		)
		if err != nil {
			return nil, fmt.Errorf("embedding provider: %w", err)
		}
		embedder = e
	default:
		logger.Warn("using mock embedder", zap.String("provider", cfg.Embedding.Provider))
		embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	}

	var client llm.Client
	switch cfg.LLM.Provider {
	case "openai":
		key := os.Getenv(cfg.LLM.APIKeyEnv)
		c, err := llm.NewOpenAIClient(key, cfg.LLM.Model, cfg.LLM.Temperature, cfg.LLM.MaxTokens)
		if err != nil {
			return nil, fmt.Errorf("llm provider: %w", err)
		}
		client = c
	default:
		logger.Warn("using mock llm client", zap.String("provider", cfg.LLM.Provider))
		client = llm.NewMockClient()
	}

	catalog, err := storage.NewSQLiteCatalog(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}

	cs := store.NewChunkStore(cfg.Data.Path, cfg.Data.Extensions, cfg.Search.HeadingLevels,
		store.WithLogger(logger),
		store.WithExtractor(extract.NewExtractor()),
	)
	index := retrieval.NewDualIndex(embedder, &cfg.Search, retrieval.WithLogger(logger))

	opts := []rag.Option{rag.WithLogger(logger)}
	if cfg.Watch.Enabled {
		w := watcher.New(cfg.Data.Path, cfg.Data.Extensions, watcher.WithLogger(logger))
		if err := w.Start(ctx); err != nil {
			logger.Warn("staleness watcher disabled", zap.Error(err))
		} else {
			opts = append(opts, rag.WithWatcher(w))
		}
	}

	return rag.NewSystem(cs, index, catalog, client, cfg, opts...), nil
}

func runQuery(ctx context.Context, system *rag.System, question string) {
	answer, err := system.Ask(ctx, question)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to answer: %v\n", err)
		os.Exit(1)
	}
	printAnswer(answer)
}

func runInteractive(ctx context.Context, system *rag.System) {
	fmt.Println("Kondate recipe assistant. Ask a cooking question, or \"exit\" to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		if system.Stale() {
			fmt.Print("\n[sources changed, restart to re-index]\nYour question: ")
		} else {
			fmt.Print("\nYour question: ")
		}
		if !scanner.Scan() {
			return
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if question == "exit" || question == "quit" {
			return
		}
		answer, err := system.Ask(ctx, question)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to answer: %v\n", err)
			continue
		}
		printAnswer(answer)
	}
}

func runServer(ctx context.Context, system *rag.System, cfg *config.Config, logger *zap.Logger) {
	srv := server.NewServer(system, &cfg.Server, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server stopped", zap.Error(err))
			os.Exit(1)
		}
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			logger.Error("shutdown failed", zap.Error(err))
		}
	}
}

func printAnswer(answer *models.Answer) {
	fmt.Println(answer.Text)
	if len(answer.Sources) > 0 {
		names := make([]string, len(answer.Sources))
		for i, src := range answer.Sources {
			names[i] = src.Metadata.DishName
		}
		fmt.Printf("\nSources: %s\n", strings.Join(names, ", "))
	}
}
