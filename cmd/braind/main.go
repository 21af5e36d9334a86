// braind ingests source files from GitHub, chunks and embeds them, stores
// chunks with vectors in Postgres/pgvector, and serves nearest-neighbor
// lookups over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/braind/internal/auth"
	"github.com/fyrsmithlabs/braind/internal/config"
	"github.com/fyrsmithlabs/braind/internal/embeddings"
	"github.com/fyrsmithlabs/braind/internal/githubtree"
	httpserver "github.com/fyrsmithlabs/braind/internal/http"
	"github.com/fyrsmithlabs/braind/internal/indexer"
	"github.com/fyrsmithlabs/braind/internal/logging"
	"github.com/fyrsmithlabs/braind/internal/retrieval"
	"github.com/fyrsmithlabs/braind/internal/vectorstore"
)

// version is set via ldflags at build time.
var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to config file (default ~/.config/braind/config.yaml)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion || (flag.NArg() > 0 && flag.Arg(0) == "version") {
		fmt.Println("braind", version)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintln(os.Stderr, "braind:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return err
	}

	level, err := logging.LevelFromString(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}
	logCfg := logging.NewDefaultConfig()
	logCfg.Level = level
	logCfg.Format = cfg.Logging.Format
	logger, err := logging.NewLogger(logCfg)
	if err != nil {
		return err
	}
	defer logging.Sync(logger) //nolint:errcheck

	logger.Info("starting braind",
		zap.String("version", version),
		zap.Int("dimension", cfg.Embeddings.Dimension),
		zap.String("model", cfg.Embeddings.Model))

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store, err := vectorstore.New(ctx, vectorstore.Config{
		DatabaseURL: cfg.Database.URL.Value(),
		Dimension:   cfg.Embeddings.Dimension,
	}, logger.Named("vectorstore"))
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}

	// Model load is deferred to the first embedding request so the server
	// comes up fast and survives a missing model cache.
	embCfg := cfg.Embeddings
	provider := embeddings.NewLazyProvider(embCfg.Dimension, func() (embeddings.Provider, error) {
		return embeddings.NewProvider(embeddings.ProviderConfig{
			Provider: embCfg.Provider,
			Model:    embCfg.Model,
			CacheDir: embCfg.CacheDir,
		})
	})
	defer provider.Close() //nolint:errcheck

	gateway, err := embeddings.NewGateway(provider, embCfg.Dimension, embCfg.Model,
		logger.Named("embeddings"), embeddings.NewMetrics(registry))
	if err != nil {
		return err
	}

	creds := auth.NewStaticStore(cfg.GitHub.Token)
	listerFactory := func(ctx context.Context, token config.Secret) (indexer.TreeLister, error) {
		return githubtree.NewClient(ctx, githubtree.Config{
			Token:        token,
			Timeout:      cfg.GitHub.Timeout.Duration(),
			MaxBlobBytes: cfg.Indexing.MaxBlobBytes,
		})
	}

	indexSvc, err := indexer.NewService(creds, listerFactory, gateway, store, indexer.Config{
		ChunkMaxChars:     cfg.Indexing.ChunkMaxChars,
		ChunkOverlapChars: cfg.Indexing.ChunkOverlapChars,
		SkipExtensions:    cfg.Indexing.SkipExtensionSet(),
	}, logger.Named("indexer"), indexer.NewMetrics(registry))
	if err != nil {
		return err
	}

	retrievalSvc, err := retrieval.NewService(store, gateway, cfg.Embeddings.Dimension, logger.Named("retrieval"))
	if err != nil {
		return err
	}

	server, err := httpserver.NewServer(httpserver.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ShutdownTimeout: cfg.Server.ShutdownTimeout.Duration(),
		Limits: httpserver.Limits{
			StreamDefault: cfg.Indexing.StreamDefaultLimit,
			StreamMax:     cfg.Indexing.StreamMaxLimit,
			BatchDefault:  cfg.Indexing.BatchDefaultLimit,
			BatchMax:      cfg.Indexing.BatchMaxLimit,
		},
	}, indexSvc, retrievalSvc, store, registry, logger.Named("http"))
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}
