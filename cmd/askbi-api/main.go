package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/askbi/askbi/internal/api"
	"github.com/askbi/askbi/internal/archive"
	"github.com/askbi/askbi/internal/auth"
	catalogpostgres "github.com/askbi/askbi/internal/catalog/postgres"
	"github.com/askbi/askbi/internal/config"
	"github.com/askbi/askbi/internal/dashboard"
	"github.com/askbi/askbi/internal/explore"
	"github.com/askbi/askbi/internal/llm"
	"github.com/askbi/askbi/internal/llm/bigquery"
	"github.com/askbi/askbi/internal/looker"
	"github.com/askbi/askbi/internal/observability"
	"github.com/askbi/askbi/internal/prompt"
	s3store "github.com/askbi/askbi/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("askbi-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)
	if err := run(cfg, logger); err != nil {
		logger.Error("askbi-api failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	lookerClient, err := looker.NewClient(looker.Config{
		BaseURL:         cfg.Looker.BaseURL,
		ClientID:        cfg.Looker.ClientID,
		ClientSecret:    cfg.Looker.ClientSecret,
		Timeout:         cfg.Looker.Timeout,
		MaxCharsPerTile: cfg.Dashboard.MaxCharsPerTile,
	}, logger)
	if err != nil {
		return err
	}

	llmConfig := bigquery.Config{
		Model:           cfg.LLM.Model,
		RemoteFunction:  cfg.LLM.RemoteFunction,
		UseNative:       cfg.LLM.UseNative,
		Temperature:     cfg.LLM.Temperature,
		MaxOutputTokens: cfg.LLM.MaxOutputTokens,
		TopP:            cfg.LLM.TopP,
		TopK:            cfg.LLM.TopK,
		Version:         config.Version,
	}
	var (
		generator llm.Generator
		readiness []api.ReadinessCheck
	)
	switch cfg.LLM.Transport {
	case config.TransportWarehouse:
		warehouseDB, err := bigquery.Open(ctx, bigquery.DBConfig{
			Driver:          cfg.Warehouse.Driver,
			DSN:             cfg.Warehouse.DSN,
			MaxOpenConns:    cfg.Warehouse.MaxOpenConns,
			ConnMaxLifetime: cfg.Warehouse.ConnMaxLifetime,
		})
		if err != nil {
			return err
		}
		defer func() { _ = warehouseDB.Close() }()
		warehouseGenerator, err := bigquery.NewGenerator(warehouseDB, llmConfig)
		if err != nil {
			return err
		}
		generator = warehouseGenerator
		readiness = append(readiness, warehouseDB.PingContext)
	default:
		statements, err := bigquery.NewStatements(llmConfig)
		if err != nil {
			return err
		}
		sqlGenerator, err := looker.NewSQLGenerator(lookerClient, statements, looker.SQLGeneratorConfig{
			Model:      cfg.LLM.ConnectionModel,
			Connection: cfg.LLM.Connection,
		})
		if err != nil {
			return err
		}
		generator = sqlGenerator
	}
	logger.Info("llm transport configured", slog.String("transport", cfg.LLM.Transport))

	var overrides map[prompt.TaskType]string
	if cfg.Prompts.OverridesPath != "" {
		overrides, err = prompt.LoadOverrides(cfg.Prompts.OverridesPath)
		if err != nil {
			return err
		}
	}
	prompts, err := prompt.NewCatalog(overrides)
	if err != nil {
		return err
	}

	pipeline := &explore.Pipeline{
		Bridge:  llm.NewBridge(generator, lookerClient),
		Prompts: prompts,
		Runner:  lookerClient,
		Config: explore.Config{
			ChunkSize:         cfg.Translate.ChunkSize,
			MaxCharsPerPrompt: cfg.Translate.MaxCharsPerPrompt,
		},
		Logger: logger,
	}
	summarizer := &dashboard.Summarizer{
		Generator: generator,
		Prompts:   prompts,
		Config: dashboard.Config{
			MaxCharsPerPrompt: cfg.Dashboard.MaxCharsPerPrompt,
			MaxCharsPerTile:   cfg.Dashboard.MaxCharsPerTile,
			MinSummarizeChars: cfg.Dashboard.MinSummarizeChars,
			Concurrency:       cfg.Dashboard.SummarizeConcurrency,
		},
		Logger: logger,
	}

	deps := api.Dependencies{
		Logger:            logger,
		Fields:            lookerClient,
		Translator:        pipeline,
		Dashboards:        lookerClient,
		Summarizer:        summarizer,
		ExploreHost:       lookerClient.BaseURL(),
		DependencyTimeout: 2 * time.Second,
	}
	validators := auth.ChainValidator{}
	if cfg.Auth.StaticKeys != "" {
		static, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			return err
		}
		validators = append(validators, static)
	}

	if cfg.Catalog.DSN != "" {
		catalogDB, err := catalogpostgres.Open(ctx, catalogpostgres.DBConfig{
			DSN:             cfg.Catalog.DSN,
			ApplicationName: cfg.Service.Name,
			MaxOpenConns:    cfg.Catalog.MaxOpenConns,
			MaxIdleConns:    cfg.Catalog.MaxIdleConns,
			ConnMaxIdleTime: cfg.Catalog.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.Catalog.ConnMaxLifetime,
		})
		if err != nil {
			return err
		}
		defer func() { _ = catalogDB.Close() }()

		catalogRepo := catalogpostgres.NewRepository(catalogDB)
		recorder := &archive.Recorder{Logs: catalogRepo, Logger: logger}
		if cfg.Archive.Enabled {
			objectStore, err := s3store.New(ctx, s3store.Config{
				Endpoint:         cfg.ObjectStore.Endpoint,
				Region:           cfg.ObjectStore.Region,
				Bucket:           cfg.ObjectStore.Bucket,
				AccessKeyID:      cfg.ObjectStore.AccessKeyID,
				SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
				UseSSL:           cfg.ObjectStore.UseSSL,
				Prefix:           cfg.ObjectStore.Prefix,
				AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
			})
			if err != nil {
				return err
			}
			recorder.Archiver = &archive.Archiver{Store: objectStore, Paths: catalogRepo, Logger: logger}
			readiness = append(readiness, api.CheckObjectStoreConfig(cfg), objectStore.Ping)
		}
		deps.Feedback = recorder
		deps.Prompts = catalogRepo
		readiness = append(readiness, catalogRepo.HealthCheck)
		validators = append(validators, auth.NewCatalogAPIKeyValidator(catalogRepo, logger))
	} else {
		logger.Warn("catalog dsn not set; feedback logging and prompt examples are disabled")
	}

	deps.Readiness = api.CombineReadinessChecks(readiness...)
	if cfg.Auth.Required {
		deps.AuthMiddleware = auth.Middleware(logger, validators)
	}

	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      api.NewHandler(cfg, deps),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-sigCtx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		_ = server.Close()
		return err
	}
	return nil
}
