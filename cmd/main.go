package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docsummary/internal/auth"
	"docsummary/internal/config"
	"docsummary/internal/database"
	"docsummary/internal/documents"
	"docsummary/internal/extraction"
	"docsummary/internal/extractor"
	"docsummary/internal/metrics"
	"docsummary/internal/ratelimiter"
	"docsummary/internal/scheduler"
	"docsummary/internal/server"
	"docsummary/internal/store"
	"docsummary/internal/store/jsonfile"
	"docsummary/internal/summaries"
	"docsummary/internal/summarizer"
	"docsummary/internal/upload"
	"docsummary/internal/users"
)

const shutdownTimeout = 15 * time.Second

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	start := time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.ErrorContext(ctx, "Failed to load config",
			"error", err)

		return
	}

	log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(log)

	st, err := initStore(ctx, cfg, log)
	if err != nil {
		log.ErrorContext(ctx, "Failed to initialize store",
			"error", err,
			"driver", cfg.StoreDriver)

		return
	}
	defer func() {
		if err = st.Close(); err != nil {
			log.ErrorContext(ctx, "Failed to close store",
				"error", err,
				"driver", cfg.StoreDriver)
		}
	}()
	log.InfoContext(ctx, "Store is initialized",
		"driver", cfg.StoreDriver)

	storage, err := upload.New(cfg.UploadDir, cfg.MaxUploadBytes)
	if err != nil {
		log.ErrorContext(ctx, "Failed to initialize upload storage",
			"error", err,
			"uploadDir", cfg.UploadDir)

		return
	}

	m := metrics.New()

	invoker, stopInvoker := initInvoker(ctx, cfg, log)
	defer stopInvoker()

	engine := summarizer.NewEngine(invoker, cfg.SummaryOptions(), m, log)

	queue := extraction.New(st, extractor.NewPDF(log), m, cfg.ExtractionWorkers, log)
	queue.Start()
	defer queue.Stop()
	log.InfoContext(ctx, "Extraction queue is started",
		"workers", cfg.ExtractionWorkers)

	sched := scheduler.New(ctx, cfg.ReconcileSpec, st, queue, log)

	if requeued, reconcileErr := sched.Reconcile(ctx, 0); reconcileErr != nil {
		log.WarnContext(ctx, "Failed to requeue unfinished documents",
			"error", reconcileErr)
	} else if requeued > 0 {
		log.InfoContext(ctx, "Unfinished documents are requeued",
			"count", requeued)
	}

	if err = sched.Start(); err != nil {
		log.ErrorContext(ctx, "Failed to start scheduler",
			"error", err,
			"spec", cfg.ReconcileSpec,
			"timezone", time.FixedZone(scheduler.Timezone, scheduler.TimezoneOffsetSeconds).String())

		return
	}
	defer sched.Stop()
	log.InfoContext(ctx, "Scheduler is started",
		"spec", cfg.ReconcileSpec,
		"timezone", time.FixedZone(scheduler.Timezone, scheduler.TimezoneOffsetSeconds).String())

	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL)

	srv := server.New(server.Deps{
		Users:          users.New(st, issuer, log),
		Documents:      documents.New(st, storage, queue, log),
		Summaries:      summaries.New(st, engine, cfg.SummaryRequestTimeout, log),
		Issuer:         issuer,
		Metrics:        m.Handler(),
		MaxUploadBytes: cfg.MaxUploadBytes,
	}, log)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Start(cfg.HTTPAddr)
	}()
	log.InfoContext(ctx, "Server is started",
		"addr", cfg.HTTPAddr,
		"modelConfigured", engine.Configured(),
		"model", engine.Model())

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-c:
		log.InfoContext(ctx, "Shutdown signal is received",
			"signal", sig.String())
	case err = <-serveErr:
		if err != nil {
			log.ErrorContext(ctx, "Server failed",
				"error", err,
				"addr", cfg.HTTPAddr)
		}
	}
	cancel()

	log.InfoContext(ctx, "Exiting...",
		"uptimeSeconds", time.Since(start).Seconds())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err = srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		log.ErrorContext(shutdownCtx, "Failed to shut down server",
			"error", err)
	}
	log.InfoContext(shutdownCtx, "Server is stopped",
		"uptimeSeconds", time.Since(start).Seconds())
}

func initStore(ctx context.Context, cfg config.Config, log *slog.Logger) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverSQLite:
		return database.New(ctx, cfg.DBPath, log)
	default:
		return jsonfile.Open(ctx, cfg.DataDir, log)
	}
}

// initInvoker returns a nil invoker when no model backend is configured so
// the engine reports itself unavailable.
func initInvoker(ctx context.Context, cfg config.Config, log *slog.Logger) (summarizer.Invoker, func()) {
	if !cfg.ModelConfigured() {
		log.WarnContext(ctx, "OPENAI_API_KEY is missing so summaries are unavailable",
			"envVar", "OPENAI_API_KEY")

		return nil, func() {}
	}

	openAI, err := summarizer.NewOpenAIInvoker(summarizer.OpenAIConfig{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIModel,
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to create OpenAI invoker so summaries are unavailable",
			"error", err,
			"envVar", "OPENAI_API_KEY")

		return nil, func() {}
	}

	limited := ratelimiter.New(openAI, cfg.ModelRequestsPerSecond, cfg.ModelBurst, log)

	log.InfoContext(ctx, "OpenAI invoker is initialized",
		"provider", "openai",
		"model", cfg.OpenAIModel,
		"requestsPerSecond", cfg.ModelRequestsPerSecond,
		"cacheSize", cfg.ModelCacheSize)

	return summarizer.NewCachingInvoker(limited, cfg.ModelCacheSize, cfg.ModelCacheTTL), limited.Stop
}
