package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joseph-ayodele/bills-assistant/internal/async"
	"github.com/joseph-ayodele/bills-assistant/internal/common"
	"github.com/joseph-ayodele/bills-assistant/internal/export"
	"github.com/joseph-ayodele/bills-assistant/internal/ingest"
	"github.com/joseph-ayodele/bills-assistant/internal/llm"
	"github.com/joseph-ayodele/bills-assistant/internal/metrics"
	"github.com/joseph-ayodele/bills-assistant/internal/queryplan"
	"github.com/joseph-ayodele/bills-assistant/internal/router"
	svc "github.com/joseph-ayodele/bills-assistant/internal/server"
	"github.com/joseph-ayodele/bills-assistant/internal/temporal"
)

func main() {
	cfg := common.LoadConfig()
	logger := common.NewLogger(cfg.Log)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, bills, err := svc.ConnectDB(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer svc.CloseDB(db, logger)
	if err := svc.PingDB(ctx, db, logger, 5*time.Second); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	completer, err := newCompleter(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to create llm client", "provider", cfg.LLM.Provider, "error", err)
		os.Exit(1)
	}
	assistant := llm.NewAssistant(completer, logger)

	store, err := newVectorStore(ctx, cfg.Vector, logger)
	if err != nil {
		logger.Error("failed to create vector store", "backend", cfg.Vector.Backend, "error", err)
		os.Exit(1)
	}

	queue := async.NewIndexQueue(store, bills, logger,
		async.WithWorkers(cfg.Index.Workers),
		async.WithQueueSize(cfg.Index.QueueSize),
		async.WithJobTimeout(cfg.Index.JobTimeout),
	)
	reindexer := async.NewReindexer(bills, queue, cfg.Index.ReindexBatch, logger)
	if cfg.Vector.Backend == "memory" {
		// The memory store starts empty, so index marks from a previous run are stale.
		if _, err := reindexer.Rebuild(ctx, bills, queue); err != nil {
			logger.Warn("vector index rebuild incomplete, the reindex schedule will retry", "error", err)
		}
	}
	if err := reindexer.Start(cfg.Index.ReindexSchedule); err != nil {
		logger.Error("failed to schedule reindexing", "error", err)
		os.Exit(1)
	}

	normalizer := queryplan.NewNormalizer(temporal.NewResolver(time.Now),
		queryplan.WithExtractor(assistant),
		queryplan.WithExtractTimeout(cfg.Router.ExtractTimeout),
		queryplan.WithLogger(logger),
	)
	rt := router.New(assistant, normalizer, bills, store, assistant,
		router.WithTimeouts(cfg.Router),
		router.WithTopK(cfg.Vector.TopK),
		router.WithLogger(logger),
	)
	ingestor := ingest.NewService(assistant, bills, queue, logger, ingest.WithExtractTimeout(cfg.LLM.Timeout))
	exporter := export.NewService(bills, logger)

	grpcServer, healthServer := svc.NewGRPCServer(svc.NewBillsService(rt, ingestor, exporter, logger), logger)
	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	metricsServer := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics serve error", "error", err)
		}
	}()

	logger.Info("billsd listening",
		"grpc_addr", cfg.Server.GRPCAddr,
		"metrics_addr", cfg.Server.MetricsAddr,
		"llm", cfg.LLM.Provider,
		"vector", cfg.Vector.Backend,
		"db", cfg.Database.Driver,
	)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC serve error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	grpcServer.GracefulStop()
	reindexer.Stop(shutdownCtx)
	queue.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)
}
