package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/joseph-ayodele/expense-auditor/internal/app"
	"github.com/joseph-ayodele/expense-auditor/internal/async"
	"github.com/joseph-ayodele/expense-auditor/internal/common"
	"github.com/joseph-ayodele/expense-auditor/internal/export"
	"github.com/joseph-ayodele/expense-auditor/internal/repository"
	"github.com/joseph-ayodele/expense-auditor/internal/server"
	"github.com/joseph-ayodele/expense-auditor/internal/services/audit"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "auditd:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := common.LoadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := common.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeStore, err := repository.OpenStore(ctx, cfg.Store, logger.Named("store"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := closeStore(context.Background()); err != nil {
			logger.Warn("store.close.failed", zap.Error(err))
		}
	}()

	components := app.Build(cfg, nil, logger)
	auditSvc := audit.NewService(audit.Config{
		ValidationMode:  cfg.Validation.Mode,
		AmountThreshold: cfg.Validation.AmountThreshold,
		SessionTimeout:  cfg.Queue.SessionTimeout,
	}, repo, components.Orchestrator, nil, logger.Named("audit"))

	queue := async.NewProcessorQueue(auditSvc, logger.Named("queue"),
		async.WithWorkers(cfg.Queue.Workers),
		async.WithQueueSize(cfg.Queue.Size),
		async.WithProcessTimeout(cfg.Queue.SessionTimeout),
	)
	auditSvc.AttachQueue(queue)

	srv := server.New(auditSvc, export.NewService(cfg.Validation.Currency, logger.Named("export")), cfg.Server, logger.Named("http"))
	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// gRPC carries the health and reflection services for orchestrators and grpcurl
	var grpcServer *grpc.Server
	healthServer := health.NewServer()
	if cfg.Server.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.Server.GRPCAddr, err)
		}
		grpcServer = grpc.NewServer()
		healthpb.RegisterHealthServer(grpcServer, healthServer)
		reflection.Register(grpcServer)
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		go func() {
			logger.Info("grpc.listen", zap.String("addr", cfg.Server.GRPCAddr))
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("grpc.serve.failed", zap.Error(err))
				stop()
			}
		}()
	}

	go watchStore(ctx, auditSvc, healthServer, logger)

	go func() {
		logger.Info("http.listen", zap.String("addr", cfg.Server.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http.serve.failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown.start")
	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http.shutdown.failed", zap.Error(err))
	}
	queue.Shutdown(shutdownCtx)
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	logger.Info("shutdown.done")
	return nil
}

// watchStore reports the execution store's reachability through the gRPC health service.
func watchStore(ctx context.Context, svc *audit.Service, hs *health.Server, logger *zap.Logger) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	serving := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := svc.Ping(pingCtx)
		cancel()
		if (err == nil) == serving {
			continue
		}
		serving = err == nil
		if serving {
			logger.Info("store.health.recovered")
			hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		} else {
			logger.Warn("store.health.failed", zap.Error(err))
			hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		}
	}
}
