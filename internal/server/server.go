// Package server runs the engine's HTTP and gRPC listeners together with its
// background jobs.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/metorial/auditor/internal/config"
	"github.com/metorial/auditor/internal/discovery"
	"github.com/metorial/auditor/internal/execution"
	"github.com/metorial/auditor/internal/job"
	"github.com/metorial/auditor/internal/store"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

const shutdownTimeout = 15 * time.Second

type Server struct {
	cfg        *config.Config
	engine     *gin.Engine
	grpc       *grpc.Server
	health     *health.Server
	db         *store.DB
	dispatcher *execution.Dispatcher
	scheduler  *job.Scheduler
	registry   *discovery.Registry
	logger     *zap.Logger
}

func New(cfg *config.Config, engine *gin.Engine, grpcServer *grpc.Server, healthServer *health.Server,
	db *store.DB, dispatcher *execution.Dispatcher, scheduler *job.Scheduler, registry *discovery.Registry,
	logger *zap.Logger) *Server {
	return &Server{
		cfg:        cfg,
		engine:     engine,
		grpc:       grpcServer,
		health:     healthServer,
		db:         db,
		dispatcher: dispatcher,
		scheduler:  scheduler,
		registry:   registry,
		logger:     logger,
	}
}

// Run serves until ctx is cancelled or a listener fails.
func (s *Server) Run(ctx context.Context) error {
	n, err := s.db.FailInterruptedExecutions(ctx, "engine restarted before the execution finished")
	if err != nil {
		return fmt.Errorf("recover interrupted executions: %w", err)
	}
	if n > 0 {
		s.logger.Warn("marked interrupted executions as failed", zap.Int64("count", n))
	}

	stopJob, err := s.scheduler.Start(ctx)
	if err != nil {
		return fmt.Errorf("start retention job: %w", err)
	}
	defer stopJob()

	lis, err := net.Listen("tcp", s.cfg.GRPCAddr())
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	httpServer := &http.Server{
		Addr:              s.cfg.HTTPAddr(),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 2)
	go func() {
		s.logger.Info("grpc server listening", zap.String("addr", lis.Addr().String()))
		errChan <- s.grpc.Serve(lis)
	}()
	go func() {
		s.logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	if s.registry != nil {
		if err := s.registry.Register("", s.cfg.HTTP.Port, s.cfg.GRPC.Port); err != nil {
			s.logger.Warn("failed to register with consul", zap.Error(err))
		} else {
			defer s.registry.Deregister()
		}
	}

	var runErr error
	select {
	case runErr = <-errChan:
		s.logger.Error("listener failed", zap.Error(runErr))
	case <-ctx.Done():
		s.logger.Info("shutting down")
	}

	s.health.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http shutdown failed", zap.Error(err))
	}
	s.grpc.GracefulStop()
	s.dispatcher.Close()
	return runErr
}
