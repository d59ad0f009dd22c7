package ioc

import (
	"github.com/metorial/auditor/internal/config"
	"github.com/metorial/auditor/internal/discovery"
	"github.com/metorial/auditor/internal/execution"
	"github.com/metorial/auditor/internal/job"
	"github.com/metorial/auditor/internal/server"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
)

func InitScheduler(cfg *config.Config, dispatcher *execution.Dispatcher, logger *zap.Logger) *job.Scheduler {
	return job.NewScheduler(cfg.Retention.Cron, "execution-retention",
		job.RetentionTask(dispatcher, cfg.Retention.Period), logger)
}

func InitHealthServer() *health.Server {
	return server.NewHealthServer()
}

func InitGRPCServer(healthServer *health.Server) *grpc.Server {
	return server.NewGRPCServer(healthServer)
}

// InitRegistry returns nil when no Consul address is configured.
func InitRegistry(cfg *config.Config, logger *zap.Logger) (*discovery.Registry, error) {
	if cfg.Consul.Address == "" {
		return nil, nil
	}
	return discovery.New(cfg.Consul.Address, logger)
}
