package ioc

import (
	"github.com/metorial/auditor/internal/audit"
	"github.com/metorial/auditor/internal/config"
	"github.com/metorial/auditor/internal/execution"
	"github.com/metorial/auditor/internal/inventory"
	"github.com/metorial/auditor/internal/playbook"
	"github.com/metorial/auditor/internal/runner"
	"github.com/metorial/auditor/internal/store"
	"go.uber.org/zap"
)

func InitRunner(cfg *config.Config, logger *zap.Logger) runner.Runner {
	remote := runner.NewSSHRunner(runner.SSHConfig{
		Port:           cfg.Runner.Port,
		ConnectTimeout: cfg.Runner.ConnectTimeout,
		Become:         cfg.Runner.Become,
	}, logger)
	return runner.NewRouter(runner.NewLocalRunner(logger), remote, cfg.Runner.LocalHosts)
}

func InitAuditService(db *store.DB, logger *zap.Logger) *audit.Service {
	return audit.NewService(db, logger)
}

func InitPlaybookService(db *store.DB, logger *zap.Logger) *playbook.Service {
	return playbook.NewService(db, logger)
}

func InitInventoryService(cfg *config.Config, db *store.DB, r runner.Runner, auditSvc *audit.Service, logger *zap.Logger) *inventory.Service {
	return inventory.NewService(db, r, auditSvc, cfg.Runner.Timeout, logger)
}

func InitDispatcher(cfg *config.Config, db *store.DB, r runner.Runner, auditSvc *audit.Service, logger *zap.Logger) *execution.Dispatcher {
	return execution.NewDispatcher(db, r, auditSvc, execution.Config{
		Workers: cfg.Runner.Workers,
		Timeout: cfg.Runner.Timeout,
	}, logger)
}
