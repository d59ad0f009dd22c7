package ioc

import (
	"github.com/gin-gonic/gin"
	"github.com/metorial/auditor/internal/api"
	"github.com/metorial/auditor/internal/audit"
	"github.com/metorial/auditor/internal/config"
	"github.com/metorial/auditor/internal/execution"
	"github.com/metorial/auditor/internal/inventory"
	"github.com/metorial/auditor/internal/metrics"
	"github.com/metorial/auditor/internal/playbook"
	"github.com/metorial/auditor/internal/sysinfo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func InitMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics.MustRegister(reg)
	return reg
}

// InitSysinfo returns nil when the host cannot be inspected; the health
// endpoint then omits engine load.
func InitSysinfo(logger *zap.Logger) *sysinfo.Collector {
	c, err := sysinfo.NewCollector()
	if err != nil {
		logger.Warn("host load reporting disabled", zap.Error(err))
		return nil
	}
	return c
}

func InitAPI(inv *inventory.Service, playbooks *playbook.Service, dispatcher *execution.Dispatcher,
	auditSvc *audit.Service, collector *sysinfo.Collector, logger *zap.Logger) *api.API {
	return api.New(inv, playbooks, dispatcher, auditSvc, collector, logger)
}

func InitGinEngine(cfg *config.Config, a *api.API, reg *prometheus.Registry) *gin.Engine {
	return api.NewEngine(a, cfg.HTTP.CORSOrigins, reg)
}
