// Package api exposes the engine over HTTP for the dashboard and the CLI.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/metorial/auditor/internal/audit"
	"github.com/metorial/auditor/internal/execution"
	"github.com/metorial/auditor/internal/inventory"
	"github.com/metorial/auditor/internal/models"
	"github.com/metorial/auditor/internal/playbook"
	"github.com/metorial/auditor/internal/sysinfo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// maxUploadBytes caps the size of an uploaded playbook file.
const maxUploadBytes = 10 << 20

type API struct {
	inventory  *inventory.Service
	playbooks  *playbook.Service
	dispatcher *execution.Dispatcher
	audit      *audit.Service
	sysinfo    *sysinfo.Collector
	logger     *zap.Logger
	upgrader   websocket.Upgrader
}

func New(inv *inventory.Service, playbooks *playbook.Service, dispatcher *execution.Dispatcher,
	auditSvc *audit.Service, collector *sysinfo.Collector, logger *zap.Logger) *API {
	return &API{
		inventory:  inv,
		playbooks:  playbooks,
		dispatcher: dispatcher,
		audit:      auditSvc,
		sysinfo:    collector,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origins are already restricted by the CORS policy of the HTTP routes.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// NewEngine builds the gin engine with every route registered.
func NewEngine(a *API, corsOrigins []string, gatherer prometheus.Gatherer) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), accessLog(a.logger))
	corsConfig := cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(corsOrigins) == 0 {
		corsConfig.AllowOrigins = nil
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	}
	engine.Use(cors.New(corsConfig))

	engine.GET("/", a.root)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	a.RegisterRoutes(engine)
	return engine
}

func (a *API) RegisterRoutes(r gin.IRouter) {
	inv := r.Group("/inventory")
	inv.GET("/list", a.listHosts)
	inv.POST("/register", a.registerHost)
	inv.POST("/check", a.checkHost)
	inv.DELETE("/delete/:id", a.deleteHost)
	inv.GET("/health", a.inventoryHealth)

	pb := r.Group("/api/playbooks")
	pb.GET("", a.listPlaybooks)
	pb.POST("", a.createPlaybook)
	pb.GET("/hosts", a.hostInfos)
	pb.GET("/health", a.playbookHealth)
	pb.POST("/validate-yaml", a.validateYAML)
	pb.GET("/executions", a.listExecutions)
	pb.GET("/execution/:id", a.getExecution)
	pb.POST("/execution/:id/cancel", a.cancelExecution)
	pb.GET("/execution/:id/ws", a.watchExecution)
	pb.GET("/:id", a.getPlaybook)
	pb.DELETE("/:id", a.deletePlaybook)
	pb.GET("/:id/script", a.playbookScript)
	pb.GET("/:id/script/download", a.downloadPlaybook)
	pb.POST("/:id/execute", a.executePlaybook)

	dl := r.Group("/api/download")
	dl.GET("/:host_id/:username", a.downloadCSV)
	dl.GET("/:host_id/:username/json", a.downloadJSON)
	dl.GET("/:host_id/:username/summary", a.downloadSummary)
}

func (a *API) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "auditor API is running",
		"status":  "healthy",
		"features": gin.H{
			"inventory": true,
			"playbooks": true,
			"download":  true,
		},
	})
}

// fail writes err as {"detail": ...} with a status derived from its kind.
func (a *API) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		a.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(status, gin.H{"detail": err.Error()})
}

func (a *API) badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": msg})
}

func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "invalid " + name})
		return 0, false
	}
	return id, true
}

func accessLog(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
