// internal/web/server.go
package web

import (
    "context"
    "net/http"
    "time"

    "github.com/gin-gonic/gin"
    "github.com/prometheus/client_golang/prometheus/promhttp"
    "github.com/sirupsen/logrus"
    "pingmap/internal/config"
    "pingmap/internal/database"
    "pingmap/internal/metrics"
    "pingmap/internal/monitoring"
)

type Server struct {
    config    *config.Config
    store     database.RecordStore
    engine    *monitoring.Engine
    metrics   *metrics.Collector
    router    *gin.Engine
    hub       *Hub
    server    *http.Server
    startedAt time.Time
}

func NewServer(cfg *config.Config, store database.RecordStore, engine *monitoring.Engine) *Server {
    if cfg.Logging.Level != "debug" {
        gin.SetMode(gin.ReleaseMode)
    }

    router := gin.New()
    router.Use(gin.Logger())
    router.Use(gin.Recovery())
    router.Use(corsMiddleware())

    server := &Server{
        config:    cfg,
        store:     store,
        engine:    engine,
        metrics:   engine.Metrics(),
        router:    router,
        hub:       NewHub(engine.Metrics()),
        startedAt: time.Now(),
    }

    engine.Subscribe(func(result monitoring.ProbeResult) {
        server.hub.Broadcast(WSMessage{Type: "probe_result", Data: result})
    })

    server.setupRoutes()
    return server
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
    return s.router
}

func (s *Server) Start(ctx context.Context) error {
    s.server = &http.Server{
        Addr:         s.config.Server.Port,
        Handler:      s.router,
        ReadTimeout:  s.config.Server.ReadTimeout,
        WriteTimeout: s.config.Server.WriteTimeout,
    }

    logrus.WithField("port", s.config.Server.Port).Info("Starting web server")

    // Start metrics update routine
    go s.updateMetricsRoutine(ctx)

    // Start server in goroutine
    go func() {
        if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
            logrus.WithError(err).Fatal("Failed to start server")
        }
    }()

    return nil
}

func (s *Server) Stop(ctx context.Context) error {
    s.hub.Close()
    if s.server != nil {
        return s.server.Shutdown(ctx)
    }
    return nil
}

func (s *Server) setupRoutes() {
    s.router.GET("/favicon.ico", s.serveFavicon)
    s.router.GET("/favicon.svg", s.serveFavicon)

    api := s.router.Group("/api")
    {
        api.GET("/hosts", s.getHosts)
        api.GET("/hosts/:id", s.getHost)
        api.POST("/hosts", s.createHost)
        api.PUT("/hosts/:id", s.updateHost)
        api.DELETE("/hosts/:id", s.deleteHost)

        api.POST("/hosts/:id/check", s.checkHost)
        api.GET("/hosts/:id/logs", s.getHostLogs)

        api.POST("/checks/run", s.runChecks)

        api.GET("/stats", s.getStats)
        api.GET("/health", s.healthCheck)
        api.GET("/build", s.getBuildInfo)
    }

    // WebSocket endpoint
    s.router.GET("/ws", s.handleWebSocket)

    // Prometheus metrics
    if s.config.Prometheus.Enabled {
        s.router.GET(s.config.Prometheus.MetricsPath, gin.WrapH(promhttp.Handler()))
    }
}

func (s *Server) healthCheck(c *gin.Context) {
    c.JSON(http.StatusOK, gin.H{
        "status":    "healthy",
        "timestamp": time.Now(),
        "uptime":    formatDuration(time.Since(s.startedAt)),
        "version":   Version,
        "clients":   s.hub.Count(),
    })
}

func (s *Server) getStats(c *gin.Context) {
    ctx := c.Request.Context()
    stats := database.GetDatabaseStats(ctx, s.store, s.engine.Registry(), s.engine.Logs())

    counts := map[string]int{
        string(database.StatusUp):      0,
        string(database.StatusDown):    0,
        string(database.StatusUnknown): 0,
    }
    for _, host := range s.engine.Registry().ListActive(ctx) {
        counts[string(host.LastStatus)]++
    }

    c.JSON(http.StatusOK, gin.H{
        "data": gin.H{
            "database": stats,
            "status":   counts,
        },
    })
}

func (s *Server) updateMetricsRoutine(ctx context.Context) {
    ticker := time.NewTicker(30 * time.Second)
    defer ticker.Stop()

    for {
        select {
        case <-ctx.Done():
            return
        case <-ticker.C:
            s.metrics.UpdateSystemMetrics(ctx)
        }
    }
}

func corsMiddleware() gin.HandlerFunc {
    return func(c *gin.Context) {
        c.Header("Access-Control-Allow-Origin", "*")
        c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
        c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

        if c.Request.Method == "OPTIONS" {
            c.AbortWithStatus(204)
            return
        }

        c.Next()
    }
}
