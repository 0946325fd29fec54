// Package api serves the live usage report and the snapshot history over
// HTTP.
package api

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/usagedeck/usagedeck/internal/aggregator"
	"github.com/usagedeck/usagedeck/internal/config"
	apperrors "github.com/usagedeck/usagedeck/internal/errors"
	"github.com/usagedeck/usagedeck/internal/history"
	"github.com/usagedeck/usagedeck/internal/logging"
	"github.com/usagedeck/usagedeck/internal/metrics"
	"github.com/usagedeck/usagedeck/internal/models"
)

// Server represents the HTTP API server
type Server struct {
	router     *gin.Engine
	config     config.ServerConfig
	apiConfig  config.APIConfig
	service    *aggregator.Service
	assembler  *history.Assembler
	metrics    *metrics.Metrics
	logger     *logging.Logger
	httpServer *http.Server
}

// Router returns the gin router for testing purposes
func (s *Server) Router() *gin.Engine {
	return s.router
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, apiCfg config.APIConfig, svc *aggregator.Service, assembler *history.Assembler, m *metrics.Metrics, logger *logging.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	server := &Server{
		router:    gin.New(),
		config:    cfg,
		apiConfig: apiCfg,
		service:   svc,
		assembler: assembler,
		metrics:   m,
		logger:    logger,
	}
	server.router.HandleMethodNotAllowed = true

	server.router.Use(gin.Recovery())
	// Metrics middleware also owns correlation IDs and request logging.
	server.router.Use(metrics.Middleware(m, logger))

	server.setupRoutes()
	return server
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	// Prometheus metrics endpoint - NO authentication required
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	// Health check - NO authentication required
	s.router.GET("/health", s.handleHealth)

	authMiddleware := APIKeyAuth(s.apiConfig.Auth.APIKeys, s.apiConfig.Auth.HeaderName, s.logger)

	usageGroup := s.router.Group("/api")
	usageGroup.Use(authMiddleware)
	{
		usageGroup.GET("/usage", s.handleUsage)
		usageGroup.GET("/usage/history", s.handleHistory)
		usageGroup.GET("/usage/history/merged", s.handleMergedHistory)
	}
}

// handleHealth reports liveness plus whether the two collaborators are
// wired.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":            "ok",
		"history_available": s.assembler.Available(),
		"timestamp":         time.Now().UTC().Format(time.RFC3339),
	})
}

// handleUsage runs one aggregation cycle and returns the live report.
// Partial per-account failures ride inside the 200 body as status:"error"
// records; only an unconfigured pipeline or an unreachable proxy become
// transport-level errors.
func (s *Server) handleUsage(c *gin.Context) {
	setNoCache(c)

	report, err := s.service.Aggregate(c.Request.Context())
	if err != nil {
		var notConfigured *apperrors.ErrNotConfigured
		if stderrors.As(err, &notConfigured) {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not_configured",
				"error":  notConfigured.Error(),
			})
			return
		}

		var unreachable *apperrors.ErrProxyUnreachable
		if stderrors.As(err, &unreachable) {
			c.JSON(http.StatusBadGateway, gin.H{
				"status": "proxy_unreachable",
				"error":  unreachable.Error(),
			})
			return
		}

		s.logger.ErrorWithContext(c.Request.Context(), "aggregation failed", "error", err.Error())
		c.JSON(http.StatusBadGateway, gin.H{
			"status": "proxy_unreachable",
			"error":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, report)
}

// handleHistory returns the ordered point series for one account/metric
// within a range.
func (s *Server) handleHistory(c *gin.Context) {
	setNoCache(c)

	account := c.Query("account")
	if account == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account query parameter is required"})
		return
	}

	metric := models.Metric(c.DefaultQuery("metric", string(models.MetricFiveHour)))
	if !metric.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown metric %q", string(metric))})
		return
	}

	rng, err := models.ParseRange(c.Query("range"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	points, err := s.assembler.GetSeries(c.Request.Context(), account, metric, rng)
	if err != nil {
		s.renderHistoryError(c, err)
		return
	}

	status := "ok"
	if len(points) == 0 {
		status = "empty"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  status,
		"account": account,
		"metric":  metric,
		"range":   rng,
		"points":  points,
	})
}

// handleMergedHistory returns the union-merged rows of all snapshot
// metrics for one account.
func (s *Server) handleMergedHistory(c *gin.Context) {
	setNoCache(c)

	account := c.Query("account")
	if account == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account query parameter is required"})
		return
	}

	rng, err := models.ParseRange(c.Query("range"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rows, err := s.assembler.GetMergedSeries(c.Request.Context(), account, rng)
	if err != nil {
		s.renderHistoryError(c, err)
		return
	}

	status := "ok"
	if len(rows) == 0 {
		status = "empty"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  status,
		"account": account,
		"range":   rng,
		"rows":    rows,
	})
}

func (s *Server) renderHistoryError(c *gin.Context, err error) {
	var unavailable *apperrors.ErrHistoryUnavailable
	if stderrors.As(err, &unavailable) {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"error":  unavailable.Error(),
		})
		return
	}

	s.logger.ErrorWithContext(c.Request.Context(), "history query failed", "error", err.Error())
	c.JSON(http.StatusInternalServerError, gin.H{
		"status": "error",
		"error":  "history query failed",
	})
}

// setNoCache disables caching on responses whose payload changes every
// aggregation cycle.
func setNoCache(c *gin.Context) {
	c.Header("Cache-Control", "no-store, no-cache, must-revalidate")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
}

// Run starts the HTTP server
func (s *Server) Run() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.HTTPPort)

	if s.httpServer == nil {
		s.httpServer = NewHTTPServer(addr, s.router)
	}

	s.logger.Info("starting HTTP server", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return &apperrors.ErrServerStart{Addr: addr, Err: err}
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	if s.httpServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.httpServer.Shutdown(ctx); err != nil {
				s.logger.Error("HTTP server shutdown error", "error", err.Error())
				errs <- &apperrors.ErrServerShutdown{Err: err}
			}
		}()
	}

	if s.service != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.service.Stop()
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			return err
		}
	}

	s.logger.Info("graceful shutdown complete")
	return nil
}
