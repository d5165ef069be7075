// Package api provides the HTTP API for the measurement engine service.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/config"
	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/connection"
	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/neighbor"
	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/rrm"
	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/scanengine"
	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/wlan"
)

// ResultHandler forwards a neighbor report result off the engine loop.
type ResultHandler func(ctx context.Context, res neighbor.Result)

// Deps are the components the API drives.
type Deps struct {
	Engine      *rrm.Engine
	Scans       *scanengine.ScanEngine
	Connections *connection.Registry
	OnResult    ResultHandler
}

// Server represents the HTTP API server.
type Server struct {
	config  config.ServerConfig
	engine  *rrm.Engine
	scans   *scanengine.ScanEngine
	conns   *connection.Registry
	notify  ResultHandler
	limiter *rate.Limiter
	logger  *zap.SugaredLogger
	router  *gin.Engine

	mu         sync.Mutex
	lastResult *neighbor.Result
	wg         sync.WaitGroup
}

// New creates a new API server.
func New(cfg config.ServerConfig, deps Deps, logger *zap.SugaredLogger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		config: cfg,
		engine: deps.Engine,
		scans:  deps.Scans,
		conns:  deps.Connections,
		notify: deps.OnResult,
		logger: logger,
		router: gin.New(),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = cfg.RateLimit
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	s.setupRoutes()
	return s
}

// Router returns the gin router.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Close waits for neighbor results still being forwarded.
func (s *Server) Close() {
	s.wg.Wait()
}

func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())

	// Health endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/ready", s.readyHandler)

	// API v1
	v1 := s.router.Group("/api/v1")
	v1.Use(s.rateLimitMiddleware())
	{
		// Beacon measurements
		v1.POST("/rrm/beacon", s.beaconRequestHandler)
		v1.DELETE("/rrm/sessions/:index", s.abortSessionHandler)
		v1.GET("/rrm/status", s.statusHandler)
		v1.GET("/rrm/ledger/:bssid", s.ledgerHandler)

		// Neighbor reports
		v1.POST("/rrm/neighbor", s.neighborRequestHandler)
		v1.POST("/rrm/neighbor/report", s.neighborReportHandler)
		v1.GET("/rrm/neighbor/result", s.neighborResultHandler)
		v1.GET("/rrm/neighbors", s.neighborsHandler)
		v1.DELETE("/rrm/neighbors", s.purgeNeighborsHandler)

		// Scan engine events
		v1.POST("/scan/complete", s.scanCompleteHandler)
		v1.POST("/scan/observations", s.observationsHandler)

		// Connections
		v1.GET("/connections", s.listConnectionsHandler)
		v1.POST("/connections", s.registerConnectionHandler)
		v1.DELETE("/connections/:bssid", s.removeConnectionHandler)
	}

	s.router.GET("/metrics", s.metricsHandler)
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		s.logger.Debugw("Request completed",
			"path", path,
			"status", c.Writer.Status(),
			"method", c.Request.Method,
			"latency", time.Since(start),
		)
	}
}

func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter != nil && !s.limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, rrm.ErrAlreadyPending):
		return http.StatusConflict
	case errors.Is(err, rrm.ErrInvalidSession),
		errors.Is(err, connection.ErrUnknownPeer),
		errors.Is(err, scanengine.ErrUnknownScan):
		return http.StatusNotFound
	case errors.Is(err, rrm.ErrResourceExhausted),
		errors.Is(err, rrm.ErrStopped),
		errors.Is(err, scanengine.ErrNotRunning):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Errorw("Request failed", "path", c.Request.URL.Path, "error", err)
	}
	c.JSON(code, gin.H{
		"error": err.Error(),
	})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error": err.Error(),
	})
}

// Health check handler
func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "rrm-engine",
	})
}

// Readiness check handler
func (s *Server) readyHandler(c *gin.Context) {
	if !s.engine.IsRunning() || !s.scans.IsRunning() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "not_ready",
			"service": "rrm-engine",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ready",
		"service": "rrm-engine",
	})
}

func (s *Server) beaconRequestHandler(c *gin.Context) {
	var body BeaconRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	req, err := body.toRequest()
	if err != nil {
		badRequest(c, err)
		return
	}

	if err := s.engine.Submit(c.Request.Context(), req); err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":    "accepted",
		"requester": req.RequesterBSSID,
		"source":    req.Source,
		"mode":      req.Mode.String(),
	})
}

func (s *Server) abortSessionHandler(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		badRequest(c, fmt.Errorf("invalid session index %q", c.Param("index")))
		return
	}
	if err := s.engine.Abort(c.Request.Context(), index); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "aborted",
		"index":  index,
	})
}

func (s *Server) statusHandler(c *gin.Context) {
	st, err := s.engine.Status(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"engine":            st,
		"outstanding_scans": s.scans.Outstanding(),
		"cached_bss":        s.scans.Cache().Len(),
		"connections":       len(s.conns.List()),
	})
}

func (s *Server) ledgerHandler(c *gin.Context) {
	bssid, err := wlan.ParseBSSID(c.Param("bssid"))
	if err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"requester": bssid,
		"channels":  s.engine.ReportedChannels(bssid),
	})
}

func (s *Server) neighborRequestHandler(c *gin.Context) {
	var body NeighborRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	requester, err := wlan.ParseBSSID(body.RequesterBSSID)
	if err != nil {
		badRequest(c, err)
		return
	}

	req := neighbor.Request{
		RequesterBSSID: requester,
		SSID:           body.SSID,
		Timeout:        time.Duration(body.TimeoutMS) * time.Millisecond,
		Callback:       s.neighborResult,
	}
	if err := s.engine.RequestNeighborReport(c.Request.Context(), req); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"status":    "pending",
		"requester": requester,
	})
}

// neighborResult runs on the engine loop, so forwarding happens elsewhere.
func (s *Server) neighborResult(res neighbor.Result) {
	s.mu.Lock()
	s.lastResult = &res
	s.mu.Unlock()

	s.logger.Infow("Neighbor report request finished",
		"requester", res.RequesterBSSID,
		"status", res.Status.String(),
		"entries", len(res.Entries),
	)
	if s.notify == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		s.notify(ctx, res)
	}()
}

func (s *Server) neighborReportHandler(c *gin.Context) {
	var body NeighborReport
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	requester, err := wlan.ParseBSSID(body.RequesterBSSID)
	if err != nil {
		badRequest(c, err)
		return
	}

	rep := neighbor.Report{
		RequesterBSSID: requester,
		FastTransition: body.FastTransition,
		Entries:        body.Entries,
	}
	if err := s.engine.NeighborReportReceived(c.Request.Context(), rep); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     "received",
		"cache_size": len(s.engine.Neighbors()),
	})
}

func (s *Server) neighborResultHandler(c *gin.Context) {
	s.mu.Lock()
	res := s.lastResult
	s.mu.Unlock()
	if res == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "no neighbor report result yet",
		})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) neighborsHandler(c *gin.Context) {
	entries := s.engine.Neighbors()
	c.JSON(http.StatusOK, gin.H{
		"neighbors": entries,
		"count":     len(entries),
	})
}

func (s *Server) purgeNeighborsHandler(c *gin.Context) {
	if err := s.engine.PurgeNeighbors(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "purged",
	})
}

func (s *Server) scanCompleteHandler(c *gin.Context) {
	var body ScanComplete
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	success := body.Success == nil || *body.Success

	if err := s.scans.Complete(c.Request.Context(), body.ScanID, success); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "completed",
		"scan_id": body.ScanID,
		"success": success,
	})
}

func (s *Server) observationsHandler(c *gin.Context) {
	var body Observations
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	stored := s.scans.AddObservations(body.Records)
	c.JSON(http.StatusAccepted, gin.H{
		"stored":     stored,
		"cached_bss": s.scans.Cache().Len(),
	})
}

func (s *Server) listConnectionsHandler(c *gin.Context) {
	conns := s.conns.List()
	c.JSON(http.StatusOK, gin.H{
		"connections": conns,
		"count":       len(conns),
	})
}

func (s *Server) registerConnectionHandler(c *gin.Context) {
	var body RegisterConnection
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	peer, err := wlan.ParseBSSID(body.PeerBSSID)
	if err != nil {
		badRequest(c, err)
		return
	}
	connected, err := wlan.ParseBSSID(body.ConnectedBSSID)
	if err != nil {
		badRequest(c, err)
		return
	}

	conn, err := s.conns.Register(peer, connected, body.Interface)
	if err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusCreated, conn)
}

func (s *Server) removeConnectionHandler(c *gin.Context) {
	peer, err := wlan.ParseBSSID(c.Param("bssid"))
	if err != nil {
		badRequest(c, err)
		return
	}
	if !s.conns.Remove(peer) {
		s.fail(c, fmt.Errorf("%w: %s", connection.ErrUnknownPeer, peer))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "removed",
		"peer":   peer,
	})
}

// Metrics handler, plain text gauges
func (s *Server) metricsHandler(c *gin.Context) {
	st, err := s.engine.Status(c.Request.Context())
	if err != nil {
		c.String(http.StatusServiceUnavailable, "# engine unavailable\n")
		return
	}
	c.String(http.StatusOK,
		"rrm_active_sessions %d\nrrm_outstanding_scans %d\nrrm_cached_bss %d\nrrm_neighbor_cache_size %d\n",
		len(st.Sessions), len(s.scans.Outstanding()), s.scans.Cache().Len(), st.NeighborCacheSize,
	)
}
