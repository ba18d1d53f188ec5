// Package httpapi provides the HTTP surface of the tenant service.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vyrodovalexey/avtenantd/internal/catalog"
	"github.com/vyrodovalexey/avtenantd/internal/config"
	"github.com/vyrodovalexey/avtenantd/internal/guard"
	"github.com/vyrodovalexey/avtenantd/internal/lifecycle"
	"github.com/vyrodovalexey/avtenantd/internal/model"
	"github.com/vyrodovalexey/avtenantd/internal/observability"
	"github.com/vyrodovalexey/avtenantd/internal/store"
	"github.com/vyrodovalexey/avtenantd/internal/token"
)

// ginModeOnce ensures gin.SetMode is only called once to avoid race conditions
var ginModeOnce sync.Once

// Server is the HTTP server for the tenant service.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server

	config   config.ServerConfig
	tokens   *token.Service
	users    *catalog.Users
	tenants  *lifecycle.Manager
	guard    *guard.Guard
	driver   store.Driver
	limiter  *loginLimiter
	registry prometheus.Gatherer
	logger   observability.Logger

	mu      sync.Mutex
	running bool
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetricsGatherer sets the registry exposed at /metrics.
func WithMetricsGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.registry = g
	}
}

// NewServer creates the HTTP server and registers all routes.
func NewServer(
	cfg config.ServerConfig,
	tokens *token.Service,
	users *catalog.Users,
	tenants *lifecycle.Manager,
	g *guard.Guard,
	driver store.Driver,
	opts ...Option,
) *Server {
	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	s := &Server{
		engine:   gin.New(),
		config:   cfg,
		tokens:   tokens,
		users:    users,
		tenants:  tenants,
		guard:    g,
		driver:   driver,
		registry: prometheus.DefaultGatherer,
		logger:   observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.LoginRateLimit.Enabled {
		s.limiter = newLoginLimiter(cfg.LoginRateLimit)
	}

	s.engine.Use(gin.Recovery())
	s.engine.Use(requestLogger(s.logger))
	s.registerRoutes()

	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.handleHealthz)
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	v1 := s.engine.Group("/api/v1")

	v1.POST("/register", s.handleRegister)
	login := v1.Group("")
	if s.limiter != nil {
		login.Use(s.limiter.middleware())
	}
	login.POST("/login", s.handleLogin)
	v1.POST("/refresh-token", s.handleRefresh)

	admin := v1.Group("/tenants", s.guard.Require(model.RoleSuperadmin))
	admin.POST("", s.handleCreateTenant)
	admin.GET("", s.handleListTenants)
	admin.GET("/:id", s.handleGetTenant)
	admin.PUT("/:id", s.handleUpdateTenant)
	admin.DELETE("/:id", s.handleDeleteTenant)

	v1.GET("/me", s.guard.Require(model.RoleMember), s.handleMe)

	tenantUsers := v1.Group("/users", s.guard.Require(model.RoleTenantAdmin))
	tenantUsers.GET("", s.handleListUsers)
	tenantUsers.POST("", s.handleCreateUser)
	tenantUsers.POST("/:id/change-password", s.handleChangePassword)
	tenantUsers.DELETE("/:id", s.handleDeactivateUser)

	documents := v1.Group("/documents", s.guard.Require(model.RoleMember))
	documents.POST("", s.handleCreateDocument)
	documents.GET("", s.handleListDocuments)
	documents.GET("/:id", s.handleGetDocument)
	documents.PUT("/:id", s.handleUpdateDocument)
	documents.DELETE("/:id", s.handleDeleteDocument)
}

// Engine returns the underlying gin engine, used by tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Start runs the HTTP server until it fails or is stopped.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}

	addr := fmt.Sprintf("%s:%d", s.config.Address, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  s.config.ReadTimeout.Duration(),
		WriteTimeout: s.config.WriteTimeout.Duration(),
		IdleTimeout:  s.config.IdleTimeout.Duration(),
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", observability.String("address", addr))

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop shuts the HTTP server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.logger.Info("stopping HTTP server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return nil
}

func (s *Server) handleHealthz(c *gin.Context) {
	if err := s.driver.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "catalog": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// requestLogger logs each request with its outcome and the request id it
// assigned.
func requestLogger(logger observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = newRequestID()
		}
		c.Writer.Header().Set("X-Request-ID", requestID)
		ctx := observability.ContextWithRequestID(c.Request.Context(), requestID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		logger.Debug("request",
			observability.String("method", c.Request.Method),
			observability.String("path", c.Request.URL.Path),
			observability.Int("status", c.Writer.Status()),
			observability.String("requestID", requestID))
	}
}
