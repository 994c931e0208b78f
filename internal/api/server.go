package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/emberhost/ember/internal/auth"
	"github.com/emberhost/ember/internal/lifecycle"
	"github.com/emberhost/ember/internal/logging"
	"github.com/emberhost/ember/internal/mcversion"
	"github.com/emberhost/ember/internal/store"
	"github.com/gin-gonic/gin"
)

// Server is the Ember control plane HTTP API server. It carries the
// platform services that handlers need and owns the underlying
// net/http server lifecycle.
type Server struct {
	store        *store.Store
	manager      *lifecycle.Manager
	verifier     auth.Verifier
	versionCache *mcversion.Cache
	adminToken   string
	httpServer   *http.Server
	bindAddr     string
	bindPort     int
}

// NewServer creates a new API server instance from a validated Config.
func NewServer(config *Config) *Server {
	// Set Gin to release mode for production
	gin.SetMode(gin.ReleaseMode)

	return &Server{
		store:        config.Store,
		manager:      config.Manager,
		verifier:     config.Verifier,
		versionCache: config.VersionCache,
		adminToken:   config.AdminToken,
		bindAddr:     config.BindAddr,
		bindPort:     config.BindPort,
	}
}

// Start starts the API server and begins serving traffic.
func (s *Server) Start() error {
	logging.Info("Starting HTTP API server on %s:%d", s.bindAddr, s.bindPort)

	router := gin.New()

	// Configure Gin logging only if not already configured by CLI tools
	if !logging.IsConfiguredByCLI() {
		gin.DefaultWriter = logging.NewLevelWriter("INFO", "gin")
		gin.DefaultErrorWriter = logging.NewLevelWriter("ERROR", "gin")
	}

	router.Use(s.loggingMiddleware())
	router.Use(s.corsMiddleware())
	router.Use(gin.Recovery())

	s.setupRoutes(router)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.bindAddr, s.bindPort),
		Handler: router,
		// Timeouts for production. Console WebSocket sessions hijack the
		// connection during upgrade, so write timeouts do not apply to them.
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Test binding first to catch errors immediately
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind to %s: %w", s.httpServer.Addr, err)
	}
	listener.Close() // Close the test listener

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("HTTP server failed: %v", err)
		}
	}()

	logging.Success("HTTP API server started successfully")
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down HTTP API server...")

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

var (
	startTime = time.Now()  // Track server start time for uptime calculation
	version   = "0.1.0-dev" // Version information
)
