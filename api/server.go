package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"gridsim/logger"
	"gridsim/manager"
	"gridsim/metrics"
)

// Server is the HTTP API server
type Server struct {
	router     *gin.Engine
	sessions   *manager.SessionManager
	jwtSecret  string
	httpServer *http.Server
	port       int
}

// NewServer creates the API server
func NewServer(sessions *manager.SessionManager, jwtSecret string, port int) *Server {
	// Release mode reduces log output
	gin.SetMode(gin.ReleaseMode)

	router := gin.Default()
	router.Use(corsMiddleware())

	s := &Server{
		router:    router,
		sessions:  sessions,
		jwtSecret: jwtSecret,
		port:      port,
	}
	s.setupRoutes()
	return s
}

// corsMiddleware enables CORS for all origins
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	}
}

// setupRoutes wires all endpoints
func (s *Server) setupRoutes() {
	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := s.router.Group("/api")
	{
		api.Any("/health", s.handleHealth)

		// Token issuance (no authentication required)
		api.POST("/auth/token", s.handleIssueToken)

		// Read-only endpoints (no authentication required)
		api.GET("/sessions", s.handleListSessions)
		api.GET("/sessions/:item", s.handleGetSession)
		api.GET("/sessions/:item/orders", s.handleListOrders)
		api.GET("/sessions/:item/fills", s.handleListFills)
		api.GET("/sessions/:item/budget", s.handleGetBudget)
		api.GET("/profit/:wallet", s.handleGetProfit)

		// Mutating endpoints require authentication
		protected := api.Group("/", s.authMiddleware())
		{
			protected.POST("/sessions", s.handleStartSession)
			protected.POST("/sessions/:item/tick", s.handleTick)
			protected.POST("/sessions/:item/orders", s.handleAddOrder)
			protected.DELETE("/sessions/:item/orders/:id", s.handleCancelOrder)
			protected.POST("/sessions/:item/cancel-all", s.handleCancelAll)
			protected.POST("/sessions/:item/stop", s.handleStopSession)
			protected.POST("/sessions/:item/clear", s.handleClearHistory)
			protected.DELETE("/sessions/:item", s.handleResetSession)
			protected.POST("/sessions/:item/autorun", s.handleAutorun)
			protected.POST("/sessions/:item/series", s.handleAttachSeries)
			protected.POST("/profit/:wallet/record", s.handleRecordPnl)
		}
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().Format(time.RFC3339)})
}

// Start runs the HTTP server (blocking)
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	logger.Infof("🌐 API server listening on %s", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the gin engine for tests
func (s *Server) Router() http.Handler {
	return s.router
}
