// Package api wires the HTTP handlers of the queue administration API into a gin engine.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mailflowAdmin/internal/api/dto"
	"mailflowAdmin/internal/api/handlers"
	"mailflowAdmin/internal/api/middleware"
	"mailflowAdmin/internal/observability/logging"
)

// Router manages API routing and handlers.
type Router struct {
	engine       *gin.Engine
	queueHandler *handlers.QueueHandler
}

// NewRouter creates a new API router with all handlers initialized.
func NewRouter(admin handlers.QueueAdmin) *Router {
	router := &Router{
		engine:       gin.New(),
		queueHandler: handlers.NewQueueHandler(admin),
	}

	router.setupMiddleware()
	router.setupRoutes()

	return router
}

func (r *Router) setupMiddleware() {
	r.engine.Use(middleware.Correlation())
	r.engine.Use(middleware.Logging())
	r.engine.Use(middleware.ErrorHandler())
	r.engine.Use(gin.Recovery())
}

func (r *Router) setupRoutes() {
	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, dto.HealthResponse{Status: "healthy"})
	})
	r.engine.GET("/topology", r.queueHandler.Topology)

	queues := r.engine.Group("/queues")
	{
		queues.GET("", r.queueHandler.ListQueues)
		queues.POST("/:name/purge", r.queueHandler.Purge)

		messages := queues.Group("/:name/messages")
		{
			messages.GET("", r.queueHandler.ListMessages)
			messages.POST("/delete", r.queueHandler.DeleteMessage)
			messages.POST("/redrive", r.queueHandler.RedriveMessage)
			messages.POST("/batch-delete", r.queueHandler.BatchDelete)
			messages.POST("/batch-redrive", r.queueHandler.BatchRedrive)
		}
	}
}

// Engine returns the underlying gin engine.
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// Server serves the API over HTTP.
type Server struct {
	server *http.Server
	logger logging.Logger
}

// NewServer creates a server listening on addr.
func NewServer(addr string, router *Router) *Server {
	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           router.Engine(),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      2 * time.Minute,
		},
		logger: logging.WithField("component", "http_server"),
	}
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.server.Addr).Info("Starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}
