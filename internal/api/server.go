package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/romangod6/sitemap-clusters/internal/metrics"
	"github.com/romangod6/sitemap-clusters/internal/storage"
)

type Server struct {
	router *gin.Engine
	port   int
	server *http.Server
}

func NewServer(port int, store storage.Store, runner *Runner, logger zerolog.Logger) *Server {
	router := gin.Default()
	router.Use(metrics.Middleware())

	// Setup CORS
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	// Create handler
	handler := NewHandler(store, runner, logger)

	router.GET("/metrics", metrics.Handler())

	// Setup routes
	api := router.Group("/api")
	{
		// Health check
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "healthy"})
		})

		analyses := api.Group("/analyses")
		{
			analyses.GET("", handler.ListAnalyses)
			analyses.POST("", handler.CreateAnalysis)
			analyses.GET("/:id", handler.GetAnalysis)
			analyses.POST("/:id/run", handler.RunAnalysis)
			analyses.DELETE("/:id", handler.DeleteAnalysis)
		}
	}

	return &Server{
		router: router,
		port:   port,
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
