package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/itohio/batmon/pkg/config"
	"github.com/itohio/batmon/pkg/history"
)

// Measurer triggers an out-of-schedule evaluation on the device.
type Measurer interface {
	Measure() error
}

// Server bundles router and dependencies for the battery status API.
type Server struct {
	cfg     *config.Config
	history history.History
	device  Measurer
	engine  *gin.Engine
}

// New constructs a server with routes and middleware. A nil device disables
// the measure endpoint.
func New(cfg *config.Config, hist history.History, device Measurer) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(gin.Logger())

	server := &Server{cfg: cfg, history: hist, device: device, engine: engine}
	server.registerRoutes()
	return server
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run starts the HTTP server and blocks until ctx is done or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.HTTP.Addr,
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := s.engine.Group("/api/v1")
	v1.Use(apiVersionMiddleware())

	bat := v1.Group("/battery")
	{
		bat.GET("", s.handleBattery)
		bat.GET("/history", s.handleHistory)
		bat.GET("/episodes", s.handleEpisodes)
		bat.POST("/measure", s.handleMeasure)
	}
}

func apiVersionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-API-Version", "v1")
		c.Next()
	}
}
