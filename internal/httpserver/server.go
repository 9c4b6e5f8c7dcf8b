// Package httpserver builds the gin engine and owns the http.Server
// lifecycle, grounded in the teacher's pkg/server shape (explicit
// middleware chain, no gin.Default()) with graceful shutdown lifted from
// api_sidecar/cmd/helmsman/main.go.
package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nearhome/streamgate/internal/apierr"
	"github.com/nearhome/streamgate/internal/logging"
	"github.com/nearhome/streamgate/internal/middleware"
	"github.com/nearhome/streamgate/internal/obs"
)

// Server wraps a gin engine and the http.Server serving it.
type Server struct {
	Engine *gin.Engine
	http   *http.Server
	logger logging.Logger
}

// New builds the gin engine with the standard streamgate middleware chain.
// route is called to register the service's own handlers on the engine.
func New(ginMode string, logger logging.Logger, metrics *obs.Metrics, route func(*gin.Engine)) *Server {
	gin.SetMode(ginMode)
	engine := gin.New()

	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(logger),
		middleware.AccessLog(logger),
		middleware.CORS(),
	)

	if metrics != nil {
		engine.GET("/metrics", metrics.Handler())
	}

	route(engine)

	engine.NoRoute(func(c *gin.Context) {
		status, envelope := apierr.Render(apierr.NotFound())
		c.JSON(status, envelope)
	})

	return &Server{Engine: engine, logger: logger}
}

// Start binds the engine to the given port on all interfaces and serves in
// the background; call Shutdown
// to stop it.
func (s *Server) Start(port string) {
	s.http = &http.Server{
		Addr:    fmt.Sprintf(":%s", port),
		Handler: s.Engine,
	}

	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Fatal("http server failed")
		}
	}()

	s.logger.WithField("port", port).Info("streamgate listening")
}

// Shutdown gracefully drains in-flight requests before returning.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}
