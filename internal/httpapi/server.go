package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"log/slog"

	"github.com/gin-gonic/gin"

	"mockingbird/internal/logging"
)

// Server runs the control API on the configured localhost bind.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	addr       string
}

// NewServer wires the API routes into a gin engine listening on addr.
func NewServer(addr string, api *API, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(logger))
	registerRoutes(engine, api)

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logging.NewComponentLogger(logger, "httpapi"),
	}
}

// Start binds the listener and serves in the background. It returns after
// the bind so callers learn the effective address, which matters when the
// configured port is 0.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("bind control api: %w", err)
	}
	s.addr = listener.Addr().String()

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("control api stopped unexpectedly", logging.Error(err))
		}
	}()
	s.logger.Info("control api listening", logging.String("addr", s.addr))
	return nil
}

// Addr returns the bound address after Start.
func (s *Server) Addr() string {
	return s.addr
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
