package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Server serves the onboarding API.
type Server struct {
	httpServer *http.Server
	logger     zerolog.Logger
}

// New builds a Server with all API routes. db may be nil when the journal is disabled.
func New(addr string, logger zerolog.Logger, db *pgxpool.Pool, deps Deps, opts Options) (*Server, error) {
	router, err := buildRouter(logger, db, deps, opts)
	if err != nil {
		return nil, err
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       2 * time.Minute,
		},
		logger: logger,
	}, nil
}

// Handler exposes the router, mainly for in-process tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe blocks until the server stops. It returns http.ErrServerClosed after Shutdown.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight submissions until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Debug().Str("addr", s.httpServer.Addr).Msg("draining http server")
	return s.httpServer.Shutdown(ctx)
}

func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// readyHandler pings the journal database. Without one the service is ready with the journal
// disabled.
func readyHandler(db *pgxpool.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{"status": "ready", "journal": "disabled"}
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "journal": "unreachable"})
				return
			}
			body["journal"] = "enabled"
		}
		c.JSON(http.StatusOK, body)
	}
}
