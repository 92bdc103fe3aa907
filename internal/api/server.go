// Package api exposes the dispatch subsystem over REST.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campaignforge/hookrelay/internal/auth"
	"github.com/campaignforge/hookrelay/internal/logging"
	"github.com/campaignforge/hookrelay/internal/webhook"
)

// Server is the HTTP front of the webhook service.
type Server struct {
	svc    *webhook.Service
	engine *gin.Engine
	srv    *http.Server
	log    *logging.Logger
}

// Options wires the server. Service is required. Validator, HealthHandler and
// MetricsHandler are optional; nil leaves the corresponding surface off (no
// validator means an unauthenticated API, for local development).
type Options struct {
	Service        *webhook.Service
	Addr           string
	Logger         *logging.Logger
	Validator      *auth.JWTValidator
	HealthHandler  http.HandlerFunc
	MetricsHandler http.Handler
}

func NewServer(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = logging.New("hookrelay-api")
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(log))

	s := &Server{
		svc:    opts.Service,
		engine: engine,
		log:    log,
		srv: &http.Server{
			Addr:         opts.Addr,
			Handler:      engine,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}

	if opts.HealthHandler != nil {
		engine.GET("/healthz", gin.WrapF(opts.HealthHandler))
	}
	if opts.MetricsHandler != nil {
		engine.GET("/metrics", gin.WrapH(opts.MetricsHandler))
	}

	v1 := engine.Group("/v1")
	if opts.Validator != nil {
		v1.Use(opts.Validator.GinMiddleware())
	}
	v1.POST("/subscriptions", s.registerSubscription)
	v1.GET("/subscriptions/:id", s.getSubscription)
	v1.PATCH("/subscriptions/:id", s.updateSubscription)
	v1.DELETE("/subscriptions/:id", s.deleteSubscription)
	v1.POST("/subscriptions/:id/test", s.testSubscription)
	v1.POST("/events", s.dispatchEvent)
	v1.GET("/history", s.listHistory)
	v1.GET("/dlq", s.listDeadLetters)
	v1.POST("/dlq/:id/retry", s.retryDeadLetter)
	v1.GET("/stats", s.stats)

	return s
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start blocks serving HTTP until Shutdown or a listener failure.
func (s *Server) Start() error {
	s.log.Plain().WithField("addr", s.srv.Addr).Info("api server starting")
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Plain().Info("api server shutting down")
	return s.srv.Shutdown(ctx)
}

func requestLogger(log *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithContext(c.Request.Context()).WithFields(map[string]any{
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
		}).Debug("request handled")
	}
}
