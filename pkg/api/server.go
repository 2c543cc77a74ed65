package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/fleetconf/shepherd/pkg/components"
	"github.com/fleetconf/shepherd/pkg/log"
	"github.com/fleetconf/shepherd/pkg/metrics"
	"github.com/fleetconf/shepherd/pkg/options"
	"github.com/fleetconf/shepherd/pkg/registry"
	"github.com/fleetconf/shepherd/pkg/sessions"
)

// validate checks request payload structs against their validate tags.
var validate = validator.New()

// Server serves the v2 and v3 HTTP APIs.
type Server struct {
	engine   *components.Engine
	registry *registry.Registry
	sessions *sessions.Manager
	opts     *options.Cache
	router   *gin.Engine
	httpSrv  *http.Server
	logger   zerolog.Logger
}

// NewServer wires the HTTP surface over the given subsystems.
func NewServer(engine *components.Engine, reg *registry.Registry, mgr *sessions.Manager, opts *options.Cache) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		engine:   engine,
		registry: reg,
		sessions: mgr,
		opts:     opts,
		logger:   log.WithComponent("api"),
	}
	s.router = gin.New()
	s.router.Use(gin.Recovery(), s.requestMiddleware())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", gin.WrapF(metrics.HealthHandler()))
	s.router.GET("/healthz/ready", gin.WrapF(metrics.ReadyHandler()))
	s.router.GET("/healthz/live", gin.WrapF(metrics.LivenessHandler()))
	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Current API surface: snake_case payloads, object list responses
	// with opaque cursors.
	v3 := s.router.Group("/v3")
	{
		v3.GET("/components", s.v3ListComponents)
		v3.PATCH("/components", s.v3PatchComponents)
		v3.DELETE("/components", s.v3DeleteComponents)
		v3.GET("/components/:id", s.v3GetComponent)
		v3.PUT("/components/:id", s.v3PutComponent)
		v3.PATCH("/components/:id", s.v3PatchComponent)
		v3.DELETE("/components/:id", s.v3DeleteComponent)

		v3.GET("/configurations", s.v3ListConfigurations)
		v3.GET("/configurations/:name", s.v3GetConfiguration)
		v3.PUT("/configurations/:name", s.v3PutConfiguration)
		v3.DELETE("/configurations/:name", s.v3DeleteConfiguration)
		v3.POST("/configurations/:name/restore", s.v3RestoreConfiguration)

		v3.GET("/sources", s.v3ListSources)
		v3.POST("/sources", s.v3CreateSource)
		v3.GET("/sources/:name", s.v3GetSource)
		v3.PATCH("/sources/:name", s.v3PatchSource)
		v3.DELETE("/sources/:name", s.v3DeleteSource)
		v3.POST("/sources/:name/restore", s.v3RestoreSource)

		v3.GET("/sessions", s.v3ListSessions)
		v3.POST("/sessions", s.v3CreateSession)
		v3.DELETE("/sessions", s.v3DeleteSessions)
		v3.GET("/sessions/:name", s.v3GetSession)
		v3.PATCH("/sessions/:name", s.v3PatchSession)
		v3.DELETE("/sessions/:name", s.v3DeleteSession)

		v3.GET("/options", s.v3GetOptions)
		v3.PATCH("/options", s.v3PatchOptions)
	}

	// Legacy surface: camelCase payloads, bare-array list responses, and
	// the historical status codes. Kept byte-compatible for old clients.
	v2 := s.router.Group("/v2")
	{
		v2.GET("/components", s.v2ListComponents)
		v2.PATCH("/components", s.v2PatchComponents)
		v2.GET("/components/:id", s.v2GetComponent)
		v2.PUT("/components/:id", s.v2PutComponent)
		v2.PATCH("/components/:id", s.v2PatchComponent)
		v2.DELETE("/components/:id", s.v2DeleteComponent)

		v2.GET("/configurations", s.v2ListConfigurations)
		v2.GET("/configurations/:name", s.v2GetConfiguration)
		v2.PUT("/configurations/:name", s.v2PutConfiguration)
		v2.DELETE("/configurations/:name", s.v2DeleteConfiguration)

		v2.GET("/sessions", s.v2ListSessions)
		v2.POST("/sessions", s.v2CreateSession)
		v2.DELETE("/sessions", s.v2DeleteSessions)
		v2.GET("/sessions/:name", s.v2GetSession)
		v2.PATCH("/sessions/:name", s.v2PatchSession)
		v2.DELETE("/sessions/:name", s.v2DeleteSession)

		v2.GET("/options", s.v2GetOptions)
		v2.PATCH("/options", s.v2PatchOptions)
	}
}

// Start begins serving on addr and blocks until the listener fails or
// the server is stopped.
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	metrics.RegisterComponent("api", true, "serving")
	s.logger.Info().Str("addr", addr).Msg("API server listening")
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop drains in-flight requests and shuts the server down.
func (s *Server) Stop() {
	if s.httpSrv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error().Err(err).Msg("API server shutdown failed")
	}
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
