// Package server exposes the HTTP API: token issuance, the default function
// catalog, simulation, reaction, deployment, and session reset. Requests and
// responses travel inside a "data" envelope.
package server

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pulse/internal/auth"
	"pulse/internal/configstore"
	"pulse/internal/engine"
	"pulse/internal/heartbeat"
	"pulse/internal/logging"
	"pulse/internal/registry"
)

// DeploySessionID is the session the heartbeat scheduler drives for a
// deployed agent.
const DeploySessionID = "deploy"

// Config wires the API surface.
type Config struct {
	Engine    *engine.Engine
	Profiles  configstore.Store
	Scheduler *heartbeat.Scheduler
	Issuer    *auth.Issuer

	// Defaults is the built-in catalog listed on GET /api/functions and
	// resolvable by name in deploy requests.
	Defaults []*registry.FunctionSpec

	// DefaultPlatform applies to simulate calls, which carry no platform.
	DefaultPlatform string

	// CORSOrigins lists the allowed browser origins. Empty disables CORS.
	CORSOrigins []string

	Logger *zap.Logger
}

// Server is the HTTP API over the engine.
type Server struct {
	cfg    Config
	router *gin.Engine
	logger *zap.Logger
}

// New assembles the router. Every endpoint except token issuance requires a
// bearer token.
func New(cfg Config) *Server {
	s := &Server{
		cfg:    cfg,
		logger: logging.OrNop(cfg.Logger).Named("server"),
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if len(cfg.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "x-api-key"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
		}))
	}

	api := router.Group("/api")
	api.POST("/accesses/tokens", s.issueToken)

	secured := api.Group("")
	secured.Use(s.bearerAuth())
	{
		secured.GET("/functions", s.listFunctions)
		secured.POST("/simulate", s.simulate)
		secured.POST("/react/:platform", s.react)
		secured.POST("/deploy", s.deploy)
		secured.GET("/reset-session", s.resetSession)
	}

	s.router = router
	return s
}

// Handler returns the assembled HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// bearerAuth rejects requests without a valid bearer token.
func (s *Server) bearerAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		bearer := c.GetHeader("Authorization")
		if !strings.HasPrefix(bearer, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		if err := s.cfg.Issuer.Verify(bearer[7:]); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": auth.ErrInvalidToken.Error()})
			return
		}
		c.Next()
	}
}
