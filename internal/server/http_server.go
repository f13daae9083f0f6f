// Package server assembles the HTTP surface in front of the search core:
// the REST search endpoint, capability administration, the progress
// websocket, and the MCP streamable transport.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"unisearch/internal/capability"
	"unisearch/internal/handlers"
	"unisearch/internal/middleware"
	"unisearch/internal/model"
	"unisearch/internal/orchestrator"
	"unisearch/internal/storage"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// Config carries the HTTP server settings.
type Config struct {
	Port           string
	AllowedOrigins []string
}

// HTTPServer hosts every inbound surface of the search service.
type HTTPServer struct {
	config    Config
	engine    *gin.Engine
	orch      *orchestrator.Orchestrator
	registry  *capability.Registry
	capStore  storage.CapabilityStoreInterface
	mcpServer *mcp.Server
	logger    *zap.Logger
	httpSrv   *http.Server
}

// NewHTTPServer wires the routes. capStore may be nil when Mongo persistence
// is disabled; registrations then live only in memory.
func NewHTTPServer(
	config Config,
	orch *orchestrator.Orchestrator,
	registry *capability.Registry,
	capStore storage.CapabilityStoreInterface,
	mcpServer *mcp.Server,
	logger *zap.Logger,
) *HTTPServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Port == "" {
		config.Port = "7799"
	}

	s := &HTTPServer{
		config:    config,
		orch:      orch,
		registry:  registry,
		capStore:  capStore,
		mcpServer: mcpServer,
		logger:    logger,
	}
	s.engine = s.buildEngine()
	return s
}

func (s *HTTPServer) buildEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(s.config.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = s.config.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	r.Use(cors.New(corsConfig))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"sources": len(s.registry.AllSources()),
		})
	})

	api := r.Group("/api")
	api.Use(middleware.OptionalJWTMiddleware(s.logger))
	{
		api.POST("/search", s.handleSearch)
		api.GET("/sources", s.handleListSources)
		api.POST("/capabilities", s.handleRegisterCapabilities)
	}

	wsHandler := handlers.NewSearchWebSocketHandler(s.orch, s.logger)
	ws := r.Group("/ws")
	ws.Use(middleware.OptionalJWTMiddleware(s.logger))
	ws.GET("/search", wsHandler.HandleSearchWebSocket)

	if s.mcpServer != nil {
		mcpHandler := mcp.NewStreamableHTTPHandler(
			func(req *http.Request) *mcp.Server { return s.mcpServer },
			&mcp.StreamableHTTPOptions{Stateless: false, JSONResponse: false},
		)
		r.Any("/mcp", gin.WrapH(mcpHandler))
		s.logger.Info("MCP HTTP transport mounted", zap.String("endpoint", "/mcp"))
	}

	return r
}

// searchRequestBody is the REST search payload.
type searchRequestBody struct {
	Query               string `json:"query"`
	ConversationContext string `json:"conversation_context"`
	MaxResults          int    `json:"max_results"`
	DoRefinement        *bool  `json:"do_refinement"`
}

func (s *HTTPServer) handleSearch(c *gin.Context) {
	var body searchRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	doRefinement := true
	if body.DoRefinement != nil {
		doRefinement = *body.DoRefinement
	}

	resp := s.orch.Search(c.Request.Context(), body.ConversationContext, body.Query, body.MaxResults, doRefinement)
	c.JSON(http.StatusOK, resp)
}

func (s *HTTPServer) handleListSources(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"sources": s.registry.AllSources(),
		"labels":  s.registry.SourceLabelsForAgent(),
	})
}

// handleRegisterCapabilities accepts either one capability document or a
// {"sources": [...]} envelope, registers it, and persists it when a store is
// configured.
func (s *HTTPServer) handleRegisterCapabilities(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body: " + err.Error()})
		return
	}

	before := sourceNameSet(s.registry.AllSources())
	if err := s.registry.RegisterFromPayload(raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	registered := make([]string, 0)
	for _, src := range s.registry.AllSources() {
		if !before[src.SourceName] {
			registered = append(registered, src.SourceName)
		}
		if s.capStore != nil {
			if err := s.capStore.Save(c.Request.Context(), src); err != nil {
				s.logger.Warn("capability persistence failed",
					zap.String("source", src.SourceName), zap.Error(err))
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "registered",
		"new":        registered,
		"totalCount": len(s.registry.AllSources()),
	})
}

func sourceNameSet(caps []model.Capability) map[string]bool {
	out := make(map[string]bool, len(caps))
	for _, c := range caps {
		out[c.SourceName] = true
	}
	return out
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *HTTPServer) Run(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:    ":" + s.config.Port,
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("port", s.config.Port))
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

// Engine exposes the gin engine for tests.
func (s *HTTPServer) Engine() *gin.Engine {
	return s.engine
}
