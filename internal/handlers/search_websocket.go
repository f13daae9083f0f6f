// Package handlers holds the HTTP/WebSocket request handlers in front of
// the search orchestrator.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"unisearch/internal/model"
	"unisearch/internal/orchestrator"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocket upgrader configuration
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins in development
		// TODO: Restrict in production based on allowed origins
		return true
	},
}

// SearchRequest is one search submitted over the socket.
type SearchRequest struct {
	Query               string `json:"query"`
	ConversationContext string `json:"conversation_context"`
	MaxResults          int    `json:"max_results"`
	DoRefinement        *bool  `json:"do_refinement"`
}

// SearchEvent is one message pushed back to the client.
type SearchEvent struct {
	Type     string          `json:"type"` // "search_started" | "search_result" | "error"
	Query    string          `json:"query,omitempty"`
	Response *model.Response `json:"response,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// SearchWebSocketHandler streams search runs over one long-lived socket: the
// client submits queries as JSON frames and receives a started event plus
// the final fused response (with per-phase timings) for each.
type SearchWebSocketHandler struct {
	orch   *orchestrator.Orchestrator
	logger *zap.Logger
}

// NewSearchWebSocketHandler creates a new search websocket handler.
func NewSearchWebSocketHandler(orch *orchestrator.Orchestrator, logger *zap.Logger) *SearchWebSocketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SearchWebSocketHandler{orch: orch, logger: logger}
}

// HandleSearchWebSocket upgrades the connection and serves search requests
// until the client disconnects.
func (h *SearchWebSocketHandler) HandleSearchWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	userID := c.GetString("userId")
	h.logger.Info("search websocket connected", zap.String("userId", userID))

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	go h.keepAlive(ctx, conn)

	for {
		_, messageData, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("search websocket read error", zap.Error(err))
			}
			return
		}

		var req SearchRequest
		if err := json.Unmarshal(messageData, &req); err != nil {
			h.sendError(conn, "invalid request: "+err.Error())
			continue
		}

		h.runSearch(ctx, conn, req)
	}
}

func (h *SearchWebSocketHandler) keepAlive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		}
	}
}

func (h *SearchWebSocketHandler) runSearch(ctx context.Context, conn *websocket.Conn, req SearchRequest) {
	started := SearchEvent{Type: "search_started", Query: req.Query}
	if err := conn.WriteJSON(started); err != nil {
		h.logger.Warn("failed to write search_started event", zap.Error(err))
		return
	}

	doRefinement := true
	if req.DoRefinement != nil {
		doRefinement = *req.DoRefinement
	}

	resp := h.orch.Search(ctx, req.ConversationContext, req.Query, req.MaxResults, doRefinement)

	event := SearchEvent{Type: "search_result", Query: req.Query, Response: &resp}
	if err := conn.WriteJSON(event); err != nil {
		h.logger.Warn("failed to write search_result event", zap.Error(err))
	}
}

func (h *SearchWebSocketHandler) sendError(conn *websocket.Conn, errorMsg string) {
	errEvent := SearchEvent{Type: "error", Error: errorMsg}
	if err := conn.WriteJSON(errEvent); err != nil {
		h.logger.Warn("failed to write error event", zap.Error(err))
	}
}
