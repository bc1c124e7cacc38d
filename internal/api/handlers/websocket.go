package handlers

import (
	"net/http"

	"garage-backend/internal/api/middleware"
	"garage-backend/internal/websocket"
	"garage-backend/pkg/logger"
	"garage-backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// WebSocketHandler upgrades authenticated connections for live subscriptions.
type WebSocketHandler struct {
	manager *websocket.Manager
	auth    middleware.Authenticator
	log     *logger.Logger
}

func NewWebSocketHandler(manager *websocket.Manager, auth middleware.Authenticator, log *logger.Logger) *WebSocketHandler {
	if log == nil {
		log = logger.Discard()
	}
	return &WebSocketHandler{
		manager: manager,
		auth:    auth,
		log:     log.WithField("handler", "websocket"),
	}
}

// HandleWebSocket authenticates with the token query parameter, since
// browsers cannot set headers on a WebSocket handshake, or a bearer header.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = middleware.BearerToken(c.GetHeader("Authorization"))
	}
	if token == "" {
		h.log.Debug("WebSocket connection rejected: no token provided")
		utils.ErrorResponse(c, http.StatusUnauthorized, "Authentication token required", nil)
		return
	}

	actor, _, err := h.auth.Authenticate(c.Request.Context(), token)
	if err != nil {
		h.log.WithError(err).Debug("WebSocket connection rejected")
		utils.ErrorResponse(c, http.StatusUnauthorized, "Invalid authentication token", nil)
		return
	}

	// Upgrade writes its own error response on failure.
	conn, err := h.manager.GetUpgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Warn("Failed to upgrade connection to WebSocket")
		return
	}

	clientID, err := h.manager.RegisterClient(conn, actor)
	if err != nil {
		h.log.WithError(err).Error("Failed to register WebSocket client")
		conn.Close()
		return
	}

	h.log.WithUserID(actor.UserID).WithField("client_id", clientID).Info("WebSocket client connected")
}

// GetConnectedClients reports connection and subscription counts.
func (h *WebSocketHandler) GetConnectedClients(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "WebSocket clients retrieved", gin.H{
		"connectedClients": h.manager.GetConnectedClients(),
		"stats":            h.manager.GetClientStats(),
	})
}
