package handlers

import (
	"task-notify/internal/websocket"

	"github.com/gin-gonic/gin"
)

type WSHandler struct {
	hub *websocket.Hub
}

func NewWSHandler(hub *websocket.Hub) *WSHandler {
	return &WSHandler{hub: hub}
}

// HandleWebSocket godoc
// @Summary WebSocket connection
// @Description Upgrade to the realtime task notification channel. After connecting, send {"type":"subscribe","userId":<id>}.
// @Tags websocket
// @Param token query string false "Optional bearer token binding the connection to its user"
// @Success 101 "Switching Protocols"
// @Failure 401 "Invalid or missing token"
// @Router /ws [get]
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	h.hub.ServeWS(c.Writer, c.Request)
}
