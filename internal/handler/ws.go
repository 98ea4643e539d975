package handler

import (
	"github.com/gin-gonic/gin"

	"dispatch/internal/realtime"
)

// WSHandler upgrades authenticated callers to the realtime socket.
type WSHandler struct {
	server *realtime.Server
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(server *realtime.Server) *WSHandler {
	return &WSHandler{server: server}
}

// Serve handles GET /v1/ws
func (h *WSHandler) Serve(c *gin.Context) {
	caller, ok := principal(c)
	if !ok {
		return
	}
	h.server.Serve(c.Writer, c.Request, caller)
}
