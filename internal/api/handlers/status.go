package handlers

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/TheGojiOG/serverhost/internal/server"
	ws "github.com/TheGojiOG/serverhost/internal/websocket"
)

// StatusHandler streams server status changes to dashboard clients.
type StatusHandler struct {
	logger   *slog.Logger
	hub      *ws.Hub
	servers  *ServerHandler
	upgrader websocket.Upgrader
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(logger *slog.Logger, hub *ws.Hub, servers *ServerHandler, allowedOrigins []string) *StatusHandler {
	return &StatusHandler{
		logger:   logger.With("component", "status_handler"),
		hub:      hub,
		servers:  servers,
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// HandleStatusWebSocket sends the current server list, then every
// server_status change.
// WS /ws/status
func (h *StatusHandler) HandleStatusWebSocket(c *gin.Context) {
	items, err := h.servers.listItems(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade websocket", "origin", c.Request.Header.Get("Origin"), "error", err)
		return
	}

	client := ws.NewClient(h.hub, conn, server.StatusRoom)
	if err := client.SendMessage("server_list", items); err != nil {
		conn.Close()
		return
	}
	if !h.hub.Join(client) {
		conn.Close()
		return
	}
	h.logger.Debug("status viewer connected", "client_id", client.ID, "ip", c.ClientIP())

	go client.WritePump()
	client.ReadPump()
}
