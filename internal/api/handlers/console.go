package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/TheGojiOG/serverhost/internal/console"
	ws "github.com/TheGojiOG/serverhost/internal/websocket"
)

const (
	consoleBuffer    = 256
	consoleWriteWait = 10 * time.Second
	consolePongWait  = 60 * time.Second
	consolePingEvery = 54 * time.Second
)

// ConsoleHandler handles console-related HTTP and WebSocket requests
type ConsoleHandler struct {
	logger         *slog.Logger
	service        ServerService
	commandHistory *console.CommandHistory
	upgrader       websocket.Upgrader
}

// NewConsoleHandler creates a new console handler
func NewConsoleHandler(logger *slog.Logger, service ServerService, history *console.CommandHistory, allowedOrigins []string) *ConsoleHandler {
	return &ConsoleHandler{
		logger:         logger.With("component", "console_handler"),
		service:        service,
		commandHistory: history,
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// ConsoleLine is the payload of a console_output message.
type ConsoleLine struct {
	ServerID string         `json:"server_id"`
	Seq      uint64         `json:"seq"`
	Stream   console.Stream `json:"stream"`
	Text     string         `json:"text"`
	Time     time.Time      `json:"time"`
}

// HandleConsoleWebSocket streams the server console: every retained line
// first, then live output until the process exits. Clients may send
// execute_command messages.
// WS /api/v1/servers/:id/console?filter=errors|search|regex&pattern=...&case_sensitive=true
func (h *ConsoleHandler) HandleConsoleWebSocket(c *gin.Context) {
	serverID := c.Param("id")

	filter, err := console.NewOutputFilter(c.Query("filter"), c.Query("pattern"), c.Query("case_sensitive") == "true")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lines, err := h.service.Subscribe(ctx, serverID, consoleBuffer)
	if err != nil {
		respondError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade websocket", "server_id", serverID, "origin", c.Request.Header.Get("Origin"), "error", err)
		return
	}
	defer conn.Close()

	h.logger.Debug("console viewer connected", "server_id", serverID, "ip", c.ClientIP())
	replies := make(chan *ws.Message, 16)
	go h.readMessages(ctx, cancel, conn, serverID, replies)

	ticker := time.NewTicker(consolePingEvery)
	defer ticker.Stop()

	write := func(msg *ws.Message) bool {
		conn.SetWriteDeadline(time.Now().Add(consoleWriteWait))
		return conn.WriteJSON(msg) == nil
	}

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				if ctx.Err() == nil {
					write(ws.NewMessage("console_closed", gin.H{"server_id": serverID}))
					conn.SetWriteDeadline(time.Now().Add(consoleWriteWait))
					conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "process exited"))
				}
				return
			}
			if !filter.Match(line) {
				continue
			}
			if !write(ws.NewMessage("console_output", ConsoleLine{
				ServerID: serverID,
				Seq:      line.Seq,
				Stream:   line.Stream,
				Text:     console.Sanitize(line.Text),
				Time:     line.Time,
			})) {
				return
			}

		case reply := <-replies:
			if !write(reply) {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(consoleWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

// readMessages handles incoming messages from the websocket client and
// cancels the stream when the client goes away.
func (h *ConsoleHandler) readMessages(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, serverID string, replies chan<- *ws.Message) {
	defer cancel()

	conn.SetReadLimit(4096)
	conn.SetReadDeadline(time.Now().Add(consolePongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(consolePongWait))
		return nil
	})

	for {
		var msg ws.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("console websocket error", "server_id", serverID, "error", err)
			}
			return
		}

		var reply *ws.Message
		switch msg.Type {
		case "execute_command":
			reply = h.executeCommand(ctx, serverID, msg)
		default:
			reply = ws.NewMessage("error", gin.H{"message": "unknown message type: " + msg.Type})
		}

		select {
		case replies <- reply:
		case <-ctx.Done():
			return
		}
	}
}

func (h *ConsoleHandler) executeCommand(ctx context.Context, serverID string, msg ws.Message) *ws.Message {
	payload, ok := msg.Payload.(map[string]any)
	if !ok {
		return ws.NewMessage("error", gin.H{"message": "Invalid payload"})
	}
	command, ok := payload["command"].(string)
	if !ok || strings.TrimSpace(command) == "" {
		return ws.NewMessage("error", gin.H{"message": "No command provided"})
	}

	if err := h.service.SendCommand(ctx, serverID, command); err != nil {
		return ws.NewMessage("error", gin.H{"message": "Failed to execute command: " + err.Error()})
	}
	return ws.NewMessage("command_sent", gin.H{"command": command})
}

// GetCommandHistory returns command history for a server
// GET /api/v1/servers/:id/console/history?limit=50
func (h *ConsoleHandler) GetCommandHistory(c *gin.Context) {
	serverID := c.Param("id")
	if _, err := h.service.State(c.Request.Context(), serverID); err != nil {
		respondError(c, err)
		return
	}

	commands, err := h.commandHistory.Recent(c.Request.Context(), serverID, queryLimit(c, 50))
	if err != nil {
		h.logger.Error("failed to get command history", "server_id", serverID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get command history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"commands": commands,
		"count":    len(commands),
	})
}

// GetAutocomplete returns command autocomplete suggestions
// GET /api/v1/servers/:id/console/autocomplete?prefix=say
func (h *ConsoleHandler) GetAutocomplete(c *gin.Context) {
	serverID := c.Param("id")
	if _, err := h.service.State(c.Request.Context(), serverID); err != nil {
		respondError(c, err)
		return
	}

	suggestions, err := h.commandHistory.Autocomplete(c.Request.Context(), serverID, c.Query("prefix"), queryLimit(c, 10))
	if err != nil {
		h.logger.Error("failed to get autocomplete", "server_id", serverID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get autocomplete"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"suggestions": suggestions,
	})
}

func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return isOriginAllowed(origin, allowedOrigins)
		},
	}
}

func isOriginAllowed(origin string, allowedOrigins []string) bool {
	if origin == "" {
		return true
	}

	for _, allowedOrigin := range allowedOrigins {
		normalized := strings.TrimSpace(allowedOrigin)
		if normalized == "" {
			continue
		}
		if normalized == "*" || normalized == "0.0.0.0/0" || normalized == origin {
			return true
		}
	}

	return false
}
