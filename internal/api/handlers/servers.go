package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/TheGojiOG/serverhost/internal/config"
	"github.com/TheGojiOG/serverhost/internal/console"
	"github.com/TheGojiOG/serverhost/internal/server"
	"github.com/TheGojiOG/serverhost/internal/state"
)

// ServerService is the supervision API the handlers drive.
// *server.Manager satisfies it.
type ServerService interface {
	List(ctx context.Context) ([]state.ServerState, error)
	State(ctx context.Context, id string) (state.ServerState, error)
	Start(ctx context.Context, id string) (state.ServerState, error)
	Stop(ctx context.Context, id string) (state.ServerState, error)
	Restart(ctx context.Context, id string) (state.ServerState, error)
	SendCommand(ctx context.Context, id, command string) error
	Subscribe(ctx context.Context, id string, capacity int) (<-chan console.Line, error)
	Forget(ctx context.Context, id string) error
}

// DefinitionStore holds the editable server definitions.
// *config.ServerManager satisfies it.
type DefinitionStore interface {
	server.Definitions
	Add(def config.ServerDefinition) (config.ServerDefinition, error)
	Update(def config.ServerDefinition) error
	Delete(id string) error
	Save() error
}

var _ DefinitionStore = (*config.ServerManager)(nil)

var _ ServerService = (*server.Manager)(nil)

// ServerHandler handles server management requests
type ServerHandler struct {
	logger      *slog.Logger
	definitions DefinitionStore
	service     ServerService
	events      *state.EventLog
}

// NewServerHandler creates a new server handler
func NewServerHandler(logger *slog.Logger, definitions DefinitionStore, service ServerService, events *state.EventLog) *ServerHandler {
	return &ServerHandler{
		logger:      logger.With("component", "server_handler"),
		definitions: definitions,
		service:     service,
		events:      events,
	}
}

// ServerListItem is one entry of GET /servers.
type ServerListItem struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	State       state.ServerState `json:"state"`
}

// ServerDetail is the response of GET /servers/:id.
type ServerDetail struct {
	Definition config.ServerDefinition `json:"definition"`
	State      state.ServerState       `json:"state"`
}

// CommandRequest is the body of POST /servers/:id/command.
type CommandRequest struct {
	Command string `json:"command" binding:"required"`
}

// ListServers returns all configured servers with their state
// GET /api/v1/servers
func (h *ServerHandler) ListServers(c *gin.Context) {
	items, err := h.listItems(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list server states", "error", err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *ServerHandler) listItems(ctx context.Context) ([]ServerListItem, error) {
	states, err := h.service.List(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]state.ServerState, len(states))
	for _, st := range states {
		byID[st.ID] = st
	}

	defs := h.definitions.GetAll()
	items := make([]ServerListItem, 0, len(defs))
	for _, def := range defs {
		st, ok := byID[def.ID]
		if !ok {
			st = state.ServerState{ID: def.ID, Status: state.StatusStopped}
		}
		items = append(items, ServerListItem{
			ID:          def.ID,
			Name:        def.Name,
			Description: def.Description,
			State:       st,
		})
	}
	return items, nil
}

// GetServer returns a server definition and its state
// GET /api/v1/servers/:id
func (h *ServerHandler) GetServer(c *gin.Context) {
	id := c.Param("id")
	def, found := h.definitions.GetByID(id)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Server not found"})
		return
	}
	st, err := h.service.State(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ServerDetail{Definition: def, State: st})
}

// CreateServer adds a server definition
// POST /api/v1/servers
func (h *ServerHandler) CreateServer(c *gin.Context) {
	var def config.ServerDefinition
	if err := c.ShouldBindJSON(&def); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.definitions.Add(def)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.definitions.Save(); err != nil {
		h.logger.Error("failed to save server definitions", "error", err)
		if delErr := h.definitions.Delete(created.ID); delErr != nil {
			h.logger.Error("failed to roll back server definition", "server_id", created.ID, "error", delErr)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save server definitions"})
		return
	}

	h.logger.Info("server created", "server_id", created.ID, "name", created.Name)
	c.JSON(http.StatusCreated, created)
}

// UpdateServer replaces the definition of a stopped server
// PUT /api/v1/servers/:id
func (h *ServerHandler) UpdateServer(c *gin.Context) {
	id := c.Param("id")
	previous, found := h.definitions.GetByID(id)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Server not found"})
		return
	}

	var def config.ServerDefinition
	if err := c.ShouldBindJSON(&def); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	def.ID = id

	if !h.requireStopped(c, id) {
		return
	}
	if err := h.definitions.Update(def); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.definitions.Save(); err != nil {
		h.logger.Error("failed to save server definitions", "error", err)
		if rbErr := h.definitions.Update(previous); rbErr != nil {
			h.logger.Error("failed to roll back server definition", "server_id", id, "error", rbErr)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save server definitions"})
		return
	}

	h.logger.Info("server updated", "server_id", id)
	c.JSON(http.StatusOK, def)
}

// DeleteServer removes a stopped server and its persisted state
// DELETE /api/v1/servers/:id
func (h *ServerHandler) DeleteServer(c *gin.Context) {
	id := c.Param("id")
	if _, found := h.definitions.GetByID(id); !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Server not found"})
		return
	}

	if err := h.service.Forget(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	if err := h.definitions.Delete(id); err != nil {
		respondError(c, err)
		return
	}
	if err := h.definitions.Save(); err != nil {
		h.logger.Error("failed to save server definitions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save server definitions"})
		return
	}

	h.logger.Info("server deleted", "server_id", id)
	c.Status(http.StatusNoContent)
}

func (h *ServerHandler) requireStopped(c *gin.Context, id string) bool {
	st, err := h.service.State(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return false
	}
	if st.Status.Active() {
		c.JSON(http.StatusConflict, gin.H{"error": "Server must be stopped first", "status": st.Status})
		return false
	}
	return true
}

// StartServer starts a game server
// POST /api/v1/servers/:id/start
func (h *ServerHandler) StartServer(c *gin.Context) {
	h.lifecycle(c, "start", h.service.Start)
}

// StopServer stops a game server
// POST /api/v1/servers/:id/stop
func (h *ServerHandler) StopServer(c *gin.Context) {
	h.lifecycle(c, "stop", h.service.Stop)
}

// RestartServer restarts a game server
// POST /api/v1/servers/:id/restart
func (h *ServerHandler) RestartServer(c *gin.Context) {
	h.lifecycle(c, "restart", h.service.Restart)
}

func (h *ServerHandler) lifecycle(c *gin.Context, action string, op func(context.Context, string) (state.ServerState, error)) {
	id := c.Param("id")
	st, err := op(c.Request.Context(), id)
	if err != nil {
		h.logger.Warn("server operation failed", "action", action, "server_id", id, "error", err)
		respondError(c, err)
		return
	}
	h.logger.Info("server operation completed", "action", action, "server_id", id, "status", st.Status)
	c.JSON(http.StatusOK, st)
}

// ExecuteCommand writes a command to the server console
// POST /api/v1/servers/:id/command
func (h *ServerHandler) ExecuteCommand(c *gin.Context) {
	id := c.Param("id")

	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.SendCommand(c.Request.Context(), id, req.Command); err != nil {
		h.logger.Warn("failed to execute command", "server_id", id, "error", err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetServerEvents returns the lifecycle history of a server
// GET /api/v1/servers/:id/events?limit=50
func (h *ServerHandler) GetServerEvents(c *gin.Context) {
	id := c.Param("id")
	if _, found := h.definitions.GetByID(id); !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Server not found"})
		return
	}

	events, err := h.events.Recent(c.Request.Context(), id, queryLimit(c, 50))
	if err != nil {
		h.logger.Error("failed to get server events", "server_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get server events"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

func queryLimit(c *gin.Context, fallback int) int {
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}
