package config

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// ServerManager handles thread-safe access to server configurations
type ServerManager struct {
	configDir string
	logger    *slog.Logger
	mutex     sync.RWMutex
	servers   []ServerDefinition
}

// NewServerManager creates a new server manager and loads servers.yaml
func NewServerManager(logger *slog.Logger, configDir string) (*ServerManager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sm := &ServerManager{
		configDir: configDir,
		logger:    logger.With("component", "server_config"),
		servers:   []ServerDefinition{},
	}

	if err := sm.Load(); err != nil {
		return nil, err
	}

	return sm, nil
}

// Load reads the configuration from disk
func (sm *ServerManager) Load() error {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	servers, err := LoadServers(sm.configDir)
	if err != nil {
		return err
	}
	sm.servers = servers
	sm.logger.Info("loaded server definitions", "count", len(servers), "config_dir", sm.configDir)
	return nil
}

// Save writes the current configuration to disk
func (sm *ServerManager) Save() error {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()

	if err := SaveServers(sm.configDir, sm.servers); err != nil {
		return err
	}
	sm.logger.Info("saved server definitions", "count", len(sm.servers))
	return nil
}

// GetAll returns a copy of all server definitions
func (sm *ServerManager) GetAll() []ServerDefinition {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()

	return slices.Clone(sm.servers)
}

// GetByID returns a server definition by ID
func (sm *ServerManager) GetByID(id string) (ServerDefinition, bool) {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()

	for _, s := range sm.servers {
		if s.ID == id {
			return s, true
		}
	}
	return ServerDefinition{}, false
}

// Add adds a new server definition and returns it with its final ID. Call
// Save to persist.
func (sm *ServerManager) Add(server ServerDefinition) (ServerDefinition, error) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	if server.ID == "" {
		server.ID = "server-" + uuid.NewString()[:8]
	}

	if err := ValidateServerDefinition(&server); err != nil {
		return ServerDefinition{}, fmt.Errorf("invalid server definition: %w", err)
	}

	for _, s := range sm.servers {
		if s.ID == server.ID {
			return ServerDefinition{}, fmt.Errorf("server with ID %s already exists", server.ID)
		}
	}

	sm.servers = append(sm.servers, server)
	return server, nil
}

// Update replaces an existing server definition. Call Save to persist.
func (sm *ServerManager) Update(server ServerDefinition) error {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	if err := ValidateServerDefinition(&server); err != nil {
		return fmt.Errorf("invalid server definition: %w", err)
	}

	for i, s := range sm.servers {
		if s.ID == server.ID {
			sm.servers[i] = server
			return nil
		}
	}

	return fmt.Errorf("server with ID %s not found", server.ID)
}

// Delete removes a server definition. Call Save to persist.
func (sm *ServerManager) Delete(id string) error {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	for i, s := range sm.servers {
		if s.ID == id {
			sm.servers = slices.Delete(sm.servers, i, i+1)
			return nil
		}
	}

	return fmt.Errorf("server with ID %s not found", id)
}
