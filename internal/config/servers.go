package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const serversFileName = "servers.yaml"

// ServerDefinition represents a game server configuration
type ServerDefinition struct {
	ID          string           `json:"id" yaml:"id"`
	Name        string           `json:"name" yaml:"name"`
	Description string           `json:"description" yaml:"description"`
	Server      GameServerConfig `json:"server" yaml:"server"`
	Runtime     RuntimeConfig    `json:"runtime,omitempty" yaml:"runtime,omitempty"`
}

// GameServerConfig describes how to launch the server process. Either
// Executable (with WorkingDirectory and Arguments) or JavaPath and ServerJar
// must be set; the Java form runs the jar from its own directory.
type GameServerConfig struct {
	Executable       string `json:"executable,omitempty" yaml:"executable,omitempty"`
	WorkingDirectory string `json:"working_directory,omitempty" yaml:"working_directory,omitempty"`
	Arguments        string `json:"arguments,omitempty" yaml:"arguments,omitempty"`

	JavaPath   string `json:"java_path,omitempty" yaml:"java_path,omitempty"`
	ServerJar  string `json:"server_jar,omitempty" yaml:"server_jar,omitempty"`
	ServerArgs string `json:"server_args,omitempty" yaml:"server_args,omitempty"`
}

// IsJava reports whether the definition uses the java + jar form.
func (g GameServerConfig) IsJava() bool {
	return g.Executable == "" && g.JavaPath != ""
}

// RuntimeConfig contains JVM options placed before -jar
type RuntimeConfig struct {
	JavaXms       string `json:"java_xms,omitempty" yaml:"java_xms,omitempty"`
	JavaXmx       string `json:"java_xmx,omitempty" yaml:"java_xmx,omitempty"`
	ExtraJavaArgs string `json:"extra_java_args,omitempty" yaml:"extra_java_args,omitempty"`
}

var (
	serverIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)
	memoryPattern   = regexp.MustCompile(`^[0-9]+[KkMmGg]?$`)
)

// LoadServers loads server definitions from YAML file
func LoadServers(configDir string) ([]ServerDefinition, error) {
	serversPath := filepath.Join(configDir, serversFileName)

	data, err := os.ReadFile(serversPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []ServerDefinition{}, nil
		}
		return nil, fmt.Errorf("failed to read servers file: %w", err)
	}

	var serversFile struct {
		Servers []ServerDefinition `yaml:"servers"`
	}

	if err := yaml.Unmarshal(data, &serversFile); err != nil {
		return nil, fmt.Errorf("failed to parse servers file: %w", err)
	}

	seen := make(map[string]bool, len(serversFile.Servers))
	for i := range serversFile.Servers {
		server := &serversFile.Servers[i]
		if err := ValidateServerDefinition(server); err != nil {
			return nil, fmt.Errorf("invalid server definition at index %d: %w", i, err)
		}
		if seen[server.ID] {
			return nil, fmt.Errorf("duplicate server ID %q", server.ID)
		}
		seen[server.ID] = true
	}

	if serversFile.Servers == nil {
		return []ServerDefinition{}, nil
	}
	return serversFile.Servers, nil
}

// SaveServers writes server definitions to a temporary file and renames it
// over servers.yaml.
func SaveServers(configDir string, servers []ServerDefinition) error {
	serversFile := struct {
		Servers []ServerDefinition `yaml:"servers"`
	}{
		Servers: servers,
	}

	data, err := yaml.Marshal(serversFile)
	if err != nil {
		return fmt.Errorf("failed to marshal servers: %w", err)
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	serversPath := filepath.Join(configDir, serversFileName)
	tmp := serversPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write servers file: %w", err)
	}
	if err := os.Rename(tmp, serversPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace servers file: %w", err)
	}

	return nil
}

// ValidateServerDefinition checks a definition and trims its string fields.
func ValidateServerDefinition(server *ServerDefinition) error {
	server.ID = strings.TrimSpace(server.ID)
	server.Name = strings.TrimSpace(server.Name)

	if server.ID == "" {
		return fmt.Errorf("server ID is required")
	}
	if !serverIDPattern.MatchString(server.ID) {
		return fmt.Errorf("server ID %q may only contain letters, digits, '.', '_' and '-'", server.ID)
	}
	if server.Name == "" {
		return fmt.Errorf("server name is required")
	}

	s := &server.Server
	switch {
	case s.Executable != "":
		if s.JavaPath != "" || s.ServerJar != "" {
			return fmt.Errorf("server executable and java_path/server_jar are mutually exclusive")
		}
		if s.WorkingDirectory == "" {
			return fmt.Errorf("server working_directory is required")
		}
		if !isValidPath(s.Executable) {
			return fmt.Errorf("server executable contains invalid characters")
		}
		if !isValidPath(s.WorkingDirectory) {
			return fmt.Errorf("server working_directory contains invalid characters")
		}
		if !filepath.IsAbs(s.Executable) || !filepath.IsAbs(s.WorkingDirectory) {
			return fmt.Errorf("server executable and working_directory must be absolute paths")
		}
		if !isValidArgs(s.Arguments) {
			return fmt.Errorf("server arguments contain invalid characters")
		}
	case s.JavaPath != "":
		if s.ServerJar == "" {
			return fmt.Errorf("server server_jar is required with java_path")
		}
		if !isValidPath(s.JavaPath) || !isValidPath(s.ServerJar) {
			return fmt.Errorf("server java_path or server_jar contains invalid characters")
		}
		if !filepath.IsAbs(s.JavaPath) || !filepath.IsAbs(s.ServerJar) {
			return fmt.Errorf("server java_path and server_jar must be absolute paths")
		}
		if !isValidArgs(s.ServerArgs) {
			return fmt.Errorf("server server_args contain invalid characters")
		}
	default:
		return fmt.Errorf("server executable or java_path is required")
	}

	r := server.Runtime
	if r.JavaXms != "" && !memoryPattern.MatchString(r.JavaXms) {
		return fmt.Errorf("runtime java_xms %q is not a memory size", r.JavaXms)
	}
	if r.JavaXmx != "" && !memoryPattern.MatchString(r.JavaXmx) {
		return fmt.Errorf("runtime java_xmx %q is not a memory size", r.JavaXmx)
	}
	if !isValidArgs(r.ExtraJavaArgs) {
		return fmt.Errorf("runtime extra_java_args contain invalid characters")
	}

	return nil
}

func isValidPath(s string) bool {
	// Paths end up on a command line and in identity checks, never in a shell.
	return !strings.ContainsAny(s, "\"\n\r\x00")
}

func isValidArgs(s string) bool {
	// Arguments are a single line handed to the process.
	return !strings.ContainsAny(s, "\n\r\x00")
}
