package server

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/TheGojiOG/serverhost/internal/config"
	"github.com/TheGojiOG/serverhost/internal/process"
)

// StartInfo describes a Java game server launched from its jar.
type StartInfo struct {
	JavaPath   string
	ServerJar  string
	ServerArgs string
	// JVMArgs go before -jar.
	JVMArgs string
}

// Factory builds server hosts. The resolvers are shared by every host and
// default to the ones matching the running OS.
type Factory struct {
	Logger           *slog.Logger
	HistoryLines     int
	IdentityResolver process.IdentityResolver
	ExitCodeResolver process.ExitCodeResolver
}

// FromStartInfo runs the jar from its own directory with
// `-jar "<jar>" <server args>`.
func (f *Factory) FromStartInfo(info StartInfo) *Host {
	args := strings.TrimSpace(info.JVMArgs + ` -jar "` + info.ServerJar + `" ` + info.ServerArgs)
	return f.newHost(process.HostOptions{
		Executable: info.JavaPath,
		WorkingDir: filepath.Dir(info.ServerJar),
		Arguments:  args,
	})
}

// FromDefinition builds a host for a configured server, using the Java form
// when the definition has no plain executable.
func (f *Factory) FromDefinition(def config.ServerDefinition) (*Host, error) {
	switch {
	case def.Server.IsJava():
		if def.Server.ServerJar == "" {
			return nil, fmt.Errorf("server %s: server_jar is required with java_path", def.ID)
		}
		return f.FromStartInfo(StartInfo{
			JavaPath:   def.Server.JavaPath,
			ServerJar:  def.Server.ServerJar,
			ServerArgs: def.Server.ServerArgs,
			JVMArgs:    jvmArgs(def.Runtime),
		}), nil
	case def.Server.Executable != "":
		workingDir := def.Server.WorkingDirectory
		if workingDir == "" {
			workingDir = filepath.Dir(def.Server.Executable)
		}
		return f.newHost(process.HostOptions{
			Executable: def.Server.Executable,
			WorkingDir: workingDir,
			Arguments:  strings.TrimSpace(def.Server.Arguments),
		}), nil
	default:
		return nil, fmt.Errorf("server %s: no executable configured", def.ID)
	}
}

func (f *Factory) newHost(opts process.HostOptions) *Host {
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}
	opts.IdentityResolver = f.IdentityResolver
	opts.ExitCodeResolver = f.ExitCodeResolver
	return NewHost(logger, process.NewHost(logger, opts), f.HistoryLines)
}

func jvmArgs(rt config.RuntimeConfig) string {
	var args []string
	if rt.JavaXms != "" {
		args = append(args, "-Xms"+rt.JavaXms)
	}
	if rt.JavaXmx != "" {
		args = append(args, "-Xmx"+rt.JavaXmx)
	}
	if extra := strings.TrimSpace(rt.ExtraJavaArgs); extra != "" {
		args = append(args, extra)
	}
	return strings.Join(args, " ")
}
