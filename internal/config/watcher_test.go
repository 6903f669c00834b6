package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestServerManagerWatchReloads(t *testing.T) {
	dir := t.TempDir()
	manager, err := NewServerManager(testLogger(), dir)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan []ServerDefinition, 4)
	if err := manager.Watch(ctx, func(defs []ServerDefinition) { reloaded <- defs }); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	// Another writer, such as an operator editing the file.
	if err := SaveServers(dir, []ServerDefinition{javaServer("watched")}); err != nil {
		t.Fatalf("SaveServers: %v", err)
	}

	select {
	case defs := <-reloaded:
		if len(defs) != 1 || defs[0].ID != "watched" {
			t.Fatalf("reloaded definitions = %+v", defs)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("servers.yaml change was not picked up")
	}
	if _, found := manager.GetByID("watched"); !found {
		t.Fatal("manager does not serve the reloaded definition")
	}

	// A broken file keeps the previous definitions.
	if err := os.WriteFile(filepath.Join(dir, serversFileName), []byte("servers: [\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	time.Sleep(5 * reloadDelay)
	if _, found := manager.GetByID("watched"); !found {
		t.Fatal("invalid file replaced the definitions")
	}
}
