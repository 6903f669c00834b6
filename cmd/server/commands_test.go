package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMigrateCommand(t *testing.T) {
	root := t.TempDir()
	dbPath := filepath.Join(root, "data", "serverhost.db")
	configPath := filepath.Join(root, "configs", "config.yaml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	cfg := "database:\n  path: " + dbPath + "\nlogging:\n  level: error\n"
	if err := os.WriteFile(configPath, []byte(cfg), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cmd := NewRootCmd()
	cmd.SetArgs([]string{"--config", configPath, "migrate"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("database not created: %v", err)
	}
}

func TestRootCommandRejectsArguments(t *testing.T) {
	cmd := NewRootCmd()
	cmd.SetArgs([]string{"unexpected"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected an error for a stray argument")
	}
}
