// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
matrix:
  homeserver: "https://matrix.example.org"
  user_id: "@watcher:example.org"
  access_token: "syt-test"
  allowed_rooms:
    - "!room1:example.org"

database:
  path: "./test.db"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Matrix.Homeserver != "https://matrix.example.org" {
		t.Errorf("Homeserver = %q", cfg.Matrix.Homeserver)
	}
	if cfg.Matrix.UserID != "@watcher:example.org" {
		t.Errorf("UserID = %q", cfg.Matrix.UserID)
	}
	if len(cfg.Matrix.AllowedRooms) != 1 || cfg.Matrix.AllowedRooms[0] != "!room1:example.org" {
		t.Errorf("AllowedRooms = %v", cfg.Matrix.AllowedRooms)
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_ACCESS_TOKEN", "syt-secret")

	configPath := writeConfig(t, `
matrix:
  homeserver: "https://matrix.example.org"
  user_id: "@watcher:example.org"
  access_token: "${TEST_ACCESS_TOKEN}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Matrix.AccessToken != "syt-secret" {
		t.Errorf("AccessToken = %q, want expanded env value", cfg.Matrix.AccessToken)
	}
}

func TestLoad_MissingHomeserver(t *testing.T) {
	configPath := writeConfig(t, `
matrix:
  user_id: "@watcher:example.org"
  access_token: "syt-test"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for missing homeserver")
	}
	if !strings.Contains(err.Error(), "homeserver") {
		t.Errorf("error = %v, want mention of homeserver", err)
	}
}

func TestLoad_DefaultDatabasePath(t *testing.T) {
	configPath := writeConfig(t, `
matrix:
  homeserver: "https://matrix.example.org"
  user_id: "@watcher:example.org"
  access_token: "syt-test"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path == "" {
		t.Error("Database.Path should default to a non-empty path")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file")
	}
}
