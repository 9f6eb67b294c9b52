package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// setupTestHome points HOME at a temp dir and returns the assistd config dir inside it.
func setupTestHome(t *testing.T) string {
	t.Helper()

	home := t.TempDir()
	t.Setenv("HOME", home)

	configDir := filepath.Join(home, ".config", "assistd")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}
	return configDir
}

func writeConfig(t *testing.T, dir, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	// WriteFile is subject to umask; force the permission under test.
	if err := os.Chmod(path, perm); err != nil {
		t.Fatalf("Failed to chmod test config: %v", err)
	}
	return path
}

func TestLoadWithFile_ValidYAML(t *testing.T) {
	dir := setupTestHome(t)

	path := writeConfig(t, dir, `server:
  http_port: 9090
  shutdown_timeout: 3s
  allowed_origins:
    - https://example-garage.test

provider:
  name: anthropic
  api_key: sk-ant-file
  model: claude-3-5-haiku-latest

assistant:
  chat_turn_cap: 12
  completion_timeout: 8s
`, 0600)

	cfg, err := LoadWithFile(path)
	if err != nil {
		t.Fatalf("LoadWithFile() error = %v, want nil", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.ShutdownTimeout != 3*time.Second {
		t.Errorf("Server.ShutdownTimeout = %v, want 3s", cfg.Server.ShutdownTimeout)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "https://example-garage.test" {
		t.Errorf("Server.AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Provider.Name != "anthropic" || cfg.Provider.APIKey.Value() != "sk-ant-file" {
		t.Errorf("Provider = %s/%s", cfg.Provider.Name, cfg.Provider.APIKey)
	}
	if cfg.Assistant.ChatTurnCap != 12 {
		t.Errorf("Assistant.ChatTurnCap = %d, want 12", cfg.Assistant.ChatTurnCap)
	}
	// untouched caps fall back to defaults
	if cfg.Assistant.GreeterTurnCap != 16 {
		t.Errorf("Assistant.GreeterTurnCap = %d, want 16", cfg.Assistant.GreeterTurnCap)
	}
}

func TestLoadWithFile_EnvironmentOverride(t *testing.T) {
	dir := setupTestHome(t)

	path := writeConfig(t, dir, `server:
  http_port: 9090
provider:
  name: disabled
`, 0600)

	t.Setenv("SERVER_HTTP_PORT", "7777")
	t.Setenv("ASSISTANT_CHAT_TURN_CAP", "5")

	cfg, err := LoadWithFile(path)
	if err != nil {
		t.Fatalf("LoadWithFile() error = %v", err)
	}
	if cfg.Server.Port != 7777 {
		t.Errorf("Server.Port = %d, want 7777 (env override)", cfg.Server.Port)
	}
	if cfg.Assistant.ChatTurnCap != 5 {
		t.Errorf("Assistant.ChatTurnCap = %d, want 5 (env override)", cfg.Assistant.ChatTurnCap)
	}
}

func TestLoadWithFile_MissingFileUsesDefaults(t *testing.T) {
	dir := setupTestHome(t)
	t.Setenv("PROVIDER_NAME", "disabled")

	cfg, err := LoadWithFile(filepath.Join(dir, "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadWithFile() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want default 8080", cfg.Server.Port)
	}
}

func TestLoadWithFile_InsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission model differs on windows")
	}
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "provider:\n  name: disabled\n", 0644)

	_, err := LoadWithFile(path)
	if err == nil {
		t.Fatal("LoadWithFile() accepted a world-readable config")
	}
	if !strings.Contains(err.Error(), "insecure config file permissions") {
		t.Errorf("error = %v, want permission error", err)
	}
}

func TestLoadWithFile_PathOutsideAllowedDirs(t *testing.T) {
	setupTestHome(t)
	outside := filepath.Join(t.TempDir(), "config.yaml")

	_, err := LoadWithFile(outside)
	if err == nil {
		t.Fatal("LoadWithFile() accepted a path outside allowed dirs")
	}
	if !strings.Contains(err.Error(), "config path validation failed") {
		t.Errorf("error = %v", err)
	}
}

func TestLoadWithFile_SiblingPrefixRejected(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	sibling := filepath.Join(home, ".config", "assistd-evil", "config.yaml")

	if err := validateConfigPath(sibling); err == nil {
		t.Fatal("validateConfigPath() accepted a sibling directory sharing the prefix")
	}
}

func TestLoadWithFile_InvalidYAML(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "server: [unterminated\n", 0600)

	if _, err := LoadWithFile(path); err == nil {
		t.Fatal("LoadWithFile() accepted invalid YAML")
	}
}
