package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.ServerPort != 8420 {
		t.Errorf("ServerPort = %d, want %d", cfg.ServerPort, 8420)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.PublicUser != "" {
		t.Error("PublicUser should default to empty")
	}
	if cfg.UserTimezone != "UTC" {
		t.Errorf("UserTimezone = %q, want %q", cfg.UserTimezone, "UTC")
	}
}

func TestLoad_NonExistentFile(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() should not error for missing file: %v", err)
	}
	if cfg.ServerPort != 8420 {
		t.Errorf("should return defaults, got ServerPort = %d", cfg.ServerPort)
	}
}

func TestLoad_ValidConfig(t *testing.T) {
	dir := t.TempDir()
	downloadDir := filepath.Join(dir, "downloads")
	tempDir := filepath.Join(dir, "scratch")
	filePath := filepath.Join(dir, "config.toml")

	data := `
download_dir = "` + downloadDir + `"
temp_dir = "` + tempDir + `"
server_host = "0.0.0.0"
server_port = 9000
log_level = "debug"
user_timezone = "America/New_York"
public_user = "guest"
`
	os.WriteFile(filePath, []byte(data), 0644)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.ServerPort != 9000 {
		t.Errorf("ServerPort = %d, want 9000", cfg.ServerPort)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	if cfg.PublicUser != "guest" {
		t.Errorf("PublicUser = %q, want %q", cfg.PublicUser, "guest")
	}
	if cfg.UserTimezone != "America/New_York" {
		t.Errorf("UserTimezone = %q, want %q", cfg.UserTimezone, "America/New_York")
	}
}

func TestLoad_CorruptedFile(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "config.toml")

	os.WriteFile(filePath, []byte("not = valid [[[ toml"), 0644)

	_, err := Load(dir)
	if err == nil {
		t.Fatal("Load() should error for corrupted TOML")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	downloadDir := filepath.Join(dir, "downloads")
	tempDir := filepath.Join(dir, "scratch")
	filePath := filepath.Join(dir, "config.toml")

	data := `
download_dir = "` + downloadDir + `"
temp_dir = "` + tempDir + `"
server_host = "127.0.0.1"
server_port = 8420
`
	os.WriteFile(filePath, []byte(data), 0644)

	t.Setenv("REAPER_SERVER_HOST", "0.0.0.0")
	t.Setenv("REAPER_LOG_LEVEL", "warn")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.ServerHost != "0.0.0.0" {
		t.Errorf("ServerHost = %q, want %q (env override)", cfg.ServerHost, "0.0.0.0")
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want %q (env override)", cfg.LogLevel, "warn")
	}
}

func TestLoad_EmptyDirsFail(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "config.toml")

	data := `
download_dir = ""
temp_dir = ""
`
	os.WriteFile(filePath, []byte(data), 0644)

	_, err := Load(dir)
	if err == nil {
		t.Fatal("Load() should error when download_dir/temp_dir are empty")
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.filePath = filepath.Join(dir, "config.toml")
	cfg.ServerPort = 9999

	if err := cfg.Save(); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	reloaded := Default()
	data, err := os.ReadFile(cfg.filePath)
	if err != nil {
		t.Fatalf("failed to read saved file: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("saved config.toml is empty")
	}
	_ = reloaded
}

func TestConfig_ThreadSafety(t *testing.T) {
	cfg := Default()
	cfg.filePath = filepath.Join(t.TempDir(), "config.toml")

	done := make(chan struct{})

	go func() {
		for i := 0; i < 100; i++ {
			cfg.Get()
		}
		close(done)
	}()

	for i := 0; i < 100; i++ {
		cfg.Update(func(c *Config) {
			c.ServerPort = 8421
		})
	}

	<-done
}
