// Package config loads and hot-reloads reaper's TOML configuration file,
// validating and creating the configured directories on load and watching
// the file for live reloads.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"

	apperr "reaper/internal/errors"
	"reaper/internal/logger"
)

// Config is the daemon's persistent configuration.
type Config struct {
	DownloadDir  string `toml:"download_dir"`
	TempDir      string `toml:"temp_dir"`
	ServerHost   string `toml:"server_host"`
	ServerPort   int    `toml:"server_port"`
	LogLevel     string `toml:"log_level"`
	UserTimezone string `toml:"user_timezone"`
	PublicUser   string `toml:"public_user"`

	// DesktopNotifications gates the go-toast desktop alerts the Monitor
	// and Scheduler fire; off by default so a headless server install
	// doesn't spam a toast backend it doesn't have.
	DesktopNotifications bool `toml:"desktop_notifications"`

	mu       sync.RWMutex
	filePath string
}

// Default returns the built-in configuration used when no file exists yet.
func Default() *Config {
	return &Config{
		DownloadDir:          "./downloads",
		TempDir:              "./scratch",
		ServerHost:           "127.0.0.1",
		ServerPort:           8420,
		LogLevel:             "info",
		UserTimezone:         "UTC",
		PublicUser:           "",
		DesktopNotifications: false,
	}
}

// Load reads config.toml from configDir, applies a sibling .env overlay via
// godotenv, then REAPER_* environment overrides, and validates that
// download_dir and temp_dir are writable. A missing file is not an error;
// callers typically Save() the defaults back immediately.
func Load(configDir string) (*Config, error) {
	envPath := filepath.Join(configDir, ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return nil, apperr.Wrap("config.Load", err)
		}
	}

	filePath := filepath.Join(configDir, "config.toml")
	cfg := Default()
	cfg.filePath = filePath

	if _, err := os.Stat(filePath); err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(cfg)
			if err := cfg.validateDirs(); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, apperr.Wrap("config.Load", err)
	}

	if _, err := toml.DecodeFile(filePath, cfg); err != nil {
		return nil, apperr.WrapWithMessage("config.Load", apperr.ErrValidation, "config.toml is not valid TOML")
	}
	cfg.filePath = filePath

	applyEnvOverrides(cfg)

	if err := cfg.validateDirs(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("REAPER_DOWNLOAD_DIR"); v != "" {
		cfg.DownloadDir = v
	}
	if v := os.Getenv("REAPER_TEMP_DIR"); v != "" {
		cfg.TempDir = v
	}
	if v := os.Getenv("REAPER_SERVER_HOST"); v != "" {
		cfg.ServerHost = v
	}
	if v := os.Getenv("REAPER_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

// validateDirs ensures download_dir and temp_dir exist and are writable,
// creating them if missing.
func (c *Config) validateDirs() error {
	for _, dir := range []string{c.DownloadDir, c.TempDir} {
		if dir == "" {
			return apperr.NewWithMessage("config.validateDirs", apperr.ErrValidation, "download_dir and temp_dir must be set")
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return apperr.WrapWithMessage("config.validateDirs", err, fmt.Sprintf("cannot create or write %s", dir))
		}
		probe := filepath.Join(dir, ".reaper-write-check")
		if err := os.WriteFile(probe, []byte{}, 0644); err != nil {
			return apperr.WrapWithMessage("config.validateDirs", err, fmt.Sprintf("%s is not writable", dir))
		}
		os.Remove(probe)
	}
	return nil
}

// Save writes the current config to disk as TOML.
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(c.filePath), 0755); err != nil {
		return apperr.Wrap("config.Save", err)
	}

	f, err := os.Create(c.filePath)
	if err != nil {
		return apperr.Wrap("config.Save", err)
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(c)
}

// Update executes fn with the mutex held.
func (c *Config) Update(fn func(*Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c)
}

// Get returns a copy of the config safe for concurrent read.
func (c *Config) Get() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Config{
		DownloadDir:          c.DownloadDir,
		TempDir:              c.TempDir,
		ServerHost:           c.ServerHost,
		ServerPort:           c.ServerPort,
		LogLevel:             c.LogLevel,
		UserTimezone:         c.UserTimezone,
		PublicUser:           c.PublicUser,
		DesktopNotifications: c.DesktopNotifications,
	}
}

// Watch starts an fsnotify watcher on the config file and invokes onReload
// with the freshly-parsed Config whenever the file changes on disk. The
// returned stop func closes the watcher; callers should defer it.
func (c *Config) Watch(onReload func(*Config)) (func() error, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, apperr.Wrap("config.Watch", err)
	}

	dir := filepath.Dir(c.filePath)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, apperr.Wrap("config.Watch", err)
	}

	go func() {
		var debounce *time.Timer
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(c.filePath) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(200*time.Millisecond, func() {
					reloaded, err := Load(dir)
					if err != nil {
						logger.Log.Warn().Err(err).Msg("config reload failed, keeping previous config")
						return
					}
					onReload(reloaded)
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Log.Warn().Err(err).Msg("config watcher error")
			}
		}
	}()

	return watcher.Close, nil
}
