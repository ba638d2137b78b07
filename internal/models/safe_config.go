package models

import (
	"fmt"
	"os"
	"sync"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// SafeConfig provides thread-safe access to configuration.
// It uses RWMutex to allow concurrent reads while serializing writes.
//
// SafeConfig lets "apply --watch" pick up a new configuration on SIGHUP
// without restarting:
//   - Operators can rotate credentials or point at another management server
//   - Invalid configurations are rejected without affecting the running config
//
// Usage:
//
//	safeCfg := models.NewSafeConfig(cfg)
//	current := safeCfg.Get()
//	changed, err := safeCfg.ReloadConfig("/path/to/config.yaml")
type SafeConfig struct {
	mu sync.RWMutex
	C  *Config
}

// NewSafeConfig creates a new SafeConfig with the provided initial config.
// The config is stored by reference; the caller should not modify it after
// passing it to NewSafeConfig.
func NewSafeConfig(cfg *Config) *SafeConfig {
	return &SafeConfig{
		C: cfg,
	}
}

// Get returns the current configuration (read-locked).
// The returned pointer is safe to use until the next reload.
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.C
}

// ReloadConfig loads and validates a new configuration from the file.
// Validation happens before acquiring the write lock so an invalid file
// never replaces the running configuration.
//
// Returns:
//   - serverChanged: true if the management server address or domain changed
//     (the caller must open a new session against the new target)
//   - err: error if file cannot be read or validation fails
func (sc *SafeConfig) ReloadConfig(configPath string) (serverChanged bool, err error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return false, fmt.Errorf("config file not found: %s", configPath)
	}

	f, err := os.Open(configPath)
	if err != nil {
		return false, fmt.Errorf("failed to open config: %w", err)
	}
	defer func() { _ = f.Close() }()

	var newCfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&newCfg); err != nil {
		return false, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := newCfg.Validate(); err != nil {
		return false, fmt.Errorf("config validation failed: %w", err)
	}

	sc.mu.Lock()
	old := sc.C.MgmtServer
	sc.C = &newCfg
	sc.mu.Unlock()

	serverChanged = old.Host != newCfg.MgmtServer.Host ||
		old.Port != newCfg.MgmtServer.Port ||
		old.Domain != newCfg.MgmtServer.Domain

	log.Info("Configuration reloaded successfully")
	if serverChanged {
		log.Info("Management server target changed, a new session will be opened")
	}

	return serverChanged, nil
}
