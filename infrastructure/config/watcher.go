package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ConfigWatcher watches the dynamic configuration file for changes
type ConfigWatcher struct {
	path     string
	watcher  *fsnotify.Watcher
	current  *DynamicConfig
	mu       sync.RWMutex
	onChange []func(*DynamicConfig)
	logger   *zap.Logger
	stopCh   chan struct{}
}

// DynamicConfig represents runtime-changeable configuration. The file
// may be JSON or YAML, picked by extension.
type DynamicConfig struct {
	Features   Features         `json:"features" yaml:"features"`
	Limits     Limits           `json:"limits" yaml:"limits"`
	Generation GenerationLimits `json:"generation" yaml:"generation"`
	Metadata   ConfigMetadata   `json:"metadata" yaml:"metadata"`
}

// Limits holds canvas-level limits
type Limits struct {
	MaxCardsPerCanvas int `json:"maxCardsPerCanvas" yaml:"maxCardsPerCanvas"`
	MaxEdgesPerCanvas int `json:"maxEdgesPerCanvas" yaml:"maxEdgesPerCanvas"`
	MaxHistoryDepth   int `json:"maxHistoryDepth" yaml:"maxHistoryDepth"`
	MaxAncestorDepth  int `json:"maxAncestorDepth" yaml:"maxAncestorDepth"`
}

// GenerationLimits holds provider-call limits
type GenerationLimits struct {
	TimeoutSeconds  int `json:"timeoutSeconds" yaml:"timeoutSeconds"`
	MaxOutputTokens int `json:"maxOutputTokens" yaml:"maxOutputTokens"`
}

// ConfigMetadata holds metadata about the configuration
type ConfigMetadata struct {
	Version   string    `json:"version" yaml:"version"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"updatedAt"`
	UpdatedBy string    `json:"updatedBy" yaml:"updatedBy"`
}

// NewConfigWatcher creates a new configuration watcher
func NewConfigWatcher(configPath string, logger *zap.Logger) (*ConfigWatcher, error) {
	config, err := loadConfigFromFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load initial config: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	if err := watcher.Add(configPath); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch config file: %w", err)
	}

	// Watch the directory too: editors and atomic saves replace the
	// file rather than writing it in place.
	dir := filepath.Dir(configPath)
	if err := watcher.Add(dir); err != nil {
		logger.Warn("Failed to watch config directory", zap.Error(err))
	}

	return &ConfigWatcher{
		path:     configPath,
		watcher:  watcher,
		current:  config,
		onChange: make([]func(*DynamicConfig), 0),
		logger:   logger,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start begins watching for configuration changes
func (w *ConfigWatcher) Start() {
	go w.watchLoop()
	w.logger.Info("Configuration watcher started", zap.String("path", w.path))
}

// Stop stops watching for configuration changes
func (w *ConfigWatcher) Stop() {
	close(w.stopCh)
	w.watcher.Close()
	w.logger.Info("Configuration watcher stopped")
}

func (w *ConfigWatcher) watchLoop() {
	// Debounce so editors that write in several bursts trigger one
	// reload.
	var debounceTimer *time.Timer
	debounceDuration := 100 * time.Millisecond

	for {
		select {
		case <-w.stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDuration, func() {
					w.handleConfigChange()
				})
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", zap.Error(err))
		}
	}
}

func (w *ConfigWatcher) handleConfigChange() {
	w.logger.Info("Configuration file changed, reloading", zap.String("path", w.path))

	newConfig, err := loadConfigFromFile(w.path)
	if err != nil {
		w.logger.Error("Failed to reload configuration", zap.Error(err))
		return
	}

	if err := w.validateConfig(newConfig); err != nil {
		w.logger.Error("Invalid configuration, keeping current", zap.Error(err))
		return
	}

	w.mu.Lock()
	oldConfig := w.current
	w.current = newConfig
	handlers := append(([]func(*DynamicConfig))(nil), w.onChange...)
	w.mu.Unlock()

	w.logConfigChanges(oldConfig, newConfig)

	for _, handler := range handlers {
		go handler(newConfig)
	}

	w.logger.Info("Configuration reloaded successfully",
		zap.String("version", newConfig.Metadata.Version),
	)
}

func (w *ConfigWatcher) validateConfig(config *DynamicConfig) error {
	if config.Limits.MaxCardsPerCanvas <= 0 {
		return fmt.Errorf("maxCardsPerCanvas must be positive")
	}
	if config.Limits.MaxEdgesPerCanvas <= 0 {
		return fmt.Errorf("maxEdgesPerCanvas must be positive")
	}
	if config.Limits.MaxHistoryDepth < 2 {
		return fmt.Errorf("maxHistoryDepth must be at least 2")
	}
	if config.Limits.MaxAncestorDepth < 1 {
		return fmt.Errorf("maxAncestorDepth must be at least 1")
	}
	if config.Generation.TimeoutSeconds <= 0 || config.Generation.TimeoutSeconds > 600 {
		return fmt.Errorf("generation timeoutSeconds must be between 1 and 600")
	}
	if config.Generation.MaxOutputTokens < 0 {
		return fmt.Errorf("maxOutputTokens cannot be negative")
	}
	return nil
}

func (w *ConfigWatcher) logConfigChanges(oldConfig, newConfig *DynamicConfig) {
	changes := []string{}

	if oldConfig.Features.EnableRegeneration != newConfig.Features.EnableRegeneration {
		changes = append(changes, fmt.Sprintf("EnableRegeneration: %v -> %v",
			oldConfig.Features.EnableRegeneration, newConfig.Features.EnableRegeneration))
	}
	if oldConfig.Features.EnableSearchIndexing != newConfig.Features.EnableSearchIndexing {
		changes = append(changes, fmt.Sprintf("EnableSearchIndexing: %v -> %v",
			oldConfig.Features.EnableSearchIndexing, newConfig.Features.EnableSearchIndexing))
	}
	if oldConfig.Limits.MaxCardsPerCanvas != newConfig.Limits.MaxCardsPerCanvas {
		changes = append(changes, fmt.Sprintf("MaxCardsPerCanvas: %d -> %d",
			oldConfig.Limits.MaxCardsPerCanvas, newConfig.Limits.MaxCardsPerCanvas))
	}
	if oldConfig.Limits.MaxHistoryDepth != newConfig.Limits.MaxHistoryDepth {
		changes = append(changes, fmt.Sprintf("MaxHistoryDepth: %d -> %d",
			oldConfig.Limits.MaxHistoryDepth, newConfig.Limits.MaxHistoryDepth))
	}
	if oldConfig.Limits.MaxAncestorDepth != newConfig.Limits.MaxAncestorDepth {
		changes = append(changes, fmt.Sprintf("MaxAncestorDepth: %d -> %d",
			oldConfig.Limits.MaxAncestorDepth, newConfig.Limits.MaxAncestorDepth))
	}

	if len(changes) > 0 {
		w.logger.Info("Configuration changes detected", zap.Strings("changes", changes))
	}
}

// OnChange registers a callback for configuration changes
func (w *ConfigWatcher) OnChange(handler func(*DynamicConfig)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, handler)
}

// GetCurrent returns the current configuration
func (w *ConfigWatcher) GetCurrent() *DynamicConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// GetFeatures returns current feature flags
func (w *ConfigWatcher) GetFeatures() Features {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current.Features
}

// GetLimits returns current limits
func (w *ConfigWatcher) GetLimits() Limits {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current.Limits
}

// isYAMLPath reports whether the file should be parsed as YAML
func isYAMLPath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// loadConfigFromFile loads configuration from a JSON or YAML file
func loadConfigFromFile(path string) (*DynamicConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config DynamicConfig
	if isYAMLPath(path) {
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	if config.Metadata.Version == "" {
		config.Metadata.Version = "1.0.0"
	}
	config.Metadata.UpdatedAt = time.Now()

	return &config, nil
}

// SaveConfig saves the configuration to file atomically, in the same
// format the file was loaded from
func (w *ConfigWatcher) SaveConfig(config *DynamicConfig) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	config.Metadata.UpdatedAt = time.Now()

	var data []byte
	var err error
	if isYAMLPath(w.path) {
		data, err = yaml.Marshal(config)
	} else {
		data, err = json.MarshalIndent(config, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmpPath := w.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp config file: %w", err)
	}
	if err := os.Rename(tmpPath, w.path); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}

	w.current = config
	return nil
}
