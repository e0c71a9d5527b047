package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DynamicConfigManager layers the hot-reloadable file configuration
// over the static environment configuration. Feature flags and canvas
// limits can change at runtime; everything else is fixed at startup.
type DynamicConfigManager struct {
	staticConfig *Config
	watcher      *ConfigWatcher

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	callbacks []ConfigChangeCallback

	logger *zap.Logger
}

// ConfigChangeCallback is called when configuration changes
type ConfigChangeCallback func(newConfig *DynamicConfig)

// NewDynamicConfigManager creates a new dynamic configuration manager.
// An empty configPath disables hot reload; the static config is then
// the only source.
func NewDynamicConfigManager(staticConfig *Config, configPath string, logger *zap.Logger) (*DynamicConfigManager, error) {
	ctx, cancel := context.WithCancel(context.Background())

	var watcher *ConfigWatcher
	if configPath != "" {
		w, err := NewConfigWatcher(configPath, logger)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to create config watcher: %w", err)
		}
		watcher = w
	}

	manager := &DynamicConfigManager{
		staticConfig: staticConfig,
		watcher:      watcher,
		ctx:          ctx,
		cancel:       cancel,
		callbacks:    make([]ConfigChangeCallback, 0),
		logger:       logger,
	}

	if watcher != nil {
		watcher.OnChange(manager.handleConfigChange)
	}
	return manager, nil
}

// Start begins watching for configuration changes
func (m *DynamicConfigManager) Start() error {
	if m.watcher != nil {
		m.watcher.Start()
	}
	go m.healthCheckLoop()
	m.logger.Info("Dynamic configuration manager started")
	return nil
}

// Stop stops the configuration manager
func (m *DynamicConfigManager) Stop() {
	m.cancel()
	if m.watcher != nil {
		m.watcher.Stop()
	}
	m.logger.Info("Dynamic configuration manager stopped")
}

func (m *DynamicConfigManager) healthCheckLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.performHealthCheck()
		}
	}
}

func (m *DynamicConfigManager) performHealthCheck() {
	if m.watcher == nil {
		return
	}
	current := m.watcher.GetCurrent()
	if err := m.watcher.validateConfig(current); err != nil {
		m.logger.Error("Configuration health check failed", zap.Error(err))
	}
}

// handleConfigChange folds reloaded values into the static config.
// Domain limits flow into the DomainConfig the services read.
func (m *DynamicConfigManager) handleConfigChange(newConfig *DynamicConfig) {
	m.mu.Lock()

	oldFeatures := m.staticConfig.Features
	m.staticConfig.Features = newConfig.Features
	m.staticConfig.Domain.MaxCardsPerCanvas = newConfig.Limits.MaxCardsPerCanvas
	m.staticConfig.Domain.MaxEdgesPerCanvas = newConfig.Limits.MaxEdgesPerCanvas
	m.staticConfig.Domain.MaxHistoryDepth = newConfig.Limits.MaxHistoryDepth
	m.staticConfig.Domain.MaxAncestorDepth = newConfig.Limits.MaxAncestorDepth
	if newConfig.Generation.TimeoutSeconds > 0 {
		m.staticConfig.GenerationTimeout = time.Duration(newConfig.Generation.TimeoutSeconds) * time.Second
	}

	callbacks := append([]ConfigChangeCallback(nil), m.callbacks...)
	m.mu.Unlock()

	if oldFeatures.EnableRegeneration != newConfig.Features.EnableRegeneration {
		m.logger.Info("Regeneration feature toggled",
			zap.Bool("enabled", newConfig.Features.EnableRegeneration))
	}
	if oldFeatures.EnableSearchIndexing != newConfig.Features.EnableSearchIndexing {
		m.logger.Info("Search indexing feature toggled",
			zap.Bool("enabled", newConfig.Features.EnableSearchIndexing))
	}

	for _, callback := range callbacks {
		go callback(newConfig)
	}
}

// OnChange registers a callback for configuration changes
func (m *DynamicConfigManager) OnChange(callback ConfigChangeCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

// GetConfig returns the current merged configuration
func (m *DynamicConfigManager) GetConfig() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.staticConfig
}

// GetDynamicConfig returns the current dynamic configuration,
// synthesized from the static config when no watcher is attached
func (m *DynamicConfigManager) GetDynamicConfig() *DynamicConfig {
	if m.watcher == nil {
		m.mu.RLock()
		defer m.mu.RUnlock()
		return &DynamicConfig{
			Features: m.staticConfig.Features,
			Limits: Limits{
				MaxCardsPerCanvas: m.staticConfig.Domain.MaxCardsPerCanvas,
				MaxEdgesPerCanvas: m.staticConfig.Domain.MaxEdgesPerCanvas,
				MaxHistoryDepth:   m.staticConfig.Domain.MaxHistoryDepth,
				MaxAncestorDepth:  m.staticConfig.Domain.MaxAncestorDepth,
			},
			Generation: GenerationLimits{
				TimeoutSeconds: int(m.staticConfig.GenerationTimeout / time.Second),
			},
		}
	}
	return m.watcher.GetCurrent()
}

// IsFeatureEnabled checks if a feature is enabled
func (m *DynamicConfigManager) IsFeatureEnabled(feature string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	switch feature {
	case "regeneration":
		return m.staticConfig.Features.EnableRegeneration
	case "search_indexing":
		return m.staticConfig.Features.EnableSearchIndexing
	case "summaries":
		return m.staticConfig.Features.EnableSummaries
	default:
		return false
	}
}

// GetLimit returns a specific limit value
func (m *DynamicConfigManager) GetLimit(limit string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	switch limit {
	case "max_cards_per_canvas":
		return m.staticConfig.Domain.MaxCardsPerCanvas
	case "max_edges_per_canvas":
		return m.staticConfig.Domain.MaxEdgesPerCanvas
	case "max_history_depth":
		return m.staticConfig.Domain.MaxHistoryDepth
	case "max_ancestor_depth":
		return m.staticConfig.Domain.MaxAncestorDepth
	default:
		return 0
	}
}

// UpdateFeature updates a feature flag and persists the change
func (m *DynamicConfigManager) UpdateFeature(feature string, enabled bool) error {
	if m.watcher == nil {
		return fmt.Errorf("dynamic configuration not available")
	}

	config := m.watcher.GetCurrent()
	switch feature {
	case "regeneration":
		config.Features.EnableRegeneration = enabled
	case "search_indexing":
		config.Features.EnableSearchIndexing = enabled
	case "summaries":
		config.Features.EnableSummaries = enabled
	default:
		return fmt.Errorf("unknown feature: %s", feature)
	}

	if err := m.watcher.SaveConfig(config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	m.logger.Info("Feature updated",
		zap.String("feature", feature),
		zap.Bool("enabled", enabled))
	return nil
}

// UpdateLimit updates a limit value and persists the change
func (m *DynamicConfigManager) UpdateLimit(limit string, value int) error {
	if m.watcher == nil {
		return fmt.Errorf("dynamic configuration not available")
	}

	config := m.watcher.GetCurrent()
	switch limit {
	case "max_cards_per_canvas":
		config.Limits.MaxCardsPerCanvas = value
	case "max_edges_per_canvas":
		config.Limits.MaxEdgesPerCanvas = value
	case "max_history_depth":
		config.Limits.MaxHistoryDepth = value
	case "max_ancestor_depth":
		config.Limits.MaxAncestorDepth = value
	default:
		return fmt.Errorf("unknown limit: %s", limit)
	}

	if err := m.watcher.SaveConfig(config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	m.logger.Info("Limit updated",
		zap.String("limit", limit),
		zap.Int("value", value))
	return nil
}
