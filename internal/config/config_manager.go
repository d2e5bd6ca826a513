package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"aigateway/internal/events"

	log "github.com/sirupsen/logrus"
)

// ConfigManager manages configuration file and hot reload
type ConfigManager struct {
	mu         sync.RWMutex
	config     *GatewayConfig
	configPath string
	watcher    *time.Ticker
	stopCh     chan struct{}
	onChange   []func(*GatewayConfig)
	lastMod    time.Time
	publisher  events.Publisher
}

// NewConfigManager creates a new configuration manager
func NewConfigManager(configPath string) (*ConfigManager, error) {
	if configPath == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			"config.json",
			filepath.Join(os.Getenv("HOME"), ".aigateway", "config.yaml"),
			filepath.Join(os.Getenv("HOME"), ".aigateway", "config.yml"),
			"/etc/aigateway/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				configPath = loc
				break
			}
		}
	}

	if strings.HasPrefix(configPath, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(homeDir, configPath[1:])
	}

	cm := &ConfigManager{
		configPath: configPath,
		stopCh:     make(chan struct{}),
		onChange:   make([]func(*GatewayConfig), 0),
	}

	if err := cm.load(); err != nil {
		if os.IsNotExist(err) || configPath == "" {
			cm.config = DefaultGatewayConfig()
			log.WithField("path", configPath).Warn("using default configuration (no config file found)")
		} else {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	cm.mergeEnvVars()

	if cm.configPath != "" {
		if _, err := os.Stat(cm.configPath); err == nil {
			cm.startWatcher()
		}
	}

	return cm, nil
}

// OnChange registers a callback for configuration changes
func (cm *ConfigManager) OnChange(fn func(*GatewayConfig)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.onChange = append(cm.onChange, fn)
}

// SetEventPublisher wires the event hub used to broadcast config updates.
func (cm *ConfigManager) SetEventPublisher(p events.Publisher) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.publisher = p
}

// GetConfig returns a copy of the current configuration
func (cm *ConfigManager) GetConfig() *GatewayConfig {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if cm.config == nil {
		return DefaultGatewayConfig()
	}

	config := *cm.config
	return &config
}

// UpdateConfig applies updates to the live configuration by key and persists
// the result. Keys match the yaml tag of the GatewayConfig field they target;
// unrecognized keys are ignored rather than erroring, since operators may be
// updating several keys at once and a single typo shouldn't roll back the rest.
func (cm *ConfigManager) UpdateConfig(updates map[string]interface{}) error {
	cm.mu.Lock()
	if cm.config == nil {
		cm.config = DefaultGatewayConfig()
	}
	oldCopy := *cm.config

	for key, value := range updates {
		applyGatewayConfigUpdate(cm.config, key, value)
	}

	newCopy := *cm.config
	var err error
	if cm.configPath != "" {
		err = cm.save()
	}
	cm.mu.Unlock()
	if err != nil {
		return err
	}

	cm.emitChange(&oldCopy, &newCopy)
	return nil
}

// Close stops the configuration manager
func (cm *ConfigManager) Close() {
	close(cm.stopCh)
	if cm.watcher != nil {
		cm.watcher.Stop()
	}
}

func (cm *ConfigManager) listenersSnapshot() ([]func(*GatewayConfig), events.Publisher, string) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	callbacks := make([]func(*GatewayConfig), len(cm.onChange))
	copy(callbacks, cm.onChange)
	return callbacks, cm.publisher, cm.configPath
}

func (cm *ConfigManager) emitChange(oldCfg, newCfg *GatewayConfig) {
	callbacks, publisher, path := cm.listenersSnapshot()

	for _, fn := range callbacks {
		fn(newCfg)
	}

	if publisher != nil && newCfg != nil {
		event := ConfigChangeEvent{
			Path:      path,
			UpdatedAt: time.Now().UTC(),
			Config:    *newCfg,
		}
		if oldCfg != nil {
			prev := *oldCfg
			event.Previous = &prev
		}
		publisher.Publish(context.Background(), events.TopicConfigUpdated, event, nil)
	}
}

// ConfigChangeEvent is the payload broadcast when configuration changes.
type ConfigChangeEvent struct {
	Path      string         `json:"path"`
	UpdatedAt time.Time      `json:"updated_at"`
	Config    GatewayConfig  `json:"config"`
	Previous  *GatewayConfig `json:"previous,omitempty"`
}
