package config

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Watcher holds the live configuration snapshot and re-reads the file
// when it changes on disk, so tunables apply without a restart.
// Components read values through Current() at call time.
type Watcher struct {
	mu        sync.RWMutex
	current   *Config
	logger    *logrus.Logger
	listeners []func(*Config)
}

// NewWatcher wraps an already-validated config.
func NewWatcher(cfg *Config, logger *logrus.Logger) *Watcher {
	return &Watcher{
		current:   cfg,
		logger:    logger,
		listeners: make([]func(*Config), 0),
	}
}

// Current returns the latest configuration snapshot.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnChange registers a listener invoked after each successful reload.
// Must be called during wiring, before Watch starts.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.listeners = append(w.listeners, fn)
}

// Watch starts watching the config file. A reload that fails to parse
// or validate is logged and discarded; the previous snapshot stays live.
func (w *Watcher) Watch(configPath string) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	setDefaults(v)

	v.OnConfigChange(func(e fsnotify.Event) {
		var cfg Config
		if err := v.ReadInConfig(); err != nil {
			w.logger.WithError(err).Error("Failed to re-read config, keeping previous")
			return
		}
		if err := v.Unmarshal(&cfg); err != nil {
			w.logger.WithError(err).Error("Failed to unmarshal reloaded config, keeping previous")
			return
		}
		if err := Validate(&cfg); err != nil {
			w.logger.WithError(err).Error("Reloaded config invalid, keeping previous")
			return
		}

		w.mu.Lock()
		w.current = &cfg
		w.mu.Unlock()

		w.logger.WithField("file", e.Name).Info("Configuration reloaded")
		for _, fn := range w.listeners {
			fn(&cfg)
		}
	})

	if err := v.ReadInConfig(); err != nil {
		w.logger.WithError(err).Warn("Config watcher could not read file, hot reload disabled")
		return
	}
	v.WatchConfig()
}
