package config

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Watcher re-reads the config file when it changes and hands the economy
// section to the registered callbacks. Invalid edits are logged and ignored.
type Watcher struct {
	v      *viper.Viper
	logger *zap.Logger

	mu        sync.Mutex
	callbacks []func(*EconomyConfig)
}

func NewWatcher(path string, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.L()
	}
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	return &Watcher{v: v, logger: logger}, nil
}

func (w *Watcher) OnEconomyChange(fn func(*EconomyConfig)) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.callbacks = append(w.callbacks, fn)
}

func (w *Watcher) Watch() {
	w.v.OnConfigChange(w.reload)
	w.v.WatchConfig()
}

func (w *Watcher) reload(e fsnotify.Event) {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return
	}

	conf, err := decode(w.v)
	if err == nil {
		err = Validate(conf)
	}
	if err != nil {
		w.logger.Warn("ignoring invalid config change", zap.String("file", e.Name), zap.Error(err))
		return
	}

	w.mu.Lock()
	callbacks := append([]func(*EconomyConfig){}, w.callbacks...)
	w.mu.Unlock()

	for _, fn := range callbacks {
		fn(conf.Economy)
	}
	w.logger.Info("Config reloaded", zap.String("file", e.Name))
}
