package config

import (
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Provider serves the current configuration snapshot. Readers take one
// snapshot per operation; a reload never changes a snapshot in use.
type Provider struct {
	v       *viper.Viper
	current atomic.Pointer[Config]

	mu        sync.Mutex
	listeners []func(Config)
}

// NewProvider loads the configuration and keeps the viper instance for reloads.
func NewProvider(configFile string) (*Provider, error) {
	v, err := newViper(configFile)
	if err != nil {
		return nil, err
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	p := &Provider{v: v}
	p.current.Store(&cfg)
	return p, nil
}

// StaticProvider wraps a fixed configuration.
func StaticProvider(cfg Config) *Provider {
	p := &Provider{}
	p.current.Store(&cfg)
	return p
}

func (p *Provider) Get() Config {
	return *p.current.Load()
}

// OnChange registers fn to run after every successful reload.
func (p *Provider) OnChange(fn func(Config)) {
	p.mu.Lock()
	p.listeners = append(p.listeners, fn)
	p.mu.Unlock()
}

// Watch reloads the configuration whenever the config file changes. Invalid
// edits are logged and the previous snapshot is kept.
func (p *Provider) Watch(logger *logrus.Logger) {
	if p.v == nil || p.v.ConfigFileUsed() == "" {
		return
	}
	p.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := decode(p.v)
		if err != nil {
			logger.WithField("file", e.Name).Warnf("config reload rejected: %v", err)
			return
		}
		p.current.Store(&cfg)
		logger.WithField("file", e.Name).Info("configuration reloaded")

		p.mu.Lock()
		listeners := append([]func(Config){}, p.listeners...)
		p.mu.Unlock()
		for _, fn := range listeners {
			fn(cfg)
		}
	})
	p.v.WatchConfig()
}
