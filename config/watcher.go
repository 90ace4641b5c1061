// 配置文件变更监听器实现。
//
// 基于修改时间轮询，文件变化时重新加载并通知回调。
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultPollInterval 配置文件轮询间隔
const DefaultPollInterval = 2 * time.Second

// ReloadCallback 在新配置加载成功后调用
type ReloadCallback func(oldConfig, newConfig *Config)

// WatcherOption configures the Watcher
type WatcherOption func(*Watcher)

// WithPollInterval sets the polling interval
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatcherLogger sets the logger for the watcher
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// Watcher 监听单个配置文件，变化时通过 Loader 重新加载
type Watcher struct {
	mu sync.RWMutex

	path     string
	interval time.Duration
	loader   *Loader
	logger   *zap.Logger

	current   *Config
	lastMod   time.Time
	callbacks []ReloadCallback

	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewWatcher 创建监听器；loader 为 nil 时使用带 Validate 的默认加载器
func NewWatcher(path string, initial *Config, loader *Loader, opts ...WatcherOption) (*Watcher, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	if initial == nil {
		return nil, errors.New("initial config is required")
	}
	if loader == nil {
		loader = NewLoader().WithValidator((*Config).Validate)
	}
	w := &Watcher{
		path:     path,
		interval: DefaultPollInterval,
		loader:   loader.WithConfigPath(path),
		logger:   zap.NewNop(),
		current:  initial,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("component", "config_watcher"))

	if info, err := os.Stat(path); err == nil {
		w.lastMod = info.ModTime()
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat path %s: %w", path, err)
	}
	return w, nil
}

// OnReload registers a callback for successful reloads
func (w *Watcher) OnReload(cb ReloadCallback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, cb)
}

// Current returns the most recently loaded config
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Start begins polling until ctx is done or Stop is called
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("watcher already running")
	}
	w.running = true
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	w.mu.Unlock()

	go w.pollLoop(ctx)

	w.logger.Info("config watcher started",
		zap.String("path", w.path),
		zap.Duration("interval", w.interval))
	return nil
}

// Stop stops polling and waits for the loop to exit
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stop)
	done := w.done
	w.mu.Unlock()

	<-done
	w.logger.Info("config watcher stopped")
}

func (w *Watcher) pollLoop(ctx context.Context) {
	defer close(w.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			w.Check()
		}
	}
}

// Check 检查文件修改时间，变化时重新加载；返回是否加载了新配置
func (w *Watcher) Check() bool {
	info, err := os.Stat(w.path)
	if err != nil {
		return false
	}

	w.mu.Lock()
	if !info.ModTime().After(w.lastMod) {
		w.mu.Unlock()
		return false
	}
	w.lastMod = info.ModTime()
	w.mu.Unlock()

	next, err := w.loader.Load()
	if err != nil {
		// 保留旧配置
		w.logger.Warn("config reload rejected", zap.String("path", w.path), zap.Error(err))
		return false
	}

	w.mu.Lock()
	prev := w.current
	w.current = next
	callbacks := make([]ReloadCallback, len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	w.logger.Info("config reloaded", zap.String("path", w.path))
	for _, cb := range callbacks {
		cb(prev, next)
	}
	return true
}
