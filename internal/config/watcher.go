package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultReloadDelay = 500 * time.Millisecond

// ConfigChangeCallback 配置变更回调
type ConfigChangeCallback func(oldConfig, newConfig *Config) error

// ConfigWatcher 配置文件监听器
//
// 检测项在运行前已经构建，重载后的配置只有 log 段会被应用，
// 其余段的修改由 FrozenSectionsChanged 报告，在下次运行时生效。
type ConfigWatcher struct {
	path      string
	load      func() (*Config, error)
	fsw       *fsnotify.Watcher
	delay     time.Duration
	done      chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	current   *Config
	callbacks []ConfigChangeCallback
	onError   func(error)
	timer     *time.Timer
}

// NewConfigWatcher current 为已经加载好的配置
func NewConfigWatcher(configFile string, current *Config) (*ConfigWatcher, error) {
	if configFile == "" {
		return nil, fmt.Errorf("config file path is empty")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &ConfigWatcher{
		path:    filepath.Clean(configFile),
		load:    func() (*Config, error) { return LoadConfigFromFile(configFile) },
		fsw:     fsw,
		delay:   defaultReloadDelay,
		done:    make(chan struct{}),
		current: current,
		onError: func(error) {},
	}, nil
}

// OnError 重载失败时调用，旧配置保持不变
func (cw *ConfigWatcher) OnError(fn func(error)) {
	if fn == nil {
		return
	}
	cw.mu.Lock()
	cw.onError = fn
	cw.mu.Unlock()
}

func (cw *ConfigWatcher) AddCallback(callback ConfigChangeCallback) {
	cw.mu.Lock()
	cw.callbacks = append(cw.callbacks, callback)
	cw.mu.Unlock()
}

// Start 监听所在目录，编辑器以重命名方式保存时也能收到事件
func (cw *ConfigWatcher) Start() error {
	if err := cw.fsw.Add(filepath.Dir(cw.path)); err != nil {
		return fmt.Errorf("failed to watch config file %s: %w", cw.path, err)
	}
	go cw.loop()
	return nil
}

// Stop 可重复调用
func (cw *ConfigWatcher) Stop() error {
	var err error
	cw.closeOnce.Do(func() {
		close(cw.done)
		cw.mu.Lock()
		if cw.timer != nil {
			cw.timer.Stop()
		}
		cw.mu.Unlock()
		err = cw.fsw.Close()
	})
	return err
}

// GetConfig 最近一次成功加载的配置
func (cw *ConfigWatcher) GetConfig() *Config {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.current
}

func (cw *ConfigWatcher) loop() {
	for {
		select {
		case <-cw.done:
			return
		case event, ok := <-cw.fsw.Events:
			if !ok {
				return
			}
			if cw.relevant(event) {
				cw.schedule()
			}
		case err, ok := <-cw.fsw.Errors:
			if !ok {
				return
			}
			cw.fail(fmt.Errorf("config watcher error: %w", err))
		}
	}
}

func (cw *ConfigWatcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != cw.path {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}

// schedule 防抖，连续写入只重载一次
func (cw *ConfigWatcher) schedule() {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	if cw.timer != nil {
		cw.timer.Stop()
	}
	cw.timer = time.AfterFunc(cw.delay, func() {
		select {
		case <-cw.done:
			return
		default:
		}
		if err := cw.reload(); err != nil {
			cw.fail(err)
		}
	})
}

func (cw *ConfigWatcher) reload() error {
	next, err := cw.load()
	if err != nil {
		return fmt.Errorf("failed to load new config: %w", err)
	}

	cw.mu.Lock()
	prev := cw.current
	callbacks := append([]ConfigChangeCallback(nil), cw.callbacks...)
	cw.mu.Unlock()

	for _, callback := range callbacks {
		if err := callback(prev, next); err != nil {
			return fmt.Errorf("config change callback failed: %w", err)
		}
	}

	cw.mu.Lock()
	cw.current = next
	cw.mu.Unlock()
	return nil
}

func (cw *ConfigWatcher) fail(err error) {
	cw.mu.Lock()
	fn := cw.onError
	cw.mu.Unlock()
	fn(err)
}

// WatchConfig 创建并启动监听器
func WatchConfig(configFile string, current *Config, callback ConfigChangeCallback) (*ConfigWatcher, error) {
	cw, err := NewConfigWatcher(configFile, current)
	if err != nil {
		return nil, err
	}
	if callback != nil {
		cw.AddCallback(callback)
	}
	if err := cw.Start(); err != nil {
		_ = cw.Stop()
		return nil, err
	}
	return cw, nil
}

// LogConfigChanged 日志配置是否有变化
func LogConfigChanged(oldConfig, newConfig *Config) bool {
	if oldConfig == nil || newConfig == nil || oldConfig.Log == nil || newConfig.Log == nil {
		return oldConfig != newConfig
	}
	return *oldConfig.Log != *newConfig.Log
}

// FrozenSectionsChanged 返回修改过的、运行期间不会生效的配置段
func FrozenSectionsChanged(oldConfig, newConfig *Config) []string {
	if oldConfig == nil || newConfig == nil {
		return nil
	}
	sections := []struct {
		name     string
		old, new any
	}{
		{"data_dir", oldConfig.DataDir, newConfig.DataDir},
		{"sanity", oldConfig.Sanity, newConfig.Sanity},
		{"check", oldConfig.Check, newConfig.Check},
		{"output", oldConfig.Output, newConfig.Output},
		{"dns", oldConfig.DNS, newConfig.DNS},
		{"icmp", oldConfig.ICMP, newConfig.ICMP},
		{"smtp", oldConfig.SMTP, newConfig.SMTP},
		{"http", oldConfig.HTTP, newConfig.HTTP},
		{"ftp", oldConfig.FTP, newConfig.FTP},
		{"port", oldConfig.Port, newConfig.Port},
	}
	var changed []string
	for _, s := range sections {
		if !reflect.DeepEqual(s.old, s.new) {
			changed = append(changed, s.name)
		}
	}
	return changed
}
