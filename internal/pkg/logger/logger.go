/**
 * 日志管理器
 * @author: sun977
 * @date: 2026.02.11
 * @description: logrus 封装。检测结果走 reporter 输出到 stdout，日志默认写 stderr，
 *               file 输出由 lumberjack 轮转，配置热重载时整体替换输出目标。
 */
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/cyllective/egress0r/internal/config"
)

const timestampFormat = "2006-01-02 15:04:05.000"

// LoggerManager 日志管理器
type LoggerManager struct {
	mu      sync.Mutex
	logger  *logrus.Logger
	config  config.LogConfig
	rotator *lumberjack.Logger // 仅 file 输出时非空
}

// LoggerInstance 全局日志实例
var LoggerInstance *LoggerManager

// InitLogger 创建日志管理器并替换全局实例，旧实例的日志文件会被关闭
func InitLogger(cfg *config.LogConfig) (*LoggerManager, error) {
	lm, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if LoggerInstance != nil {
		_ = LoggerInstance.Close()
	}
	LoggerInstance = lm
	return lm, nil
}

// New 创建独立的日志管理器，不修改全局实例
func New(cfg *config.LogConfig) (*LoggerManager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("log config cannot be nil")
	}
	lm := &LoggerManager{logger: logrus.New()}
	if err := lm.apply(*cfg); err != nil {
		return nil, err
	}
	return lm, nil
}

// apply 按配置设置级别、格式和输出
func (lm *LoggerManager) apply(cfg config.LogConfig) error {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return err
	}
	formatter, err := newFormatter(cfg)
	if err != nil {
		return err
	}
	out, rotator, err := newOutput(cfg)
	if err != nil {
		return err
	}

	if lm.rotator != nil {
		_ = lm.rotator.Close()
	}
	lm.logger.SetLevel(level)
	lm.logger.SetFormatter(formatter)
	lm.logger.SetOutput(out)
	lm.logger.SetReportCaller(cfg.Caller)
	lm.rotator = rotator
	lm.config = cfg
	return nil
}

func parseLevel(s string) (logrus.Level, error) {
	if s == "" {
		return logrus.WarnLevel, nil
	}
	level, err := logrus.ParseLevel(s)
	if err != nil {
		return 0, fmt.Errorf("invalid log level: %w", err)
	}
	return level, nil
}

func newFormatter(cfg config.LogConfig) (logrus.Formatter, error) {
	switch strings.ToLower(cfg.Format) {
	case "json":
		return &logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "timestamp",
				logrus.FieldKeyMsg:  "message",
			},
		}, nil
	case "text", "":
		return &logrus.TextFormatter{
			TimestampFormat: timestampFormat,
			FullTimestamp:   true,
			DisableColors:   cfg.Output == "file",
		}, nil
	default:
		return nil, fmt.Errorf("unsupported log format: %s", cfg.Format)
	}
}

// newOutput 返回输出目标，file 输出时同时返回 lumberjack 实例供关闭
func newOutput(cfg config.LogConfig) (io.Writer, *lumberjack.Logger, error) {
	switch strings.ToLower(cfg.Output) {
	case "stdout":
		return os.Stdout, nil, nil
	case "stderr", "":
		return os.Stderr, nil, nil
	case "file":
		if cfg.FilePath == "" {
			return nil, nil, fmt.Errorf("file path is required when output is file")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		rotator := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize, // MB
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge, // 天
			Compress:   cfg.Compress,
		}
		// debug 时同时输出到 stderr
		if strings.EqualFold(cfg.Level, "debug") {
			return io.MultiWriter(os.Stderr, rotator), rotator, nil
		}
		return rotator, rotator, nil
	default:
		return nil, nil, fmt.Errorf("unsupported log output: %s", cfg.Output)
	}
}

// UpdateConfig 配置文件热重载时调用，配置无变化时不做任何事
func (lm *LoggerManager) UpdateConfig(newCfg *config.LogConfig) error {
	if newCfg == nil {
		return fmt.Errorf("new config cannot be nil")
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()

	if *newCfg == lm.config {
		return nil
	}
	old := lm.config
	if err := lm.apply(*newCfg); err != nil {
		return fmt.Errorf("failed to update log config: %w", err)
	}
	lm.logger.WithFields(logrus.Fields{
		"level":  fmt.Sprintf("%s -> %s", old.Level, newCfg.Level),
		"format": fmt.Sprintf("%s -> %s", old.Format, newCfg.Format),
		"output": fmt.Sprintf("%s -> %s", old.Output, newCfg.Output),
	}).Info("log config updated")
	return nil
}

// Config 当前日志配置的副本
func (lm *LoggerManager) Config() config.LogConfig {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.config
}

// SetOutput 替换输出目标，测试使用
func (lm *LoggerManager) SetOutput(w io.Writer) {
	lm.logger.SetOutput(w)
}

// Close 关闭日志文件
func (lm *LoggerManager) Close() error {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if lm.rotator == nil {
		return nil
	}
	err := lm.rotator.Close()
	lm.rotator = nil
	return err
}

// discard 未初始化时使用的静默实例
var discard = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}()

func current() *logrus.Logger {
	if LoggerInstance != nil {
		return LoggerInstance.logger
	}
	return discard
}

func Debugf(format string, args ...interface{}) { current().Debugf(format, args...) }

func Infof(format string, args ...interface{}) { current().Infof(format, args...) }

func Warnf(format string, args ...interface{}) { current().Warnf(format, args...) }

// WithFields 附带结构化字段
func WithFields(fields logrus.Fields) *logrus.Entry {
	return current().WithFields(fields)
}

// WithCheck 检测项日志，附带 check 字段
func WithCheck(name string) *logrus.Entry {
	return current().WithField("check", name)
}
