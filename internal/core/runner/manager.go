/**
 * 检测编排
 * @author: sun977
 * @date: 2026.02.15
 * @description: 按固定顺序构建并执行已开启的检测项，逐条输出结果并统计成功/失败。
 */
package runner

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/cyllective/egress0r/internal/config"
	"github.com/cyllective/egress0r/internal/core/check"
	"github.com/cyllective/egress0r/internal/core/factory"
	"github.com/cyllective/egress0r/internal/core/model"
	"github.com/cyllective/egress0r/internal/core/reporter"
	"github.com/cyllective/egress0r/internal/core/sanity"
	"github.com/cyllective/egress0r/internal/pkg/logger"
)

// CheckManager 管理所有检测项的构建函数
type CheckManager struct {
	builders map[model.CheckName]factory.Builder
	mu       sync.RWMutex
}

// NewCheckManager 创建编排器并注册全部协议
func NewCheckManager() *CheckManager {
	m := &CheckManager{
		builders: make(map[model.CheckName]factory.Builder),
	}
	for name, builder := range factory.Builders() {
		m.Register(name, builder)
	}
	return m
}

// Register 注册或替换一个构建函数
func (m *CheckManager) Register(name model.CheckName, builder factory.Builder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.builders[name] = builder
}

// Get 获取指定检测项的构建函数
func (m *CheckManager) Get(name model.CheckName) (factory.Builder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if builder, ok := m.builders[name]; ok {
		return builder, nil
	}
	return nil, fmt.Errorf("no builder found for check: %s", name)
}

// Build 按 model.CheckOrder 构建所有开启的检测项
// 任一检测项配置错误时释放已构建的检测项并返回错误，不发出任何网络流量
func (m *CheckManager) Build(cfg *config.Config, caps model.NetworkCapabilities) ([]check.Check, error) {
	var checks []check.Check
	for _, name := range model.CheckOrder {
		if !cfg.Check.Enabled(string(name)) {
			continue
		}
		builder, err := m.Get(name)
		if err != nil {
			closeAll(checks)
			return nil, err
		}
		c, err := builder(cfg, caps)
		if err != nil {
			closeAll(checks)
			return nil, fmt.Errorf("failed to build %s check: %w", name, err)
		}
		checks = append(checks, c)
	}
	return checks, nil
}

// Execute 依次执行检测项
// 网络失败已经体现在 Negative 消息中，不会中断后续检测；只有输出失败或 ctx 取消才返回错误
func (m *CheckManager) Execute(ctx context.Context, checks []check.Check, rep reporter.Reporter) (model.Summary, error) {
	var summary model.Summary
	defer closeAll(checks)

	for _, c := range checks {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		log := logger.WithCheck(string(c.Name()))
		log.Debug("check started")

		if err := rep.Begin(ctx, c.Name(), c.StartMessage()); err != nil {
			return summary, err
		}
		var reportErr error
		for msg := range c.Outcomes(ctx) {
			summary.Add(msg)
			if reportErr = rep.Report(ctx, c.Name(), msg); reportErr != nil {
				break
			}
		}
		if reportErr != nil {
			return summary, reportErr
		}
		if err := rep.End(ctx, c.Name()); err != nil {
			return summary, err
		}

		log.WithFields(logrus.Fields{
			"successful": summary.Successful,
			"failed":     summary.Failed,
		}).Debug("check finished")
	}

	return summary, rep.Summarize(ctx, summary)
}

// Run 构建并执行全部开启的检测项
func (m *CheckManager) Run(ctx context.Context, cfg *config.Config, caps model.NetworkCapabilities, rep reporter.Reporter) (model.Summary, error) {
	checks, err := m.Build(cfg, caps)
	if err != nil {
		return model.Summary{}, err
	}
	return m.Execute(ctx, checks, rep)
}

// RunSanity 执行环境检测并输出结果，环境检测的消息不计入统计
func RunSanity(ctx context.Context, checker *sanity.Checker, rep reporter.Reporter) (model.NetworkCapabilities, error) {
	if err := rep.Begin(ctx, model.CheckSanity, sanity.StartMessage); err != nil {
		return model.NetworkCapabilities{}, err
	}
	caps, msgs, runErr := checker.Run(ctx)
	for _, msg := range msgs {
		if err := rep.Report(ctx, model.CheckSanity, msg); err != nil {
			return caps, err
		}
	}
	if err := rep.End(ctx, model.CheckSanity); err != nil {
		return caps, err
	}
	return caps, runErr
}

// EnabledChecks 返回开启的检测项名称，按执行顺序
func EnabledChecks(cfg *config.Config) []model.CheckName {
	return slices.DeleteFunc(slices.Clone(model.CheckOrder), func(name model.CheckName) bool {
		return !cfg.Check.Enabled(string(name))
	})
}

func closeAll(checks []check.Check) {
	for _, c := range checks {
		if closer, ok := c.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				logger.WithCheck(string(c.Name())).WithError(err).Debug("failed to release check resources")
			}
		}
	}
}
