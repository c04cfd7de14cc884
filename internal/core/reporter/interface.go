/**
 * 结果输出接口定义
 * @author: sun977
 * @date: 2026.02.15
 * @description: 检测结果逐条输出，解耦控制台与文件导出。
 */

package reporter

import (
	"context"
	"errors"

	"github.com/cyllective/egress0r/internal/core/model"
)

// TabularData 可以渲染为表格的数据
type TabularData interface {
	Headers() []string
	Rows() [][]string
}

// Reporter 定义结果输出的行为
// 同一个检测项的调用顺序为 Begin -> Report* -> End，全部检测结束后调用一次 Summarize
type Reporter interface {
	Begin(ctx context.Context, name model.CheckName, startMessage string) error
	Report(ctx context.Context, name model.CheckName, msg model.Message) error
	End(ctx context.Context, name model.CheckName) error
	Summarize(ctx context.Context, summary model.Summary) error
}

// MultiReporter 同时向多个目标输出 (Console + CSV)
type MultiReporter struct {
	reporters []Reporter
}

func NewMultiReporter(reporters ...Reporter) *MultiReporter {
	return &MultiReporter{
		reporters: reporters,
	}
}

func (m *MultiReporter) Begin(ctx context.Context, name model.CheckName, startMessage string) error {
	return m.each(func(r Reporter) error { return r.Begin(ctx, name, startMessage) })
}

func (m *MultiReporter) Report(ctx context.Context, name model.CheckName, msg model.Message) error {
	return m.each(func(r Reporter) error { return r.Report(ctx, name, msg) })
}

func (m *MultiReporter) End(ctx context.Context, name model.CheckName) error {
	return m.each(func(r Reporter) error { return r.End(ctx, name) })
}

func (m *MultiReporter) Summarize(ctx context.Context, summary model.Summary) error {
	return m.each(func(r Reporter) error { return r.Summarize(ctx, summary) })
}

// each 某个目标失败不影响其他目标，错误合并返回
func (m *MultiReporter) each(fn func(Reporter) error) error {
	var errs []error
	for _, r := range m.reporters {
		if err := fn(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
