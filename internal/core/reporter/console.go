package reporter

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/pterm/pterm" // 引入 pterm 库用于控制台输出

	"github.com/cyllective/egress0r/internal/core/model"
)

// messageIndent 结果行缩进
const messageIndent = 4

// ConsoleReporter 控制台输出
type ConsoleReporter struct {
	writer    io.Writer
	withTable bool

	mu      sync.Mutex
	records []model.Record
}

// NewConsoleReporter 创建控制台输出，withTable 为 true 时结束后以表格汇总全部结果
func NewConsoleReporter(withTable bool) *ConsoleReporter {
	return &ConsoleReporter{writer: os.Stdout, withTable: withTable}
}

// WithWriter 替换输出目标
func (r *ConsoleReporter) WithWriter(w io.Writer) *ConsoleReporter {
	r.writer = w
	return r
}

func (r *ConsoleReporter) Begin(ctx context.Context, name model.CheckName, startMessage string) error {
	pterm.Fprintln(r.writer, pterm.Bold.Sprint(startMessage))
	return nil
}

func (r *ConsoleReporter) Report(ctx context.Context, name model.CheckName, msg model.Message) error {
	pterm.Fprintln(r.writer, colorFor(msg.Type).Sprint(msg.Format(messageIndent)))
	if r.withTable {
		r.mu.Lock()
		r.records = append(r.records, model.Record{Check: name, Message: msg})
		r.mu.Unlock()
	}
	return nil
}

func (r *ConsoleReporter) End(ctx context.Context, name model.CheckName) error {
	pterm.Fprintln(r.writer)
	return nil
}

// Summarize 输出成功/失败统计
func (r *ConsoleReporter) Summarize(ctx context.Context, summary model.Summary) error {
	if r.withTable {
		r.mu.Lock()
		records := append([]model.Record(nil), r.records...)
		r.mu.Unlock()
		if err := r.printTable(records); err != nil {
			return err
		}
	}
	pterm.Fprintln(r.writer, fmt.Sprintf("Summary:  %s    %s",
		pterm.FgGreen.Sprintf("[✓] Successful tests: %d", summary.Successful),
		pterm.FgRed.Sprintf("[x] Failed tests: %d", summary.Failed),
	))
	return nil
}

func (r *ConsoleReporter) printTable(records []model.Record) error {
	if len(records) == 0 {
		return nil
	}

	tableData := pterm.TableData{records[0].Headers()}
	for _, rec := range records {
		tableData = append(tableData, rec.Rows()...)
	}

	err := pterm.DefaultTable.
		WithHasHeader(true).
		WithBoxed(false). // 简洁风格
		WithData(tableData).
		WithWriter(r.writer).
		Render()
	if err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	pterm.Fprintln(r.writer)
	return nil
}

func colorFor(t model.MessageType) pterm.Color {
	switch t {
	case model.MessagePositive:
		return pterm.FgGreen
	case model.MessageNegative:
		return pterm.FgRed
	case model.MessageUnknown:
		return pterm.FgYellow
	default:
		return pterm.FgCyan
	}
}
