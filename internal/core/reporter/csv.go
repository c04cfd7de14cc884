package reporter

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"sync"

	"github.com/cyllective/egress0r/internal/core/model"
	"github.com/cyllective/egress0r/internal/pkg/logger"
)

// CsvReporter 负责将结果导出为 CSV 文件
// 结果先缓存，Summarize 时一次性写入
type CsvReporter struct {
	FilePath string
	mu       sync.Mutex
	records  []model.Record
}

func NewCsvReporter(filePath string) *CsvReporter {
	return &CsvReporter{
		FilePath: filePath,
	}
}

func (r *CsvReporter) Begin(ctx context.Context, name model.CheckName, startMessage string) error {
	return nil
}

func (r *CsvReporter) Report(ctx context.Context, name model.CheckName, msg model.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, model.Record{Check: name, Message: msg})
	return nil
}

func (r *CsvReporter) End(ctx context.Context, name model.CheckName) error {
	return nil
}

func (r *CsvReporter) Summarize(ctx context.Context, summary model.Summary) error {
	r.mu.Lock()
	records := append([]model.Record(nil), r.records...)
	r.mu.Unlock()
	return SaveCsvResult(r.FilePath, records)
}

// SaveCsvResult 一次性将结果保存为 CSV
func SaveCsvResult(path string, records []model.Record) error {
	if len(records) == 0 {
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create csv file: %w", err)
	}
	defer f.Close()

	// 写入 UTF-8 BOM，防止 Excel 打开乱码
	if _, err := f.WriteString("\xEF\xBB\xBF"); err != nil {
		return fmt.Errorf("failed to write csv file: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(records[0].Headers()); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	for _, rec := range records {
		if err := w.WriteAll(rec.Rows()); err != nil {
			return fmt.Errorf("failed to write rows: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}

	logger.Infof("Results saved to %s", path)
	return nil
}
