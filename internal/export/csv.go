package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/LJTian/InsightHub/internal/processor"
)

var Header = []string{"Firm", "Region", "Topic", "Headline", "Impact", "Date", "Link"}

// FileName 导出文件名由运行日期决定
func FileName(date time.Time) string {
	return "intelligence_export_" + date.Format(processor.DateLayout) + ".csv"
}

// WriteCSV 按给定顺序原样写出，不重新排序
func WriteCSV(w io.Writer, articles []processor.Article) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, a := range articles {
		rec := []string{
			a.Firm,
			a.Region,
			string(a.Topic),
			a.Headline,
			strconv.Itoa(a.Impact),
			a.Date.Format(processor.DateLayout),
			a.Link,
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile 在 dir 下生成导出文件，返回完整路径
func WriteFile(dir string, date time.Time, articles []processor.Article) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(dir, FileName(date))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}
	if err := WriteCSV(f, articles); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close export file: %w", err)
	}
	return path, nil
}
