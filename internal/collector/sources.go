package collector

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

var requiredColumns = []string{"name", "query", "strategy"}

// LoadSources 读取 name,region,query,strategy 格式的数据源 CSV
func LoadSources(path string) ([]Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sources: %w", err)
	}
	defer f.Close()
	return ParseSources(f)
}

// ParseSources 表头必需，列顺序不限；name 或 query 为空的行被跳过
func ParseSources(r io.Reader) ([]Source, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return []Source{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sources header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, col := range header {
		idx[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff")))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("sources: missing column %q", col)
		}
	}

	field := func(rec []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	sources := make([]Source, 0)
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read sources: %w", err)
		}
		src := Source{
			Name:     field(rec, "name"),
			Region:   field(rec, "region"),
			Query:    field(rec, "query"),
			Strategy: ParseStrategy(field(rec, "strategy")),
		}
		if src.Name == "" || src.Query == "" {
			continue
		}
		sources = append(sources, src)
	}
	return sources, nil
}
