// Package stockcsv は銘柄カタログの CSV を読み込む
package stockcsv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jinford/bsp-scan/internal/core/scan"
)

var columns = []string{"code", "name", "type", "pinyin", "pinyin_short"}

// Read はヘッダ付き CSV から銘柄を読み込む。
// code と name 列は必須で、その他の列は任意。列の順序は問わない
func Read(r io.Reader) ([]scan.Stock, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return []scan.Stock{}, nil
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, required := range columns[:2] {
		if _, ok := index[required]; !ok {
			return nil, fmt.Errorf("missing column: %s", required)
		}
	}

	field := func(rec []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	stocks := []scan.Stock{}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read line %d: %w", line, err)
		}

		st := scan.Stock{
			Code:        field(rec, "code"),
			Name:        field(rec, "name"),
			Type:        field(rec, "type"),
			Pinyin:      field(rec, "pinyin"),
			PinyinShort: field(rec, "pinyin_short"),
		}
		if st.Code == "" || st.Name == "" {
			return nil, fmt.Errorf("line %d: code and name are required", line)
		}
		stocks = append(stocks, st)
	}
	return stocks, nil
}

// ReadFile はファイルパスから銘柄を読み込む
func ReadFile(path string) ([]scan.Stock, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open stock file: %w", err)
	}
	defer f.Close()

	return Read(f)
}
