// Package jsonl 输出模块测试
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.uber.org/zap"
)

type record struct {
	TsUnixNs int64   `json:"ts_unix_ns"`
	Symbol   string  `json:"symbol"`
	P50Ms    float64 `json:"p50_ms"`
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	return lines
}

// TestWriter_RecordsRoundTrip 每条记录独占一行且可还原
func TestWriter_RecordsRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	dir := t.TempDir()
	n := 0

	properties.Property("写入的记录逐行还原", prop.ForAll(
		func(ts int64, symbol string, p50 float64) bool {
			n++
			path := filepath.Join(dir, fmt.Sprintf("r%d.jsonl", n))
			w, err := NewWriter(path, 10)
			if err != nil {
				return false
			}
			in := record{TsUnixNs: ts, Symbol: symbol, P50Ms: p50}
			if err := w.Write(in); err != nil {
				return false
			}
			if err := w.Close(); err != nil {
				return false
			}

			data, err := os.ReadFile(path)
			if err != nil || len(data) == 0 || data[len(data)-1] != '\n' {
				return false
			}
			var out record
			if err := json.Unmarshal(data[:len(data)-1], &out); err != nil {
				return false
			}
			return out == in
		},
		gen.Int64(),
		gen.OneConstOf("BTCUSDT", "ETHUSDT", "XRPUSDT"),
		gen.Float64Range(0, 1000),
	))

	properties.TestingRun(t)
}

func TestWriter_WriteAndClose(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "metrics.jsonl")

	w, err := NewWriter(path, 100)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if w.Path() != path {
		t.Errorf("Path()=%s, want %s", w.Path(), path)
	}

	for i := 0; i < 10; i++ {
		if err := w.Write(map[string]any{"i": i}); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	// NaN 无法编码，计入失败数
	if err := w.Write(map[string]any{"v": math.NaN()}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if lines := readLines(t, path); len(lines) != 10 {
		t.Fatalf("lines=%d, want 10", len(lines))
	}
	written, failed := w.Stats()
	if written != 10 || failed != 1 {
		t.Errorf("Stats()=%d,%d, want 10,1", written, failed)
	}

	if err := w.Write(map[string]any{"late": true}); err == nil {
		t.Error("关闭后 Write 应返回错误")
	}
	if err := w.Close(); err != nil {
		t.Errorf("重复 Close: %v", err)
	}
}

func TestReporter_WritesFinalRecordOnCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.jsonl")
	w, err := NewWriter(path, 10)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	calls := 0
	r := NewReporter(w, 60000, func() any {
		calls++
		return record{TsUnixNs: int64(calls), Symbol: "BTCUSDT"}
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	lines := readLines(t, path)
	if len(lines) != 1 {
		t.Fatalf("lines=%d, want 1", len(lines))
	}
	var got record
	if err := json.Unmarshal([]byte(lines[0]), &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Symbol != "BTCUSDT" || got.TsUnixNs != 1 {
		t.Errorf("record=%+v", got)
	}
}
