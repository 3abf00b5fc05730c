// Package tracestore archives completed searches to zstd-compressed parquet
// files for offline analysis: how many nodes a board needed, whether it
// solved, and the action sequence found. It does not feed back into search;
// it is pure observability, batched the way training rows were batched
// before being flushed to disk.
package tracestore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

// TraceRow is one archived search run.
type TraceRow struct {
	BoardID   string  `parquet:"board_id,dict"`
	Solved    bool    `parquet:"solved"`
	Expanded  int32   `parquet:"expanded"`
	Actions   string  `parquet:"actions"`
	Evaluator string  `parquet:"evaluator,dict"`
	Elapsed   float64 `parquet:"elapsed_seconds"`
}

// BatchWriter accumulates TraceRows and flushes them to a single parquet
// file, writing to a tmp path first and renaming into place so a reader
// never observes a partially written file.
type BatchWriter struct {
	outDir string
	tmpDir string

	tmpPath string
	outPath string

	file   *os.File
	writer *parquet.GenericWriter[TraceRow]

	bufferedRows int
}

// NewBatchWriter creates a batch writer whose finished file lands in outDir.
func NewBatchWriter(outDir string) (*BatchWriter, error) {
	if outDir == "" {
		return nil, fmt.Errorf("outDir is required")
	}

	absOut, err := filepath.Abs(outDir)
	if err != nil {
		absOut = outDir
	}
	tmpDir := filepath.Join(absOut, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("create tmp dir: %w", err)
	}

	name := fmt.Sprintf("traces_%d.parquet", time.Now().UnixNano())
	tmpPath := filepath.Join(tmpDir, name)
	outPath := filepath.Join(absOut, name)

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open tmp parquet: %w", err)
	}

	w := parquet.NewGenericWriter[TraceRow](
		f,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
	)
	w.SetKeyValueMetadata("schema", "search_trace_row_v1")

	return &BatchWriter{
		outDir:  absOut,
		tmpDir:  tmpDir,
		tmpPath: tmpPath,
		outPath: outPath,
		file:    f,
		writer:  w,
	}, nil
}

// WriteRows appends rows to the batch.
func (b *BatchWriter) WriteRows(rows []TraceRow) error {
	if b.writer == nil || b.file == nil {
		return fmt.Errorf("batch writer is closed")
	}
	if len(rows) == 0 {
		return nil
	}
	if _, err := b.writer.Write(rows); err != nil {
		return err
	}
	b.bufferedRows += len(rows)
	return nil
}

// BufferedRows returns how many rows have been written to the batch so far.
func (b *BatchWriter) BufferedRows() int { return b.bufferedRows }

// Finalize closes the parquet writer and atomically moves the file from
// tmp/ into outDir. If no rows were written, the tmp file is removed and
// outPath is returned empty.
func (b *BatchWriter) Finalize() (outPath string, rows int, err error) {
	if b.writer == nil && b.file == nil {
		return "", 0, nil
	}

	rows = b.bufferedRows
	outPath = b.outPath

	var closeErr error
	if b.writer != nil {
		closeErr = b.writer.Close()
		b.writer = nil
	}
	var fileErr error
	if b.file != nil {
		_ = b.file.Sync()
		fileErr = b.file.Close()
		b.file = nil
	}
	if closeErr != nil {
		return "", 0, fmt.Errorf("close parquet writer: %w", closeErr)
	}
	if fileErr != nil {
		return "", 0, fmt.Errorf("close parquet file: %w", fileErr)
	}

	if rows == 0 {
		_ = os.Remove(b.tmpPath)
		return "", 0, nil
	}
	if err := os.Rename(b.tmpPath, b.outPath); err != nil {
		return "", 0, fmt.Errorf("rename parquet: %w", err)
	}
	return outPath, rows, nil
}
