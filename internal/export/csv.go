// Package export writes report tables to CSV files.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/johnqtcg/bbreport/internal/report"
)

// ErrOutputConflict indicates an output file already exists and force mode is disabled.
var ErrOutputConflict = errors.New("output file already exists")

// Target names the file one table is written to, relative to the output directory.
type Target struct {
	Name  string
	Table *report.Table
}

// Options controls where and how tables are written.
type Options struct {
	Dir   string
	Force bool
}

// Writer persists tables and returns the written paths in target order.
type Writer interface {
	Write(opts Options, targets []Target) ([]string, error)
}

type csvWriter struct{}

// NewCSVWriter creates a writer that emits one CSV file per target.
func NewCSVWriter() Writer {
	return &csvWriter{}
}

func (w *csvWriter) Write(opts Options, targets []Target) (paths []string, err error) {
	_ = w

	dir := opts.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory %q: %w", dir, err)
	}

	lock := NewDirLock(dir)
	if err := lock.TryLock(); err != nil {
		return nil, fmt.Errorf("lock output directory %q: %w", dir, err)
	}
	defer func() {
		if unlockErr := lock.Unlock(); err == nil && unlockErr != nil {
			err = unlockErr
		}
	}()

	var planned []Target
	for _, t := range targets {
		if t.Name == "" || t.Table == nil {
			continue
		}
		path := filepath.Join(dir, t.Name)
		if err := ensureWritable(path, opts.Force); err != nil {
			return nil, fmt.Errorf("validate output path %q: %w", path, err)
		}
		planned = append(planned, Target{Name: path, Table: t.Table})
	}

	for _, t := range planned {
		if err := writeFile(t.Name, t.Table); err != nil {
			return paths, err
		}
		paths = append(paths, t.Name)
	}
	return paths, nil
}

func writeFile(path string, table *report.Table) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file %q: %w", path, err)
	}
	defer func() {
		closeErr := file.Close()
		if err == nil && closeErr != nil {
			err = fmt.Errorf("close output file %q: %w", path, closeErr)
		}
	}()

	if err := WriteTable(file, table); err != nil {
		return fmt.Errorf("write output file %q: %w", path, err)
	}
	return nil
}

// WriteTable writes a header row and one record per row. Absent cells are empty.
func WriteTable(w io.Writer, table *report.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(table.Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	record := make([]string, len(table.Columns))
	for i, row := range table.Rows {
		for j, col := range table.Columns {
			record[j] = row.Cell(col).OrElse("")
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func ensureWritable(path string, force bool) error {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat output file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("output path is a directory")
	}
	if !force {
		return ErrOutputConflict
	}
	return nil
}
