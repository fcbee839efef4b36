package ops

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Iron-Ham/lanes/internal/pool"
	"github.com/Iron-Ham/lanes/internal/task"
)

// Table is a parsed CSV file. Rows may be ragged.
type Table struct {
	Header []string
	Rows   [][]string
}

// Columns returns the number of columns, taken from the header when present
// and otherwise from the widest row.
func (t Table) Columns() int {
	n := len(t.Header)
	for _, row := range t.Rows {
		n = max(n, len(row))
	}
	return n
}

// ReadOptions controls CSV parsing.
type ReadOptions struct {
	// Delimiter separates fields. Zero means ','.
	Delimiter rune
	// Header treats the first record as column names.
	Header bool
}

// DefaultReadOptions returns comma-separated parsing with a header row.
func DefaultReadOptions() ReadOptions {
	return ReadOptions{Delimiter: ',', Header: true}
}

// ReadCSV parses the file at path on the IO lane.
func ReadCSV(r *pool.Registry, path string, opts ReadOptions) *task.Handle[Table] {
	return pool.SubmitIO(r, func() (Table, error) {
		f, err := os.Open(path)
		if err != nil {
			return Table{}, err
		}
		defer f.Close()
		return ParseCSV(f, opts)
	})
}

// ParseCSV reads every record from src.
func ParseCSV(src io.Reader, opts ReadOptions) (Table, error) {
	cr := csv.NewReader(src)
	if opts.Delimiter != 0 {
		cr.Comma = opts.Delimiter
	}
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return Table{}, fmt.Errorf("parse csv: %w", err)
	}

	var t Table
	if opts.Header && len(records) > 0 {
		t.Header, records = records[0], records[1:]
	}
	t.Rows = records
	return t, nil
}

// WriteCSV writes t to path on the IO lane. The file is written to a
// temporary sibling and renamed into place.
func WriteCSV(r *pool.Registry, path string, t Table, delimiter rune) *task.Handle[struct{}] {
	return pool.SubmitIO(r, func() (struct{}, error) {
		return struct{}{}, writeFileAtomic(path, func(w io.Writer) error {
			cw := csv.NewWriter(w)
			if delimiter != 0 {
				cw.Comma = delimiter
			}
			if len(t.Header) > 0 {
				if err := cw.Write(t.Header); err != nil {
					return err
				}
			}
			if err := cw.WriteAll(t.Rows); err != nil {
				return err
			}
			return cw.Error()
		})
	})
}

func writeFileAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
