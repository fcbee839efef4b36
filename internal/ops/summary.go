package ops

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ColumnSummary describes the numeric cells of one column.
type ColumnSummary struct {
	Name    string  `json:"name"`
	Count   int     `json:"count"`
	Skipped int     `json:"skipped"` // non-numeric or empty cells
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Sum     float64 `json:"sum"`
	Mean    float64 `json:"mean"`
}

// Summary is the result of Summarize.
type Summary struct {
	Rows    int             `json:"rows"`
	Columns []ColumnSummary `json:"columns"`
}

// Summarize computes per-column statistics over every cell that parses as a
// float. Columns with no numeric cells are omitted.
func Summarize(t Table) Summary {
	n := t.Columns()
	cols := make([]ColumnSummary, n)
	for i := range cols {
		cols[i] = ColumnSummary{
			Name: columnName(t.Header, i),
			Min:  math.Inf(1),
			Max:  math.Inf(-1),
		}
	}

	for _, row := range t.Rows {
		for i := range n {
			if i >= len(row) {
				cols[i].Skipped++
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(row[i]), 64)
			if err != nil || math.IsNaN(v) {
				cols[i].Skipped++
				continue
			}
			c := &cols[i]
			c.Count++
			c.Sum += v
			c.Min = min(c.Min, v)
			c.Max = max(c.Max, v)
		}
	}

	s := Summary{Rows: len(t.Rows)}
	for _, c := range cols {
		if c.Count == 0 {
			continue
		}
		c.Mean = c.Sum / float64(c.Count)
		s.Columns = append(s.Columns, c)
	}
	return s
}

func columnName(header []string, i int) string {
	if i < len(header) && header[i] != "" {
		return header[i]
	}
	return fmt.Sprintf("column_%d", i+1)
}
