// Package dataset holds a CSV-backed table with the column operations the
// cleaning step needs: a numeric range filter and a permissive date parse.
//
// Cells keep their source text byte-for-byte. A column converted with
// ParseDates is rendered from its parsed values when the table is written.
package dataset

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	ErrColumnNotFound = errors.New("column not found")
	ErrNotNumeric     = errors.New("value is not numeric")
	ErrNotDate        = errors.New("column is not a date column")
)

// missingMarkers are cell values read as "no value", matching the usual
// NA spellings of CSV producers.
var missingMarkers = map[string]struct{}{
	"":         {},
	"#N/A":     {},
	"#N/A N/A": {},
	"#NA":      {},
	"-1.#IND":  {},
	"-1.#QNAN": {},
	"-NaN":     {},
	"-nan":     {},
	"1.#IND":   {},
	"1.#QNAN":  {},
	"<NA>":     {},
	"N/A":      {},
	"NA":       {},
	"NULL":     {},
	"NaN":      {},
	"None":     {},
	"n/a":      {},
	"nan":      {},
	"null":     {},
}

// IsMissing reports whether a raw cell holds one of the NA markers.
func IsMissing(cell string) bool {
	_, ok := missingMarkers[strings.TrimSpace(cell)]
	return ok
}

// NullTime is a parsed timestamp or the null marker (Valid == false).
type NullTime struct {
	Time  time.Time
	Valid bool
}

type Table struct {
	header []string
	rows   [][]string
	// times holds parsed values for columns converted by ParseDates, keyed by
	// column index.
	times map[int][]NullTime
}

// New builds a table from a header and rows. Rows are copied.
func New(header []string, rows [][]string) (*Table, error) {
	if len(header) == 0 {
		return nil, errors.New("header is required")
	}
	seen := make(map[string]struct{}, len(header))
	for _, name := range header {
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		seen[name] = struct{}{}
	}
	t := &Table{
		header: append([]string(nil), header...),
		rows:   make([][]string, 0, len(rows)),
	}
	for i, row := range rows {
		if len(row) != len(header) {
			return nil, fmt.Errorf("row %d: expected %d fields, got %d", i+1, len(header), len(row))
		}
		t.rows = append(t.rows, append([]string(nil), row...))
	}
	return t, nil
}

// Columns returns the column names in source order.
func (t *Table) Columns() []string {
	return append([]string(nil), t.header...)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Shape returns (rows, columns).
func (t *Table) Shape() (int, int) {
	return len(t.rows), len(t.header)
}

func (t *Table) column(name string) (int, error) {
	for i, col := range t.header {
		if col == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%q: %w", name, ErrColumnNotFound)
}

// HasColumns returns an error naming the first missing column.
func (t *Table) HasColumns(names ...string) error {
	for _, name := range names {
		if _, err := t.column(name); err != nil {
			return err
		}
	}
	return nil
}

// Strings returns the rendered cell values of a column.
func (t *Table) Strings(name string) ([]string, error) {
	idx, err := t.column(name)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(t.rows))
	if times, ok := t.times[idx]; ok {
		layout := dateLayout(times)
		for i, v := range times {
			out[i] = formatTime(v, layout)
		}
		return out, nil
	}
	for i, row := range t.rows {
		out[i] = row[idx]
	}
	return out, nil
}

// Floats parses a column as float64. Missing cells become NaN; any other
// unparseable cell is an ErrNotNumeric error.
func (t *Table) Floats(name string) ([]float64, error) {
	idx, err := t.column(name)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(t.rows))
	for i, row := range t.rows {
		cell := row[idx]
		if IsMissing(cell) {
			out[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
		if err != nil {
			return nil, fmt.Errorf("column %q row %d value %q: %w", name, i+1, cell, ErrNotNumeric)
		}
		out[i] = v
	}
	return out, nil
}

// Times returns the parsed values of a column converted by ParseDates.
func (t *Table) Times(name string) ([]NullTime, error) {
	idx, err := t.column(name)
	if err != nil {
		return nil, err
	}
	times, ok := t.times[idx]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrNotDate)
	}
	return append([]NullTime(nil), times...), nil
}

// FilterRange returns a new table with the rows whose numeric value in column
// lies in [min, max], both ends inclusive. Row and column order are kept and
// the result shares no storage with t. Missing values never match, and an
// inverted range matches nothing.
func (t *Table) FilterRange(name string, min, max float64) (*Table, error) {
	values, err := t.Floats(name)
	if err != nil {
		return nil, err
	}
	keep := make([]int, 0, len(values))
	for i, v := range values {
		if v >= min && v <= max {
			keep = append(keep, i)
		}
	}
	return t.take(keep), nil
}

func (t *Table) take(indices []int) *Table {
	out := &Table{
		header: append([]string(nil), t.header...),
		rows:   make([][]string, 0, len(indices)),
	}
	for _, i := range indices {
		out.rows = append(out.rows, append([]string(nil), t.rows[i]...))
	}
	if len(t.times) > 0 {
		out.times = make(map[int][]NullTime, len(t.times))
		for col, times := range t.times {
			kept := make([]NullTime, 0, len(indices))
			for _, i := range indices {
				kept = append(kept, times[i])
			}
			out.times[col] = kept
		}
	}
	return out
}
