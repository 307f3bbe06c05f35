package dataset

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const utf8BOM = "\ufeff"

// ReadCSV parses comma-delimited text whose first record is the header.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(bufio.NewReader(r))
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("parse csv: empty input")
		}
		return nil, fmt.Errorf("parse csv header: %w", err)
	}
	header[0] = strings.TrimPrefix(header[0], utf8BOM)

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	t, err := New(header, records)
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return t, nil
}

func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f)
}

// WriteCSV writes the header and every row. No index column is added.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	rendered := make(map[int][]string, len(t.times))
	for idx := range t.times {
		values, err := t.Strings(t.header[idx])
		if err != nil {
			return err
		}
		rendered[idx] = values
	}

	record := make([]string, len(t.header))
	for i, row := range t.rows {
		copy(record, row)
		for idx, values := range rendered {
			record[idx] = values[i]
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// WriteFile creates or truncates path and writes the table to it.
func (t *Table) WriteFile(path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	bw := bufio.NewWriter(f)
	if err := t.WriteCSV(bw); err != nil {
		return err
	}
	return bw.Flush()
}
