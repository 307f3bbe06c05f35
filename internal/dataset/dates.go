package dataset

import (
	"strings"

	"github.com/araddon/dateparse"
)

const (
	dateOnlyLayout = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04:05"
	dateFracLayout = "2006-01-02 15:04:05.999999999"
)

// ParseDates converts a column to timestamps in place. Values that do not
// parse, and missing cells, become the null marker instead of an error.
// Parsed values are normalised to UTC.
func (t *Table) ParseDates(name string) error {
	idx, err := t.column(name)
	if err != nil {
		return err
	}
	times := make([]NullTime, len(t.rows))
	for i, row := range t.rows {
		times[i] = ParseTime(row[idx])
	}
	if t.times == nil {
		t.times = make(map[int][]NullTime)
	}
	t.times[idx] = times
	return nil
}

// ParseTime parses one cell with format detection. Bare numbers and clock
// times that only yield a year-zero value are not dates.
func ParseTime(cell string) NullTime {
	cell = strings.TrimSpace(cell)
	if IsMissing(cell) {
		return NullTime{}
	}
	ts, err := dateparse.ParseAny(cell)
	if err != nil || ts.Year() == 0 {
		return NullTime{}
	}
	return NullTime{Time: ts.UTC(), Valid: true}
}

// dateLayout picks a date-only rendering when every value sits at midnight,
// so a column of calendar dates is written back as calendar dates.
func dateLayout(times []NullTime) string {
	layout := dateOnlyLayout
	for _, v := range times {
		if !v.Valid {
			continue
		}
		if v.Time.Nanosecond() != 0 {
			return dateFracLayout
		}
		h, m, s := v.Time.Clock()
		if h != 0 || m != 0 || s != 0 {
			layout = dateTimeLayout
		}
	}
	return layout
}

func formatTime(v NullTime, layout string) string {
	if !v.Valid {
		return ""
	}
	return v.Time.Format(layout)
}
