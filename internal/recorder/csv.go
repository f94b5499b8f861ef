package recorder

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"

	"github.com/vitalstream/bioengine/internal/types"
)

// csvColumn pairs a CSV header label with the ndjson key it is read from.
type csvColumn struct {
	header string
	key    string
}

// streamColumns returns the documented column order for one raw sample
// stream, or nil for any stream with no fixed export contract (processed
// windows), which fall back to the alphabetical union of record keys.
func streamColumns(sensor types.SensorKind, kind types.DataType) []csvColumn {
	switch {
	case sensor == types.SensorEEG && kind == types.DataRaw:
		return []csvColumn{{"timestamp", "ts"}, {"CH1", "ch1_uv"}, {"CH2", "ch2_uv"}}
	case sensor == types.SensorPPG && kind == types.DataRaw:
		return []csvColumn{{"timestamp", "ts"}, {"Red", "red"}, {"IR", "ir"}}
	case sensor == types.SensorACC && kind == types.DataRaw:
		return []csvColumn{{"timestamp", "ts"}, {"X", "x"}, {"Y", "y"}, {"Z", "z"}}
	case sensor == types.SensorBattery && kind == types.DataBattery:
		return []csvColumn{{"timestamp", "ts"}, {"Percent", "level_percent"}}
	default:
		return nil
	}
}

// csvWriter flattens a slice of heterogeneous JSON-decoded records into a
// CSV, using the stream's documented column order where one is defined,
// or the union of all keys seen, sorted, otherwise.
type csvWriter struct {
	w *csv.Writer
}

func newCSVWriter(w io.Writer) *csvWriter {
	return &csvWriter{w: csv.NewWriter(w)}
}

func (c *csvWriter) writeRecords(sensor types.SensorKind, kind types.DataType, records []map[string]any) error {
	defer c.w.Flush()

	if cols := streamColumns(sensor, kind); cols != nil {
		return c.writeFixedColumns(cols, records)
	}

	columns := collectColumns(records)
	if err := c.w.Write(columns); err != nil {
		return err
	}
	for _, rec := range records {
		row := make([]string, len(columns))
		for i, col := range columns {
			if v, ok := rec[col]; ok {
				row[i] = fmt.Sprint(v)
			}
		}
		if err := c.w.Write(row); err != nil {
			return err
		}
	}
	return c.w.Error()
}

func (c *csvWriter) writeFixedColumns(cols []csvColumn, records []map[string]any) error {
	headers := make([]string, len(cols))
	for i, col := range cols {
		headers[i] = col.header
	}
	if err := c.w.Write(headers); err != nil {
		return err
	}
	for _, rec := range records {
		row := make([]string, len(cols))
		for i, col := range cols {
			if v, ok := rec[col.key]; ok {
				row[i] = fmt.Sprint(v)
			}
		}
		if err := c.w.Write(row); err != nil {
			return err
		}
	}
	return c.w.Error()
}

func collectColumns(records []map[string]any) []string {
	seen := make(map[string]struct{})
	for _, rec := range records {
		for k := range rec {
			seen[k] = struct{}{}
		}
	}
	columns := make([]string, 0, len(seen))
	for k := range seen {
		columns = append(columns, k)
	}
	sort.Strings(columns)
	return columns
}
