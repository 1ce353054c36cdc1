// Package tabular provides the in-memory model for the CSV datasets the
// matching pipeline joins, plus the codec used at the system boundaries.
package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Row is a single record keyed by column name. Cells read from ragged
// source rows that had no value for a column are simply absent.
type Row map[string]string

// Get returns the cell value for a column, or "" when the cell is missing.
func (r Row) Get(col string) string {
	return r[col]
}

// Dataset is an ordered sequence of rows sharing one header set.
// Datasets are read once and never mutated afterwards.
type Dataset struct {
	Headers []string
	Rows    []Row
}

// Len returns the number of data rows.
func (d *Dataset) Len() int {
	return len(d.Rows)
}

// Decode reads a CSV document. The first record is the header row.
// Ragged data rows are tolerated: short rows leave trailing cells empty,
// long rows drop the overflow.
func Decode(r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = false

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("csv is empty, expected a header row")
	}

	headers := records[0]
	ds := &Dataset{
		Headers: headers,
		Rows:    make([]Row, 0, len(records)-1),
	}

	for _, rec := range records[1:] {
		row := make(Row, len(headers))
		for i, h := range headers {
			if i < len(rec) {
				row[h] = rec[i]
			}
		}
		ds.Rows = append(ds.Rows, row)
	}

	return ds, nil
}

// DecodeString is a convenience wrapper around Decode.
func DecodeString(s string) (*Dataset, error) {
	return Decode(strings.NewReader(s))
}

// Encode renders rows back to CSV text in the given header order.
// An empty row set encodes to the empty string, headers included.
func Encode(headers []string, rows []Row) string {
	if len(rows) == 0 {
		return ""
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write(headers)
	for _, row := range rows {
		rec := make([]string, len(headers))
		for i, h := range headers {
			rec[i] = row[h]
		}
		w.Write(rec)
	}
	w.Flush()
	return buf.String()
}
