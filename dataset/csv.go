package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/liamcoop/sqlgen/rules"
)

// ParseCSV reads a comma separated file whose first record is the header
// row. Cells stay strings; empty cells become nil.
func ParseCSV(r io.Reader) (*Sheet, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	out := &Sheet{Headers: []string{}, Rows: []rules.Row{}}

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\uFEFF")
	}
	out.Headers = headerNames(header)

	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}

		row := make(rules.Row, len(record))
		for j, cell := range record {
			header := columnName(out.Headers, j)
			if cell == "" {
				row[header] = nil
				continue
			}
			row[header] = cell
		}
		out.Rows = append(out.Rows, row)
	}

	return out, nil
}
