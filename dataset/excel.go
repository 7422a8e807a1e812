// Package dataset turns uploaded spreadsheets into header/row tables.
package dataset

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/liamcoop/sqlgen/rules"
	"github.com/xuri/excelize/v2"
)

// ErrNoSheets is returned for a workbook without worksheets
var ErrNoSheets = errors.New("workbook contains no worksheets")

// Sheet is a parsed table: the first row's cells become Headers and every
// later row becomes a Row keyed by header
type Sheet struct {
	Headers []string
	Rows    []rules.Row
}

// isoLayout matches the millisecond UTC form used across stored data
const isoLayout = "2006-01-02T15:04:05.000Z"

// ParseExcel reads the first worksheet of an .xlsx workbook
func ParseExcel(r io.Reader) (*Sheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel stream: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoSheets
	}
	sheet := sheets[0]

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}

	out := &Sheet{Headers: []string{}, Rows: []rules.Row{}}
	if len(rows) == 0 {
		return out, nil
	}

	out.Headers = headerNames(rows[0])
	dates := dateStyleCache{f: f, styles: make(map[int]bool)}

	for i, cols := range rows[1:] {
		rowNum := i + 2
		row := make(rules.Row, len(cols))
		for j, raw := range cols {
			header := columnName(out.Headers, j)
			if raw == "" {
				row[header] = nil
				continue
			}
			cell, err := excelize.CoordinatesToCellName(j+1, rowNum)
			if err != nil {
				return nil, err
			}
			v, err := cellValue(f, sheet, cell, raw, &dates)
			if err != nil {
				return nil, fmt.Errorf("cell %s: %w", cell, err)
			}
			row[header] = v
		}
		out.Rows = append(out.Rows, row)
	}

	return out, nil
}

func headerNames(cells []string) []string {
	headers := make([]string, len(cells))
	for i, h := range cells {
		if h == "" {
			h = fmt.Sprintf("Column_%d", i+1)
		}
		headers[i] = h
	}
	return headers
}

// columnName returns the header for a zero-based column, naming columns
// beyond the header row positionally
func columnName(headers []string, col int) string {
	if col < len(headers) {
		return headers[col]
	}
	return fmt.Sprintf("Column_%d", col+1)
}

func cellValue(f *excelize.File, sheet, cell, raw string, dates *dateStyleCache) (any, error) {
	typ, err := f.GetCellType(sheet, cell)
	if err != nil {
		return nil, err
	}

	switch typ {
	case excelize.CellTypeBool:
		return raw == "1" || strings.EqualFold(raw, "true"), nil
	case excelize.CellTypeInlineString, excelize.CellTypeSharedString, excelize.CellTypeError:
		return raw, nil
	case excelize.CellTypeDate:
		return raw, nil
	}

	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return raw, nil
	}

	isDate, err := dates.isDate(sheet, cell)
	if err != nil {
		return nil, err
	}
	if isDate {
		t, err := excelize.ExcelDateToTime(n, false)
		if err != nil {
			return nil, err
		}
		return t.UTC().Format(isoLayout), nil
	}

	if n == math.Trunc(n) && math.Abs(n) < 1<<53 {
		return int64(n), nil
	}
	return n, nil
}

// dateStyleCache remembers which cell style ids carry a date number format
type dateStyleCache struct {
	f      *excelize.File
	styles map[int]bool
}

func (c *dateStyleCache) isDate(sheet, cell string) (bool, error) {
	idx, err := c.f.GetCellStyle(sheet, cell)
	if err != nil {
		return false, err
	}
	if v, ok := c.styles[idx]; ok {
		return v, nil
	}

	style, err := c.f.GetStyle(idx)
	if err != nil {
		return false, err
	}
	v := isDateFormat(style.NumFmt, style.CustomNumFmt)
	c.styles[idx] = v
	return v, nil
}

// isDateFormat reports whether a built-in or custom number format renders dates
func isDateFormat(id int, custom *string) bool {
	switch {
	case id >= 14 && id <= 22, id >= 45 && id <= 47:
		return true
	}
	if custom == nil {
		return false
	}

	var b strings.Builder
	quoted := false
	bracket := false
	for _, r := range strings.ToLower(*custom) {
		switch {
		case r == '"':
			quoted = !quoted
		case quoted:
		case r == '[':
			bracket = true
		case r == ']':
			bracket = false
		case bracket:
		default:
			b.WriteRune(r)
		}
	}
	format := b.String()
	return strings.ContainsAny(format, "yd") || strings.Contains(format, "h") || strings.Contains(format, "ss")
}
