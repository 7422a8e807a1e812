package dataset

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/liamcoop/sqlgen/rules"
)

// Format identifies an upload's file type
type Format string

const (
	FormatExcel Format = "xlsx"
	FormatCSV   Format = "csv"
)

// DefaultPreviewRows is the number of rows the preview endpoint returns
const DefaultPreviewRows = 10

// FormatFromName picks the parser from the file extension
func FormatFromName(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx":
		return FormatExcel, nil
	case ".csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unsupported file type %q, only .xlsx and .csv are accepted", filepath.Ext(name))
	}
}

// Parse reads r in the given format
func Parse(format Format, r io.Reader) (*Sheet, error) {
	switch format {
	case FormatExcel:
		return ParseExcel(r)
	case FormatCSV:
		return ParseCSV(r)
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

// Preview holds the headers and leading rows of a dataset
type Preview struct {
	Headers     []string    `json:"headers"`
	PreviewData []rules.Row `json:"previewData"`
}

// NewPreview returns the headers and at most n rows of ds. A dataset
// without headers or rows is reported as invalid.
func NewPreview(ds *rules.Dataset, n int) (*Preview, error) {
	if ds.Headers == nil || ds.Rows == nil {
		return nil, fmt.Errorf("dataset %d: %w", ds.ID, rules.ErrInvalidData)
	}
	rows := ds.Rows
	if len(rows) > n {
		rows = rows[:n]
	}
	return &Preview{Headers: ds.Headers, PreviewData: rows}, nil
}
