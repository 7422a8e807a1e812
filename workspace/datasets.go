package workspace

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/liamcoop/sqlgen/dataset"
	"github.com/liamcoop/sqlgen/internal/logger"
	"github.com/liamcoop/sqlgen/rules"
)

// Upload describes an uploaded file
type Upload struct {
	Name     string
	Size     int64
	MimeType string
	Body     io.Reader
}

// UploadDataset parses an .xlsx or .csv upload and stores its content
func (w *Workspace) UploadDataset(up Upload) (*rules.Dataset, error) {
	format, err := dataset.FormatFromName(up.Name)
	if err != nil {
		return nil, invalid("%v", err)
	}

	sheet, err := dataset.Parse(format, up.Body)
	if err != nil {
		return nil, invalid("failed to parse %s: %v", up.Name, err)
	}

	ds := &rules.Dataset{
		OriginalName: up.Name,
		FileName:     uuid.NewString() + strings.ToLower(filepath.Ext(up.Name)),
		Size:         up.Size,
		MimeType:     up.MimeType,
		Headers:      sheet.Headers,
		Rows:         sheet.Rows,
		OwnerID:      w.OwnerID,
	}
	if err := w.Datasets.Add(ds); err != nil {
		return nil, fmt.Errorf("failed to store dataset: %w", err)
	}

	logger.Info("dataset uploaded",
		"owner", w.OwnerID,
		"dataset_id", ds.ID,
		"name", ds.OriginalName,
		"headers", len(ds.Headers),
		"rows", len(ds.Rows))
	return ds, nil
}

// GetDataset returns a stored dataset with all of its rows
func (w *Workspace) GetDataset(id int64) (*rules.Dataset, error) {
	return w.Datasets.Get(id)
}

// PreviewDataset returns the headers and first rows of a dataset
func (w *Workspace) PreviewDataset(id int64) (*dataset.Preview, error) {
	ds, err := w.Datasets.Get(id)
	if err != nil {
		return nil, err
	}
	return dataset.NewPreview(ds, dataset.DefaultPreviewRows)
}
