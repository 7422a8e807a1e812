package dataset

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/liamcoop/sqlgen/rules"
	"github.com/xuri/excelize/v2"
)

func workbook(t *testing.T, fill func(f *excelize.File, sheet string)) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	fill(f, sheet)

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("Failed to write workbook: %v", err)
	}
	return buf
}

func set(t *testing.T, f *excelize.File, sheet, cell string, v any) {
	t.Helper()
	if err := f.SetCellValue(sheet, cell, v); err != nil {
		t.Fatalf("SetCellValue(%s) failed: %v", cell, err)
	}
}

// TestParseExcelTypes verifies cell conversion per type
func TestParseExcelTypes(t *testing.T) {
	buf := workbook(t, func(f *excelize.File, sheet string) {
		set(t, f, sheet, "A1", "Name")
		set(t, f, sheet, "B1", "Amount")
		set(t, f, sheet, "C1", "Rate")
		set(t, f, sheet, "D1", "Active")
		set(t, f, sheet, "E1", "Joined")

		set(t, f, sheet, "A2", "O'Brien")
		set(t, f, sheet, "B2", 100)
		set(t, f, sheet, "C2", 1.5)
		set(t, f, sheet, "D2", true)
		set(t, f, sheet, "E2", 45292) // 2024-01-01

		style, err := f.NewStyle(&excelize.Style{NumFmt: 14})
		if err != nil {
			t.Fatalf("NewStyle failed: %v", err)
		}
		if err := f.SetCellStyle(sheet, "E2", "E2", style); err != nil {
			t.Fatalf("SetCellStyle failed: %v", err)
		}
	})

	got, err := ParseExcel(buf)
	if err != nil {
		t.Fatalf("ParseExcel() failed: %v", err)
	}

	wantHeaders := []string{"Name", "Amount", "Rate", "Active", "Joined"}
	if strings.Join(got.Headers, ",") != strings.Join(wantHeaders, ",") {
		t.Errorf("Headers = %v, want %v", got.Headers, wantHeaders)
	}
	if len(got.Rows) != 1 {
		t.Fatalf("Expected 1 row, got %d", len(got.Rows))
	}

	row := got.Rows[0]
	if row["Name"] != "O'Brien" {
		t.Errorf("Name = %#v", row["Name"])
	}
	if row["Amount"] != int64(100) {
		t.Errorf("Amount = %#v, want int64(100)", row["Amount"])
	}
	if row["Rate"] != 1.5 {
		t.Errorf("Rate = %#v, want 1.5", row["Rate"])
	}
	if row["Active"] != true {
		t.Errorf("Active = %#v, want true", row["Active"])
	}
	if row["Joined"] != "2024-01-01T00:00:00.000Z" {
		t.Errorf("Joined = %#v", row["Joined"])
	}
}

// TestParseExcelBlankCells verifies blank headers are named and empty cells are nil
func TestParseExcelBlankCells(t *testing.T) {
	buf := workbook(t, func(f *excelize.File, sheet string) {
		set(t, f, sheet, "A1", "id")
		set(t, f, sheet, "C1", "note")

		set(t, f, sheet, "A2", 1)
		set(t, f, sheet, "C2", "x")
	})

	got, err := ParseExcel(buf)
	if err != nil {
		t.Fatalf("ParseExcel() failed: %v", err)
	}
	if len(got.Headers) != 3 || got.Headers[1] != "Column_2" {
		t.Errorf("Headers = %v", got.Headers)
	}

	row := got.Rows[0]
	if v, ok := row["Column_2"]; !ok || v != nil {
		t.Errorf("Expected nil for empty cell, got %#v (present=%v)", v, ok)
	}
	if row["note"] != "x" {
		t.Errorf("note = %#v", row["note"])
	}
}

// TestParseExcelInvalid verifies non-workbook input fails
func TestParseExcelInvalid(t *testing.T) {
	if _, err := ParseExcel(strings.NewReader("not a workbook")); err == nil {
		t.Error("Expected error for invalid workbook")
	}
}

// TestParseCSV verifies header handling and empty cells
func TestParseCSV(t *testing.T) {
	input := "\uFEFFName,Amount,\nBob,100,x\n\"O'Brien, Jr\",,y,extra\n"

	got, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCSV() failed: %v", err)
	}

	if len(got.Headers) != 3 || got.Headers[0] != "Name" || got.Headers[2] != "Column_3" {
		t.Errorf("Headers = %v", got.Headers)
	}
	if len(got.Rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(got.Rows))
	}
	if got.Rows[0]["Amount"] != "100" {
		t.Errorf("Amount = %#v, want \"100\"", got.Rows[0]["Amount"])
	}
	if got.Rows[1]["Name"] != "O'Brien, Jr" {
		t.Errorf("Name = %#v", got.Rows[1]["Name"])
	}
	if v, ok := got.Rows[1]["Amount"]; !ok || v != nil {
		t.Errorf("Expected nil Amount, got %#v", v)
	}
	if got.Rows[1]["Column_4"] != "extra" {
		t.Errorf("Expected extra column to be named positionally, got %v", got.Rows[1])
	}
}

// TestParseCSVEmpty verifies empty input yields an empty sheet
func TestParseCSVEmpty(t *testing.T) {
	got, err := ParseCSV(strings.NewReader(""))
	if err != nil {
		t.Fatalf("ParseCSV() failed: %v", err)
	}
	if len(got.Headers) != 0 || len(got.Rows) != 0 {
		t.Errorf("Expected empty sheet, got %+v", got)
	}
}

// TestFormatFromName verifies extension handling
func TestFormatFromName(t *testing.T) {
	tests := []struct {
		name    string
		want    Format
		wantErr bool
	}{
		{"data.xlsx", FormatExcel, false},
		{"DATA.XLSX", FormatExcel, false},
		{"data.csv", FormatCSV, false},
		{"data.xls", "", true},
		{"data", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FormatFromName(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FormatFromName() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("FormatFromName() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestNewPreview verifies row truncation and invalid datasets
func TestNewPreview(t *testing.T) {
	ds := &rules.Dataset{Headers: []string{"a"}}
	for i := 0; i < 15; i++ {
		ds.Rows = append(ds.Rows, rules.Row{"a": i})
	}

	p, err := NewPreview(ds, DefaultPreviewRows)
	if err != nil {
		t.Fatalf("NewPreview() failed: %v", err)
	}
	if len(p.PreviewData) != 10 {
		t.Errorf("Expected 10 rows, got %d", len(p.PreviewData))
	}

	short, _ := NewPreview(&rules.Dataset{Headers: []string{"a"}, Rows: []rules.Row{{"a": 1}}}, 10)
	if len(short.PreviewData) != 1 {
		t.Errorf("Expected 1 row, got %d", len(short.PreviewData))
	}

	if _, err := NewPreview(&rules.Dataset{Headers: []string{"a"}}, 10); !errors.Is(err, rules.ErrInvalidData) {
		t.Errorf("Expected ErrInvalidData, got %v", err)
	}
}
