package pipeline

import (
	"bufio"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"
)

var testColumns = []string{"title", "creation_time", "price_amount", "is_sold", "listing_url"}

func testRows() [][]any {
	return [][]any{
		{"Casaca jean", int64(1674990000), 80.5, false, "https://market.example.test/item/1"},
		{"Vestido, talla M", int64(1674990100), nil, nil, nil},
	}
}

func TestCSVWriterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "listings.csv")

	writer, err := NewCSVWriter(path, testColumns)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	if err := writer.WriteRows(testRows()); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate csv: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	want := [][]string{
		testColumns,
		{"Casaca jean", "1674990000", "80.5", "false", "https://market.example.test/item/1"},
		{"Vestido, talla M", "1674990100", "", "", ""},
	}
	if diff := cmp.Diff(want, records); diff != "" {
		t.Fatalf("csv mismatch (-want +got):\n%s", diff)
	}
}

func TestJSONLWriterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "listings.jsonl")

	writer, err := NewJSONLWriter(path, testColumns)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}
	if err := writer.WriteRows(testRows()); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close json: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open json: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines []map[string]any
	for scanner.Scan() {
		if !strings.HasPrefix(scanner.Text(), `{"title":`) {
			t.Fatalf("keys not in column order: %s", scanner.Text())
		}
		var decoded map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid json line: %v", err)
		}
		lines = append(lines, decoded)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan json: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("json lines=%d, want 2", len(lines))
	}
	if lines[1]["price_amount"] != nil {
		t.Fatalf("nil cell should encode as null, got %v", lines[1]["price_amount"])
	}
	if lines[0]["price_amount"] != 80.5 {
		t.Fatalf("price = %v, want 80.5", lines[0]["price_amount"])
	}
}

func TestXLSXWriterWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "listings.xlsx")

	writer, err := NewXLSXWriter(path, testColumns)
	if err != nil {
		t.Fatalf("create xlsx writer: %v", err)
	}
	if err := writer.WriteRows(testRows()); err != nil {
		t.Fatalf("write xlsx: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close xlsx: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate xlsx: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Sheet1")
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	if diff := cmp.Diff(testColumns, rows[0]); diff != "" {
		t.Fatalf("header mismatch (-want +got):\n%s", diff)
	}
	if rows[1][0] != "Casaca jean" || rows[2][0] != "Vestido, talla M" {
		t.Fatalf("unexpected titles: %q %q", rows[1][0], rows[2][0])
	}
}

func TestDualWriterWrite(t *testing.T) {
	dir := t.TempDir()
	xlsxPath := filepath.Join(dir, "listings.xlsx")
	jsonPath := filepath.Join(dir, "listings.jsonl")

	writer, err := NewDualWriter(xlsxPath, jsonPath, testColumns)
	if err != nil {
		t.Fatalf("create dual writer: %v", err)
	}
	if err := writer.WriteRows(testRows()); err != nil {
		t.Fatalf("write dual: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close dual: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate dual: %v", err)
	}
}

func TestDatedPath(t *testing.T) {
	day := time.Date(2023, time.January, 29, 0, 0, 0, 0, time.UTC)
	got := DatedPath(filepath.Join("Data", "datos"), "fb_data", day, 42, ".xlsx")
	want := filepath.Join("Data", "datos", "29-01-2023", "fb_data_29012023_42.xlsx")
	if got != want {
		t.Fatalf("DatedPath() = %q, want %q", got, want)
	}
}

func TestSaveTable(t *testing.T) {
	dir := t.TempDir()
	day := time.Date(2023, time.January, 29, 0, 0, 0, 0, time.UTC)

	empty := NewListingTable()
	path, err := SaveTable("csv", dir, "fb_data", day, 0, empty)
	if err != nil || path != "" {
		t.Fatalf("empty table: path=%q err=%v, want skip", path, err)
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Fatalf("empty table should not create files, found %d entries", len(entries))
	}

	table := NewListingTable()
	table.Append(listing(1))
	table.Append(listing(2))
	path, err = SaveTable("csv", dir, "fb_data", day, table.Len(), table)
	if err != nil {
		t.Fatalf("SaveTable() error = %v", err)
	}
	if want := filepath.Join(dir, "29-01-2023", "fb_data_29012023_2.csv"); path != want {
		t.Fatalf("path = %q, want %q", path, want)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 3 || len(records[0]) != 20 {
		t.Fatalf("got %d rows x %d cols, want 3 x 20", len(records), len(records[0]))
	}
}

func TestNewWriterRejectsUnknownFormat(t *testing.T) {
	if _, err := NewWriter("parquet", filepath.Join(t.TempDir(), "x.parquet"), testColumns); err == nil {
		t.Fatalf("expected unsupported format error")
	}
}
