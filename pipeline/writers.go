package pipeline

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/xuri/excelize/v2"
)

// OutputWriter streams rows under a fixed header to one destination.
type OutputWriter interface {
	WriteRows(rows [][]any) error
	Close() error
	Validate() error
}

// CSVWriter writes rows to CSV.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

// CSVOptions tunes the CSV dialect.
type CSVOptions struct {
	Comma rune
	// BOM prefixes the file with a UTF-8 byte order mark so spreadsheet
	// tools detect the encoding.
	BOM bool
}

// NewCSVWriter initialises a comma-separated writer and writes the header row.
func NewCSVWriter(filename string, columns []string) (*CSVWriter, error) {
	return NewCSVWriterWithOptions(filename, columns, CSVOptions{Comma: ','})
}

// NewCSVWriterWithOptions initialises a CSV writer in the given dialect and
// writes the header row.
func NewCSVWriterWithOptions(filename string, columns []string, opts CSVOptions) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}
	if opts.BOM {
		if _, err := f.WriteString("\uFEFF"); err != nil {
			f.Close()
			return nil, fmt.Errorf("write csv bom: %w", err)
		}
	}

	writer := csv.NewWriter(f)
	if opts.Comma != 0 {
		writer.Comma = opts.Comma
	}
	if err := writer.Write(columns); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}

	return &CSVWriter{
		file:   f,
		writer: writer,
	}, nil
}

// WriteRows appends rows to the CSV output.
func (cw *CSVWriter) WriteRows(rows [][]any) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, row := range rows {
		record := make([]string, len(row))
		for i, v := range row {
			record[i] = formatCell(v)
		}
		if err := cw.writer.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// Validate ensures the file has content besides the header.
func (cw *CSVWriter) Validate() error {
	info, err := os.Stat(cw.file.Name())
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("csv file is empty")
	}
	return nil
}

// JSONLWriter writes newline-delimited JSON objects keyed by column name.
type JSONLWriter struct {
	file    *os.File
	writer  *bufio.Writer
	columns []string
	mu      sync.Mutex
}

// NewJSONLWriter initialises the JSONL writer.
func NewJSONLWriter(filename string, columns []string) (*JSONLWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create json file: %w", err)
	}

	return &JSONLWriter{
		file:    f,
		writer:  bufio.NewWriter(f),
		columns: columns,
	}, nil
}

// WriteRows appends one object per row, keys in column order.
func (jw *JSONLWriter) WriteRows(rows [][]any) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	var line bytes.Buffer
	for _, row := range rows {
		line.Reset()
		line.WriteByte('{')
		for i, col := range jw.columns {
			if i > 0 {
				line.WriteByte(',')
			}
			key, err := json.Marshal(col)
			if err != nil {
				return fmt.Errorf("encode json key: %w", err)
			}
			var v any
			if i < len(row) {
				v = row[i]
			}
			val, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("encode json value %s: %w", col, err)
			}
			line.Write(key)
			line.WriteByte(':')
			line.Write(val)
		}
		line.WriteString("}\n")
		if _, err := jw.writer.Write(line.Bytes()); err != nil {
			return fmt.Errorf("write json record: %w", err)
		}
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.file.Close()
}

// Validate ensures the JSON file has data.
func (jw *JSONLWriter) Validate() error {
	info, err := os.Stat(jw.file.Name())
	if err != nil {
		return fmt.Errorf("stat json file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("json file is empty")
	}
	return nil
}

// XLSXWriter streams rows into the first sheet of a new workbook. The
// workbook is only written to disk on Close.
type XLSXWriter struct {
	filename string
	file     *excelize.File
	stream   *excelize.StreamWriter
	next     int
	mu       sync.Mutex
}

// NewXLSXWriter creates a workbook and writes the header row.
func NewXLSXWriter(filename string, columns []string) (*XLSXWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	stream, err := f.NewStreamWriter("Sheet1")
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create xlsx stream: %w", err)
	}
	header := make([]any, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := stream.SetRow("A1", header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write xlsx header: %w", err)
	}

	return &XLSXWriter{
		filename: filename,
		file:     f,
		stream:   stream,
		next:     2,
	}, nil
}

// WriteRows appends rows after the last written row.
func (xw *XLSXWriter) WriteRows(rows [][]any) error {
	xw.mu.Lock()
	defer xw.mu.Unlock()

	for _, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, xw.next)
		if err != nil {
			return fmt.Errorf("xlsx cell name: %w", err)
		}
		values := make([]any, len(row))
		for i, v := range row {
			values[i] = xlsxCell(v)
		}
		if err := xw.stream.SetRow(cell, values); err != nil {
			return fmt.Errorf("write xlsx row %d: %w", xw.next, err)
		}
		xw.next++
	}
	return nil
}

// Close flushes the stream and saves the workbook.
func (xw *XLSXWriter) Close() error {
	xw.mu.Lock()
	defer xw.mu.Unlock()

	defer xw.file.Close()
	if err := xw.stream.Flush(); err != nil {
		return fmt.Errorf("flush xlsx stream: %w", err)
	}
	if err := xw.file.SaveAs(xw.filename); err != nil {
		return fmt.Errorf("save xlsx file: %w", err)
	}
	return nil
}

// Validate ensures the saved workbook exists and has data.
func (xw *XLSXWriter) Validate() error {
	info, err := os.Stat(xw.filename)
	if err != nil {
		return fmt.Errorf("stat xlsx file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("xlsx file is empty")
	}
	return nil
}

// NewWriter builds the OutputWriter for format. The dual format writes the
// workbook plus a JSONL sibling.
func NewWriter(format, filename string, columns []string) (OutputWriter, error) {
	switch format {
	case "xlsx":
		return NewXLSXWriter(filename, columns)
	case "csv":
		return NewCSVWriter(filename, columns)
	case "jsonl":
		return NewJSONLWriter(filename, columns)
	case "dual":
		return NewDualWriter(filename, replaceExt(filename, ".jsonl"), columns)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// Extension returns the primary file extension for format.
func Extension(format string) string {
	switch format {
	case "csv":
		return ".csv"
	case "jsonl":
		return ".jsonl"
	default:
		return ".xlsx"
	}
}

// DatedPath builds <dir>/<DD-MM-YYYY>/<prefix>_<DDMMYYYY>_<count><ext>.
func DatedPath(dir, prefix string, day time.Time, count int, ext string) string {
	name := fmt.Sprintf("%s_%s_%d%s", prefix, day.Format("02012006"), count, ext)
	return filepath.Join(dir, day.Format("02-01-2006"), name)
}

// SaveTable writes t to a dated file and returns its path. Empty tables are
// skipped and return an empty path.
func SaveTable(format, dir, prefix string, day time.Time, count int, t Table) (string, error) {
	if t.Len() == 0 {
		return "", nil
	}
	path := DatedPath(dir, prefix, day, count, Extension(format))
	w, err := NewWriter(format, path, t.Columns())
	if err != nil {
		return "", err
	}
	if err := w.WriteRows(t.Rows()); err != nil {
		w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	if err := w.Validate(); err != nil {
		return "", err
	}
	return path, nil
}

func formatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		return t.Format(time.RFC3339)
	case fmt.Stringer:
		return t.String()
	}
	return fmt.Sprint(v)
}

func xlsxCell(v any) any {
	switch v.(type) {
	case nil:
		return nil
	case string, bool, int, int64, float64, time.Time:
		return v
	}
	return formatCell(v)
}

func replaceExt(filename, ext string) string {
	return filename[:len(filename)-len(filepath.Ext(filename))] + ext
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
