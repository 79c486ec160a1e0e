// Package cleaning normalizes spreadsheet exports produced by the capture
// runs and by travel-booking scrapers.
package cleaning

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/aluiziolira/marketplace-capture/pipeline"
)

// ErrNoData is returned when an input file holds a header and no rows.
var ErrNoData = errors.New("cleaning: input has no rows")

// OutputSuffix is appended to the input's base name for the cleaned file.
const OutputSuffix = "_depurado"

// Frame is an in-memory string table. An empty cell is a null value.
type Frame struct {
	columns []string
	index   map[string]int
	rows    [][]string
}

// NewFrame builds a frame; rows shorter than the header are padded.
func NewFrame(columns []string, rows [][]string) *Frame {
	f := &Frame{
		columns: append([]string(nil), columns...),
		index:   make(map[string]int, len(columns)),
	}
	for i, c := range f.columns {
		f.index[strings.TrimSpace(c)] = i
	}
	for _, r := range rows {
		f.rows = append(f.rows, pad(r, len(columns)))
	}
	return f
}

func pad(row []string, n int) []string {
	out := make([]string, n)
	copy(out, row)
	return out
}

// Columns implements pipeline.Table.
func (f *Frame) Columns() []string {
	return append([]string(nil), f.columns...)
}

// Rows implements pipeline.Table.
func (f *Frame) Rows() [][]any {
	out := make([][]any, len(f.rows))
	for i, r := range f.rows {
		row := make([]any, len(r))
		for j, v := range r {
			row[j] = v
		}
		out[i] = row
	}
	return out
}

// Len implements pipeline.Table.
func (f *Frame) Len() int {
	return len(f.rows)
}

// Records returns a copy of the rows as strings.
func (f *Frame) Records() [][]string {
	out := make([][]string, len(f.rows))
	for i, r := range f.rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}

// Column returns the position of name.
func (f *Frame) Column(name string) (int, bool) {
	i, ok := f.index[name]
	return i, ok
}

func (f *Frame) require(names ...string) ([]int, error) {
	idx := make([]int, len(names))
	for i, n := range names {
		c, ok := f.index[n]
		if !ok {
			return nil, &MissingColumnError{Column: n}
		}
		idx[i] = c
	}
	return idx, nil
}

// mapColumns rewrites the cells of the given columns.
func (f *Frame) mapColumns(cols []int, fn func(string) string) {
	for _, r := range f.rows {
		for _, c := range cols {
			r[c] = fn(r[c])
		}
	}
}

// mapAll rewrites every cell.
func (f *Frame) mapAll(fn func(string) string) {
	for _, r := range f.rows {
		for c := range r {
			r[c] = fn(r[c])
		}
	}
}

// filter keeps the rows for which keep returns true and reports how many
// were dropped.
func (f *Frame) filter(keep func([]string) bool) int {
	kept := f.rows[:0]
	for _, r := range f.rows {
		if keep(r) {
			kept = append(kept, r)
		}
	}
	dropped := len(f.rows) - len(kept)
	clear(f.rows[len(kept):])
	f.rows = kept
	return dropped
}

// MissingColumnError reports a column a profile needs but the input lacks.
type MissingColumnError struct {
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("cleaning: missing column %q", e.Column)
}

// CellError reports a value that could not be converted.
type CellError struct {
	Row    int
	Column string
	Value  string
	Err    error
}

func (e *CellError) Error() string {
	return fmt.Sprintf("cleaning: row %d column %q value %q: %v", e.Row, e.Column, e.Value, e.Err)
}

func (e *CellError) Unwrap() error {
	return e.Err
}

// ReadFile loads a CSV or the first sheet of an XLSX workbook. CSV input may be
// ';'-separated (cleaned and spreadsheet exports) or ','-separated (capture
// output); the header line decides.
func ReadFile(path string) (*Frame, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		return readCSV(f)
	case ".xlsx":
		return readXLSX(path)
	default:
		return nil, fmt.Errorf("cleaning: unsupported input %q (want .csv or .xlsx)", filepath.Base(path))
	}
}

func readCSV(r io.Reader) (*Frame, error) {
	br := bufio.NewReader(r)
	if bom, err := br.Peek(3); err == nil && bytes.Equal(bom, []byte{0xEF, 0xBB, 0xBF}) {
		br.Discard(3)
	}
	cr := csv.NewReader(br)
	cr.Comma = sniffComma(br)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) < 2 {
		return nil, ErrNoData
	}
	return NewFrame(records[0], records[1:]), nil
}

// sniffComma picks the separator that occurs most often in the header line,
// preferring ';' on ties.
func sniffComma(br *bufio.Reader) rune {
	head, _ := br.Peek(br.Size())
	if i := bytes.IndexByte(head, '\n'); i >= 0 {
		head = head[:i]
	}
	if bytes.Count(head, []byte{','}) > bytes.Count(head, []byte{';'}) {
		return ','
	}
	return ';'
}

func readXLSX(path string) (*Frame, error) {
	wb, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoData
	}
	rows, err := wb.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(rows) < 2 {
		return nil, ErrNoData
	}
	return NewFrame(rows[0], rows[1:]), nil
}

// OutputPath returns <dir>/<base>_depurado.csv for input.
func OutputPath(input string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + OutputSuffix + ".csv"
}

// WriteCSV saves f as a ';'-separated CSV with a UTF-8 byte order mark.
func WriteCSV(path string, f *Frame) error {
	w, err := pipeline.NewCSVWriterWithOptions(path, f.Columns(), pipeline.CSVOptions{Comma: ';', BOM: true})
	if err != nil {
		return err
	}
	if err := w.WriteRows(f.Rows()); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return w.Validate()
}
