package pipeline

import (
	"fmt"
	"sync"
)

// DualWriter outputs to both XLSX and JSONL formats simultaneously
type DualWriter struct {
	xlsxWriter  *XLSXWriter
	jsonlWriter *JSONLWriter
	mu          sync.Mutex
}

// NewDualWriter creates a new dual writer for both XLSX and JSONL output
func NewDualWriter(xlsxFilename, jsonlFilename string, columns []string) (*DualWriter, error) {
	xlsxWriter, err := NewXLSXWriter(xlsxFilename, columns)
	if err != nil {
		return nil, fmt.Errorf("failed to create XLSX writer: %w", err)
	}

	jsonlWriter, err := NewJSONLWriter(jsonlFilename, columns)
	if err != nil {
		xlsxWriter.file.Close()
		return nil, fmt.Errorf("failed to create JSONL writer: %w", err)
	}

	return &DualWriter{
		xlsxWriter:  xlsxWriter,
		jsonlWriter: jsonlWriter,
	}, nil
}

// WriteRows writes rows to both outputs
func (dw *DualWriter) WriteRows(rows [][]any) error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	if err := dw.xlsxWriter.WriteRows(rows); err != nil {
		return fmt.Errorf("XLSX write failed: %w", err)
	}
	if err := dw.jsonlWriter.WriteRows(rows); err != nil {
		return fmt.Errorf("JSONL write failed: %w", err)
	}

	return nil
}

// Close closes both writers
func (dw *DualWriter) Close() error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	var errs []error

	if err := dw.xlsxWriter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("XLSX close failed: %w", err))
	}

	if err := dw.jsonlWriter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("JSONL close failed: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("multiple errors: %v", errs)
	}

	return nil
}

// Validate validates both output files
func (dw *DualWriter) Validate() error {
	var errs []error

	if err := dw.xlsxWriter.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("XLSX validation failed: %w", err))
	}

	if err := dw.jsonlWriter.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("JSONL validation failed: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors: %v", errs)
	}

	return nil
}
