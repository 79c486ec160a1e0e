package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"

	"github.com/xuri/excelize/v2"

	"github.com/aluiziolira/marketplace-capture/models"
)

const defaultSheet = "Sheet1"

// AppendRunSheet appends m as one row of sheet in the workbook at path. The
// workbook and sheet are created when missing; a new sheet gets the header
// row first.
func AppendRunSheet(path, sheet string, m *models.RunMetrics) error {
	if sheet == "" {
		return fmt.Errorf("sheet name cannot be empty")
	}
	if m == nil || !m.Finalized() {
		return fmt.Errorf("run metrics must be finalized before saving")
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	f, created, err := openOrCreate(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if !slices.Contains(f.GetSheetList(), sheet) {
		idx, err := f.NewSheet(sheet)
		if err != nil {
			return fmt.Errorf("create sheet %q: %w", sheet, err)
		}
		if created {
			if err := f.DeleteSheet(defaultSheet); err != nil {
				return fmt.Errorf("drop default sheet: %w", err)
			}
			idx = 0
		}
		f.SetActiveSheet(idx)
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	next := len(rows) + 1
	if len(rows) == 0 {
		header := make([]any, len(models.RunColumns))
		for i, c := range models.RunColumns {
			header[i] = c
		}
		if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		next = 2
	}
	cell, err := excelize.CoordinatesToCellName(1, next)
	if err != nil {
		return fmt.Errorf("metrics cell name: %w", err)
	}
	values := m.Values()
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write metrics row: %w", err)
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save metrics workbook: %w", err)
	}
	return nil
}

func openOrCreate(path string) (*excelize.File, bool, error) {
	f, err := excelize.OpenFile(path)
	if err == nil {
		return f, false, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return excelize.NewFile(), true, nil
	}
	if _, statErr := os.Stat(path); errors.Is(statErr, fs.ErrNotExist) {
		return excelize.NewFile(), true, nil
	}
	return nil, false, fmt.Errorf("open metrics workbook: %w", err)
}
