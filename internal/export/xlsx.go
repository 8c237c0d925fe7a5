package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"leadgen-server/internal/leads"

	"github.com/xuri/excelize/v2"
)

const leadsSheet = "Leads"

// XLSXWriter writes a run's leads to a local Excel workbook.
type XLSXWriter struct {
	dir string
}

func NewXLSXWriter(dir string) (*XLSXWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}
	return &XLSXWriter{dir: dir}, nil
}

// Write creates <dir>/leads-<runID>-<timestamp>.xlsx with a Leads sheet and
// a Summary sheet and returns the file path.
func (w *XLSXWriter) Write(ctx context.Context, runID string, items []leads.Lead, summary string) (string, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(leadsSheet)
	if err != nil {
		return "", fmt.Errorf("failed to create sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create style: %w", err)
	}

	for i, header := range leadHeaders {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(leadsSheet, cell, header)
		f.SetCellStyle(leadsSheet, cell, cell, headerStyle)
	}

	for rowIdx, row := range leadRows(items) {
		for colIdx, value := range row {
			cell := fmt.Sprintf("%c%d", 'A'+colIdx, rowIdx+2)
			f.SetCellValue(leadsSheet, cell, value)
		}
	}

	for i := range leadHeaders {
		col := string(rune('A' + i))
		f.SetColWidth(leadsSheet, col, col, 20)
	}

	if _, err := f.NewSheet("Summary"); err == nil {
		f.SetCellValue("Summary", "A1", "Run ID")
		f.SetCellValue("Summary", "B1", runID)
		f.SetCellValue("Summary", "A2", "Summary")
		f.SetCellValue("Summary", "B2", summary)
	}

	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	filename := fmt.Sprintf("leads-%s-%s.xlsx", runID, time.Now().Format("20060102-150405"))
	path := filepath.Join(w.dir, filename)
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("failed to save file: %w", err)
	}

	return path, nil
}
