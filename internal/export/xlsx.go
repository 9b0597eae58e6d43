package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	verdictSheet = "Verdicts"
	failureSheet = "Failures"
)

// WriteXLSX renders r as a workbook with a verdict sheet and, when pages failed, a failure sheet.
func WriteXLSX(w io.Writer, r *Report) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", verdictSheet); err != nil {
		return fmt.Errorf("xlsx sheet: %w", err)
	}

	headers := []string{"Document", "Merchant", "Transaction Date", "Amount", "City", "Status", "Confidence", "Reasons"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(verdictSheet, cell, h)
	}
	if bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetRowStyle(verdictSheet, 1, 1, bold)
	}

	row := 2
	for _, rec := range r.Rows {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(verdictSheet, cell, v)
		}
		write(1, rec.SourceID)
		write(2, rec.Merchant)
		write(3, rec.Date)
		write(4, rec.Amount)
		write(5, rec.City)
		write(6, statusLabel(rec.Status))
		write(7, rec.Confidence)
		write(8, truncate(strings.Join(rec.Reasons, "; "), 500))
		row++
	}

	row++
	total, _ := r.Total.Float64()
	_ = f.SetCellValue(verdictSheet, fmt.Sprintf("C%d", row), "Total payable")
	_ = f.SetCellValue(verdictSheet, fmt.Sprintf("D%d", row), total)
	_ = f.SetCellValue(verdictSheet, fmt.Sprintf("E%d", row), r.Currency)

	_ = f.SetColWidth(verdictSheet, "A", "A", 30) // document
	_ = f.SetColWidth(verdictSheet, "B", "B", 26) // merchant
	_ = f.SetColWidth(verdictSheet, "C", "G", 14)
	_ = f.SetColWidth(verdictSheet, "H", "H", 60) // reasons

	if len(r.Failures) > 0 {
		if _, err := f.NewSheet(failureSheet); err != nil {
			return fmt.Errorf("xlsx sheet: %w", err)
		}
		for i, h := range []string{"Document", "Page", "Reason"} {
			cell, _ := excelize.CoordinatesToCellName(i+1, 1)
			_ = f.SetCellValue(failureSheet, cell, h)
		}
		for i, fl := range r.Failures {
			_ = f.SetCellValue(failureSheet, fmt.Sprintf("A%d", i+2), fl.Document)
			_ = f.SetCellValue(failureSheet, fmt.Sprintf("B%d", i+2), fl.Page)
			_ = f.SetCellValue(failureSheet, fmt.Sprintf("C%d", i+2), fl.Reason)
		}
		_ = f.SetColWidth(failureSheet, "A", "A", 30)
		_ = f.SetColWidth(failureSheet, "C", "C", 80)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
