package spreadsheet

import (
	"fmt"

	"github.com/orderguard/backend/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	resultsSheet = "Results"
	summarySheet = "Summary"

	// excelize built-in number format "0.00"
	numFmtTwoDecimals = 2
)

var resultHeaders = []string{
	"Line",
	"Model",
	"PO Price",
	"Book Price",
	"Status",
	"Discrepancy",
	"Description",
}

// Exporter writes processed purchase orders as XLSX workbooks
type Exporter struct{}

// NewExporter creates a result exporter
func NewExporter() *Exporter {
	return &Exporter{}
}

// ExportResults returns a workbook with one row per comparison result and a
// summary sheet
func (e *Exporter) ExportResults(po *domain.ProcessedPO) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	// Rename the default sheet rather than leaving an empty one behind
	if err := f.SetSheetName("Sheet1", resultsSheet); err != nil {
		return nil, err
	}

	money, err := f.NewStyle(&excelize.Style{NumFmt: numFmtTwoDecimals})
	if err != nil {
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}

	for i, h := range resultHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(resultsSheet, cell, h)
	}
	_ = f.SetCellStyle(resultsSheet, "A1", "G1", bold)

	row := 2
	for _, r := range po.Results {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(resultsSheet, cell, v)
		}

		write(1, r.Line)
		write(2, r.Model)
		write(3, amount(r.POPrice))
		write(4, amount(r.BookPrice))
		write(5, string(r.Status))
		write(6, amount(r.Discrepancy))
		write(7, r.Description)
		row++
	}
	if row > 2 {
		_ = f.SetCellStyle(resultsSheet, "C2", fmt.Sprintf("D%d", row-1), money)
		_ = f.SetCellStyle(resultsSheet, "F2", fmt.Sprintf("F%d", row-1), money)
	}

	_ = f.SetColWidth(resultsSheet, "A", "A", 6)
	_ = f.SetColWidth(resultsSheet, "B", "B", 20)
	_ = f.SetColWidth(resultsSheet, "C", "D", 12)
	_ = f.SetColWidth(resultsSheet, "E", "E", 22)
	_ = f.SetColWidth(resultsSheet, "F", "F", 12)
	_ = f.SetColWidth(resultsSheet, "G", "G", 48)

	if err := writeSummary(f, po, bold, money); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSummary(f *excelize.File, po *domain.ProcessedPO, bold, money int) error {
	if _, err := f.NewSheet(summarySheet); err != nil {
		return err
	}

	rows := [][2]any{
		{"File", po.Filename},
		{"Price Book", po.PriceBookName},
		{"Processed At", po.ProcessedAt.UTC().Format("2006-01-02 15:04:05 UTC")},
		{"Total Lines", po.Summary.Total},
		{"Matched", po.Summary.Matched},
		{"Mismatched", po.Summary.Mismatched},
		{"Model Not Found", po.Summary.NotFound},
		{"Data Extraction Issues", po.Summary.ExtractionIssues},
		{"Net Discrepancy", po.Summary.NetDiscrepancy.Round(2).InexactFloat64()},
	}
	for i, kv := range rows {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", i+1), kv[0])
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", i+1), kv[1])
	}

	last := len(rows)
	_ = f.SetCellStyle(summarySheet, "A1", fmt.Sprintf("A%d", last), bold)
	_ = f.SetCellStyle(summarySheet, fmt.Sprintf("B%d", last), fmt.Sprintf("B%d", last), money)
	_ = f.SetColWidth(summarySheet, "A", "A", 24)
	_ = f.SetColWidth(summarySheet, "B", "B", 32)
	return nil
}

// amount renders an optional price as a number cell, or blank
func amount(d *decimal.Decimal) any {
	if d == nil {
		return ""
	}
	return d.Round(2).InexactFloat64()
}
