package report

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet holding the liability table.
const SheetName = "GST Liability"

// ContentType is the MIME type of the generated workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var header = []string{"Period", "Purchase GST", "Sales GST", "Net GST", "Status"}

// LiabilityRow is one period of the GST liability export.
type LiabilityRow struct {
	Period      string
	PurchaseGST decimal.Decimal
	SalesGST    decimal.Decimal
	NetGST      decimal.Decimal
	Status      string
}

// WriteGSTLiability renders rows as an xlsx workbook. When more than one row
// is given a totals row is appended.
func WriteGSTLiability(w io.Writer, rows []LiabilityRow) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("report: rename sheet: %w", err)
	}
	headStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("report: header style: %w", err)
	}
	// built-in format 4 is "#,##0.00"
	moneyStyle, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return fmt.Errorf("report: money style: %w", err)
	}

	for col, title := range header {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(SheetName, cell, title); err != nil {
			return err
		}
	}
	lastHead, _ := excelize.CoordinatesToCellName(len(header), 1)
	if err := f.SetCellStyle(SheetName, "A1", lastHead, headStyle); err != nil {
		return err
	}

	purchase, sales, net := decimal.Zero, decimal.Zero, decimal.Zero
	for i, row := range rows {
		if err := writeRow(f, i+2, row); err != nil {
			return err
		}
		purchase = purchase.Add(row.PurchaseGST)
		sales = sales.Add(row.SalesGST)
		net = net.Add(row.NetGST)
	}
	last := len(rows) + 1
	if len(rows) > 1 {
		status := "PAYABLE"
		if net.IsNegative() {
			status = "REFUNDABLE"
		}
		last++
		if err := writeRow(f, last, LiabilityRow{Period: "Total", PurchaseGST: purchase, SalesGST: sales, NetGST: net, Status: status}); err != nil {
			return err
		}
		totalStart, _ := excelize.CoordinatesToCellName(1, last)
		totalEnd, _ := excelize.CoordinatesToCellName(len(header), last)
		if err := f.SetCellStyle(SheetName, totalStart, totalEnd, headStyle); err != nil {
			return err
		}
	}
	if last >= 2 {
		end, _ := excelize.CoordinatesToCellName(4, last)
		if err := f.SetCellStyle(SheetName, "B2", end, moneyStyle); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(SheetName, "A", "E", 16); err != nil {
		return err
	}
	return f.Write(w)
}

func writeRow(f *excelize.File, rowNum int, row LiabilityRow) error {
	values := []any{
		row.Period,
		row.PurchaseGST.Round(2).InexactFloat64(),
		row.SalesGST.Round(2).InexactFloat64(),
		row.NetGST.Round(2).InexactFloat64(),
		row.Status,
	}
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, rowNum)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(SheetName, cell, v); err != nil {
			return fmt.Errorf("report: write %s: %w", cell, err)
		}
	}
	return nil
}
