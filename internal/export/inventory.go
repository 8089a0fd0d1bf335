// Package export renders inventory as spreadsheet workbooks.
package export

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/erazemk/zavod/internal/model"
)

// InventorySheet is the name of the worksheet holding inventory rows.
const InventorySheet = "Inventory"

var inventoryHeader = []any{
	"ID", "Asset", "Room", "Status", "Quantity", "Scraped quantity", "Scraped amount",
	"Purchase date", "Purchase price", "Categories", "Remarks",
}

// InventoryXLSX writes an XLSX workbook with one row per inventory entry.
func InventoryXLSX(w io.Writer, items []model.Inventory) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), InventorySheet); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}
	if err := f.SetSheetRow(InventorySheet, "A1", &inventoryHeader); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}
	last, _ := excelize.ColumnNumberToName(len(inventoryHeader))
	if err := f.SetCellStyle(InventorySheet, "A1", last+"1", bold); err != nil {
		return fmt.Errorf("styling header: %w", err)
	}

	for i, inv := range items {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []any{
			inv.ID,
			inv.AssetName,
			inv.RoomName,
			string(inv.Status),
			inv.Quantity,
			optionalInt(inv.ScrapedQuantity),
			optionalDecimal(inv.ScrapedAmount),
			"",
			optionalDecimal(inv.PurchasePrice),
			joinIDs(inv.AssetCategoryIDs),
			inv.Remarks,
		}
		if inv.PurchaseDate != nil {
			row[7] = inv.PurchaseDate.Format("2006-01-02")
		}
		if err := f.SetSheetRow(InventorySheet, cell, &row); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(InventorySheet, "B", "B", 30); err != nil {
		return fmt.Errorf("sizing columns: %w", err)
	}
	if err := f.SetColWidth(InventorySheet, "K", "K", 50); err != nil {
		return fmt.Errorf("sizing columns: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func optionalInt(v *int) any {
	if v == nil {
		return ""
	}
	return *v
}

func optionalDecimal(d decimal.NullDecimal) any {
	if !d.Valid {
		return ""
	}
	return d.Decimal.InexactFloat64()
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
