package export

import (
	"bytes"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/erazemk/zavod/internal/model"
)

func TestInventoryXLSX(t *testing.T) {
	c := qt.New(t)

	scraped := 20
	bought := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)
	items := []model.Inventory{
		{
			ID: 1, AssetName: "Chair", RoomName: "Lab 1", Status: model.StatusActiveStock, Quantity: 30,
			AssetCategoryIDs: []int64{2, 5}, PurchaseDate: &bought,
			PurchasePrice: decimal.NewNullDecimal(decimal.RequireFromString("12.50")),
		},
		{
			ID: 2, AssetName: "Chair", Status: model.StatusScraped, Quantity: 20,
			ScrapedQuantity: &scraped, ScrapedAmount: decimal.NewNullDecimal(decimal.NewFromInt(500)),
			Remarks: "split from inventory #1",
		},
	}

	var buf bytes.Buffer
	c.Assert(InventoryXLSX(&buf, items), qt.IsNil)

	f, err := excelize.OpenReader(&buf)
	c.Assert(err, qt.IsNil)
	defer f.Close()

	rows, err := f.GetRows(InventorySheet)
	c.Assert(err, qt.IsNil)
	c.Assert(rows, qt.HasLen, 3)
	c.Assert(rows[0][0], qt.Equals, "ID")
	c.Assert(rows[1][1], qt.Equals, "Chair")
	c.Assert(rows[1][3], qt.Equals, "active_stock")
	c.Assert(rows[1][4], qt.Equals, "30")
	c.Assert(rows[1][7], qt.Equals, "2024-09-01")
	c.Assert(rows[1][8], qt.Equals, "12.5")
	c.Assert(rows[1][9], qt.Equals, "2,5")
	c.Assert(rows[2][5], qt.Equals, "20")
	c.Assert(rows[2][6], qt.Equals, "500")
	c.Assert(rows[2][10], qt.Equals, "split from inventory #1")
}

func TestInventoryXLSXEmpty(t *testing.T) {
	c := qt.New(t)

	var buf bytes.Buffer
	c.Assert(InventoryXLSX(&buf, nil), qt.IsNil)

	f, err := excelize.OpenReader(&buf)
	c.Assert(err, qt.IsNil)
	defer f.Close()

	rows, err := f.GetRows(InventorySheet)
	c.Assert(err, qt.IsNil)
	c.Assert(rows, qt.HasLen, 1)
}
