package stock

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// importColumns maps workbook headers (case-insensitive) to item fields.
var importColumns = map[string]int{
	"materialid":    0,
	"warehouseid":   1,
	"quantity":      2,
	"avgcost":       3,
	"materialcode":  4,
	"materialname":  5,
	"category":      6,
	"unitofmeasure": 7,
}

// ParseWorkbook reads bulk-import rows from the first sheet of an XLSX file.
// The first row must be a header; column order is taken from it. Rows that
// fail to parse are returned as items with the raw values so BulkImport can
// report them per-row instead of rejecting the file.
func ParseWorkbook(r io.Reader) ([]BulkImportItem, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("workbook has no data rows")
	}

	index := make(map[int]string, len(rows[0]))
	for i, header := range rows[0] {
		key := strings.ToLower(strings.TrimSpace(header))
		if _, known := importColumns[key]; known {
			index[i] = key
		}
	}
	if len(index) == 0 {
		return nil, fmt.Errorf("workbook header has no recognised columns")
	}

	items := make([]BulkImportItem, 0, len(rows)-1)
	for _, row := range rows[1:] {
		var item BulkImportItem
		for i, cell := range row {
			value := strings.TrimSpace(cell)
			switch index[i] {
			case "materialid":
				item.MaterialID = value
			case "warehouseid":
				item.WarehouseID = value
			case "quantity":
				if value != "" {
					item.Quantity, err = strconv.ParseInt(value, 10, 64)
					if err != nil {
						item.ParseError = fmt.Sprintf("quantity %q is not a whole number", value)
					}
				}
			case "avgcost":
				if value != "" {
					item.AvgCost, err = strconv.ParseFloat(value, 64)
					if err != nil {
						item.ParseError = fmt.Sprintf("avgCost %q is not a number", value)
					}
				}
			case "materialcode":
				item.MaterialCode = value
			case "materialname":
				item.MaterialName = value
			case "category":
				item.Category = value
			case "unitofmeasure":
				item.UnitOfMeasure = value
			}
		}
		if item.MaterialID == "" && item.WarehouseID == "" {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}
