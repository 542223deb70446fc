package inventory

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const (
	exportSheet       = "Inventory"
	ExportContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var exportHeader = []interface{}{"name", "laboratory", "quantity", "unit", "created_at"}

// ExportAssets renders the current catalog as an xlsx workbook.
func (s *Service) ExportAssets(ctx context.Context) ([]byte, error) {
	items, err := s.assets.List(ctx)
	if err != nil {
		return nil, err
	}
	return writeWorkbook(items)
}

func writeWorkbook(items []*Asset) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(exportSheet, "A1", &exportHeader); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	for i, a := range items {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := []interface{}{
			a.Name,
			a.Laboratory,
			a.Quantity.InexactFloat64(),
			string(a.Unit),
			a.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode workbook: %w", err)
	}
	return buf.Bytes(), nil
}
