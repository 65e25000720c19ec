package table

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

func readXLSX(path string, opts LoadOptions) (*Table, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "table: open spreadsheet")
	}

	if opts.Sheet >= len(f.Sheets) || opts.Sheet < 0 {
		return nil, eris.Errorf("table: sheet index %d out of range (file has %d sheets)", opts.Sheet, len(f.Sheets))
	}
	sheet := f.Sheets[opts.Sheet]

	var header []string
	var records [][]string
	for i, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		if i == 0 {
			header = cells
			continue
		}
		records = append(records, cells)
	}

	return newTable(header, records)
}
