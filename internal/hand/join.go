package hand

import (
	"strconv"

	"github.com/irc-risk/hand-cli/internal/table"
	"github.com/irc-risk/hand-cli/pkg/raster"
)

// Column names appended to the report by the join.
const (
	ColLatitude  = "Latitude"
	ColLongitude = "Longitude"
	ColMissing   = "MISSING_ADDRESS"
	ColCategory  = "categoria_hand"
)

// Join left-joins coordinates and sampled categories back onto the original
// table, keyed by row id. Every input row produces exactly one output row:
// rows with no coordinate keep empty Latitude/Longitude cells and a true
// missing flag, rows with no sample keep an empty category.
func Join(t *table.Table, records []PointRecord, samples []raster.Sample, cats *Categories) *table.Table {
	points := make(map[int]PointRecord, len(records))
	for _, r := range records {
		points[r.ID] = r
	}
	codes := make(map[int]int, len(samples))
	for _, s := range samples {
		codes[s.ID] = s.Value
	}

	header := make([]string, 0, len(t.Header)+4)
	header = append(header, t.Header...)
	header = append(header, ColLatitude, ColLongitude, ColMissing, ColCategory)

	out := &table.Table{Header: header, Rows: make([]table.Row, len(t.Rows))}
	for i, row := range t.Rows {
		cells := make([]string, 0, len(header))
		cells = append(cells, row.Cells...)

		rec, ok := points[row.ID]
		if !ok {
			rec = PointRecord{ID: row.ID, Missing: true}
		}
		if rec.Missing {
			cells = append(cells, "", "")
		} else {
			cells = append(cells,
				strconv.FormatFloat(rec.Latitude, 'f', -1, 64),
				strconv.FormatFloat(rec.Longitude, 'f', -1, 64),
			)
		}
		cells = append(cells, strconv.FormatBool(rec.Missing))

		label := ""
		if code, sampled := codes[row.ID]; sampled {
			label = cats.Label(code)
		}
		cells = append(cells, label)

		out.Rows[i] = table.Row{ID: row.ID, Cells: cells}
	}
	return out
}
