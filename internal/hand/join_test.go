package hand

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irc-risk/hand-cli/internal/table"
	"github.com/irc-risk/hand-cli/pkg/raster"
)

func joinInput() (*table.Table, []PointRecord) {
	t := &table.Table{
		Header: []string{"ADDRESS", "TIV"},
		Rows: []table.Row{
			{ID: 0, Cells: []string{"Rua A, 123", "1000"}},
			{ID: 1, Cells: []string{"", "2000"}},
			{ID: 2, Cells: []string{"Av. Paulista, 1000", "3000"}},
		},
	}
	records := []PointRecord{
		{ID: 0, Latitude: -23.55, Longitude: -46.63},
		{ID: 1, Missing: true},
		{ID: 2, Latitude: -23.5614, Longitude: -46.6559},
	}
	return t, records
}

func TestJoinAppendsReportColumns(t *testing.T) {
	tbl, records := joinInput()
	samples := []raster.Sample{{ID: 0, Value: 3}, {ID: 2, Value: 5}}

	out := Join(tbl, records, samples, DefaultCategories())

	assert.Equal(t, []string{"ADDRESS", "TIV", "Latitude", "Longitude", "MISSING_ADDRESS", "categoria_hand"}, out.Header)
	require.Len(t, out.Rows, 3)

	assert.Equal(t, []string{"Rua A, 123", "1000", "-23.55", "-46.63", "false", "Médio (5-10m)"}, out.Rows[0].Cells)
	assert.Equal(t, []string{"", "2000", "", "", "true", ""}, out.Rows[1].Cells)
	assert.Equal(t, []string{"Av. Paulista, 1000", "3000", "-23.5614", "-46.6559", "false", "Muito Alto (< 1m)"}, out.Rows[2].Cells)
}

func TestJoinRowCountInvariance(t *testing.T) {
	tbl, records := joinInput()

	// No samples at all: every row survives.
	out := Join(tbl, records, nil, DefaultCategories())
	assert.Len(t, out.Rows, len(tbl.Rows))
	for i, row := range out.Rows {
		assert.Equal(t, tbl.Rows[i].ID, row.ID)
	}
}

func TestJoinUnsampledRowKeepsEmptyCategory(t *testing.T) {
	tbl, records := joinInput()
	// Only id 2 was sampled; id 0 resolved but the service returned nothing for it.
	samples := []raster.Sample{{ID: 2, Value: 1}}

	out := Join(tbl, records, samples, DefaultCategories())

	assert.Equal(t, "", out.Rows[0].Cells[5])
	assert.Equal(t, "Muito Baixo (> 25m)", out.Rows[2].Cells[5])
}

func TestJoinUnknownCodePassesThroughEmpty(t *testing.T) {
	tbl, records := joinInput()
	samples := []raster.Sample{{ID: 0, Value: 42}}

	out := Join(tbl, records, samples, DefaultCategories())

	assert.Equal(t, "", out.Rows[0].Cells[5])
}

func TestJoinMismatchedSampleIDIgnored(t *testing.T) {
	tbl, records := joinInput()
	// A sample id with no corresponding row must not leak into any output row.
	samples := []raster.Sample{{ID: 99, Value: 4}}

	out := Join(tbl, records, samples, DefaultCategories())

	for _, row := range out.Rows {
		assert.Equal(t, "", row.Cells[5])
	}
}

func TestJoinRowWithoutRecordTreatedMissing(t *testing.T) {
	tbl, _ := joinInput()

	out := Join(tbl, nil, nil, DefaultCategories())

	require.Len(t, out.Rows, 3)
	for _, row := range out.Rows {
		assert.Equal(t, "", row.Cells[2])
		assert.Equal(t, "", row.Cells[3])
		assert.Equal(t, "true", row.Cells[4])
	}
}
