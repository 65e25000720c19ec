// Package table loads and writes the tabular data moving through the
// pipeline. Rows are assigned a zero-based id at load time; the id is the
// sole join key downstream and is never reassigned.
package table

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Row is one input record. Cells are opaque passthrough payload except for
// the address column, which callers resolve through FindColumn.
type Row struct {
	ID    int
	Cells []string
}

// Table is an immutable-after-load set of rows under a header.
type Table struct {
	Header []string
	Rows   []Row
}

// LoadOptions configures parsing of the input file.
type LoadOptions struct {
	Delimiter rune   // CSV only; 0 = sniff comma vs semicolon
	Encoding  string // CSV only; IANA charset name, "" = UTF-8
	Sheet     int    // spreadsheets only; zero-based sheet index
}

// Load reads a .csv, .xlsx, or .xls file into a Table. Every row gets its
// zero-based position as id. Ragged rows are padded to the header width.
func Load(path string, opts LoadOptions) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return readCSV(path, opts)
	case ".xlsx", ".xls":
		return readXLSX(path, opts)
	default:
		return nil, eris.Errorf("table: unsupported file extension %q (want .csv, .xlsx, or .xls)", filepath.Ext(path))
	}
}

// FindColumn returns the index of the named header column.
func (t *Table) FindColumn(name string) (int, bool) {
	for i, h := range t.Header {
		if h == name {
			return i, true
		}
	}
	return 0, false
}

// MissingColumns returns the required column names absent from the header,
// in the order given.
func (t *Table) MissingColumns(required []string) []string {
	var missing []string
	for _, name := range required {
		if _, ok := t.FindColumn(name); !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// Cell returns the row's value in the given column, empty when the row is
// shorter than the header.
func (r Row) Cell(col int) string {
	if col < 0 || col >= len(r.Cells) {
		return ""
	}
	return r.Cells[col]
}

// newTable builds a Table from a header and raw records, padding each record
// to the header width and assigning positional ids.
func newTable(header []string, records [][]string) (*Table, error) {
	if len(header) == 0 {
		return nil, eris.New("table: file has no header row")
	}
	if len(records) == 0 {
		return nil, eris.New("table: file contains no data rows")
	}

	rows := make([]Row, len(records))
	for i, rec := range records {
		cells := make([]string, len(header))
		copy(cells, rec)
		rows[i] = Row{ID: i, Cells: cells}
	}
	return &Table{Header: header, Rows: rows}, nil
}
