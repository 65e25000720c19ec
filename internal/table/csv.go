package table

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// sniffLimit bounds how much of the file the delimiter sniffer inspects.
const sniffLimit = 4096

func readCSV(path string, opts LoadOptions) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "table: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	var r io.Reader = f
	if opts.Encoding != "" {
		enc, err := htmlindex.Get(opts.Encoding)
		if err != nil {
			return nil, eris.Wrapf(err, "table: unsupported charset %q", opts.Encoding)
		}
		r = enc.NewDecoder().Reader(f)
	}

	br := bufio.NewReader(r)

	delim := opts.Delimiter
	if delim == 0 {
		delim, err = sniffDelimiter(br)
		if err != nil {
			return nil, err
		}
	}

	reader := csv.NewReader(br)
	reader.Comma = delim
	reader.LazyQuotes = true    // address exports carry stray quotes
	reader.FieldsPerRecord = -1 // allow variable fields, padded later

	var header []string
	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "table: read csv row")
		}
		for i, field := range record {
			record[i] = strings.TrimSpace(field)
		}
		if header == nil {
			header = record
			continue
		}
		records = append(records, record)
	}

	return newTable(header, records)
}

// sniffDelimiter picks ';' or ',' by whichever occurs more often in the
// first line. Both forms are produced by the spreadsheet tools feeding this
// pipeline. Quoted fields are ignored while counting.
func sniffDelimiter(br *bufio.Reader) (rune, error) {
	peek, err := br.Peek(sniffLimit)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return 0, eris.Wrap(err, "table: sniff delimiter")
	}

	line := string(peek)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}

	var commas, semis int
	inQuotes := false
	for _, c := range line {
		switch c {
		case '"':
			inQuotes = !inQuotes
		case ',':
			if !inQuotes {
				commas++
			}
		case ';':
			if !inQuotes {
				semis++
			}
		}
	}

	if semis > commas {
		return ';', nil
	}
	return ',', nil
}

// WriteCSV persists the table to path with the given delimiter. This is the
// pipeline's single point of persistence.
func WriteCSV(t *Table, path string, delimiter rune) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "table: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	if delimiter != 0 {
		w.Comma = delimiter
	}

	if err := w.Write(t.Header); err != nil {
		return eris.Wrap(err, "table: write header")
	}
	for _, row := range t.Rows {
		if err := w.Write(row.Cells); err != nil {
			return eris.Wrapf(err, "table: write row %d", row.ID)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "table: flush csv")
	}
	return nil
}
