package fetcher

import (
	"bufio"
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// Table is a parsed tabular source: a header row plus data rows.
type Table struct {
	Header []string
	Rows   [][]string
}

// Column returns the index of the named header column (case-insensitive,
// surrounding whitespace ignored), or -1.
func (t *Table) Column(name string) int {
	for i, h := range t.Header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}

// CSVOptions configures the CSV parser.
type CSVOptions struct {
	Delimiter rune // default ','
	Comment   rune // comment character (0 = none)
}

// utf8BOM is written by spreadsheet exports and must not leak into the
// first header name.
const utf8BOM = "\ufeff"

// ReadCSV reads a CSV source whose first row is a header. Fields are
// trimmed; rows may have a variable number of fields.
func ReadCSV(ctx context.Context, r io.Reader, opts CSVOptions) (*Table, error) {
	br := bufio.NewReader(r)
	if b, err := br.Peek(len(utf8BOM)); err == nil && string(b) == utf8BOM {
		_, _ = br.Discard(len(utf8BOM))
	}

	reader := csv.NewReader(br)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	if opts.Comment != 0 {
		reader.Comment = opts.Comment
	}
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	t := &Table{}
	for {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "csv: context cancelled")
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "csv: read row")
		}
		for i, field := range record {
			record[i] = strings.TrimSpace(field)
		}

		if t.Header == nil {
			t.Header = record
			continue
		}
		if blank(record) {
			continue
		}
		t.Rows = append(t.Rows, record)
	}

	if t.Header == nil {
		return nil, eris.New("csv: missing header row")
	}
	return t, nil
}

func blank(record []string) bool {
	for _, f := range record {
		if f != "" {
			return false
		}
	}
	return true
}
