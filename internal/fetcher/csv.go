// Package fetcher opens ETL input files (local, zipped or remote) and parses
// address and voter rows out of them.
package fetcher

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// Dialect describes how an input file is delimited.
type Dialect struct {
	Delimiter  rune // default ','
	Comment    rune // 0 = none
	LazyQuotes bool
}

// Row is one parsed input line. Fields are trimmed; Line is the 1-based line
// the row starts on, so skipped rows can be reported against the file.
type Row struct {
	Line   int
	Fields []string
}

// Field returns the i-th field, or "" when the row is shorter.
func (r Row) Field(i int) string {
	if i < 0 || i >= len(r.Fields) {
		return ""
	}
	return r.Fields[i]
}

func (r Row) blank() bool {
	for _, f := range r.Fields {
		if f != "" {
			return false
		}
	}
	return true
}

// StreamRows parses r in the background. A leading byte order mark is dropped
// and rows whose fields are all empty are skipped. The row channel must be
// drained; both channels close when parsing stops, and at most one error is
// sent.
func StreamRows(ctx context.Context, r io.Reader, d Dialect) (<-chan Row, <-chan error) {
	rowCh := make(chan Row, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		cr := csv.NewReader(r)
		if d.Delimiter != 0 {
			cr.Comma = d.Delimiter
		}
		cr.Comment = d.Comment
		cr.LazyQuotes = d.LazyQuotes
		cr.FieldsPerRecord = -1

		first := true
		for {
			if err := ctx.Err(); err != nil {
				errCh <- eris.Wrap(err, "fetcher: rows: context cancelled")
				return
			}

			fields, err := cr.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "fetcher: read row")
				return
			}
			line, _ := cr.FieldPos(0)

			if first && len(fields) > 0 {
				fields[0] = strings.TrimPrefix(fields[0], "\ufeff")
			}
			first = false
			for i := range fields {
				fields[i] = strings.TrimSpace(fields[i])
			}

			row := Row{Line: line, Fields: fields}
			if row.blank() {
				continue
			}

			select {
			case rowCh <- row:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "fetcher: rows: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}
