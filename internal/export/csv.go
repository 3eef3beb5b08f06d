package export

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"caisse/internal/ledger"
)

const CSVContentType = "text/csv; charset=utf-8"

// utf8BOM lets spreadsheet tools detect the encoding of accented names.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSV renders rows as a UTF-8 CSV named after the bucket.
func CSV(b ledger.Bucket, rows []ledger.Row) (File, error) {
	t := NewTable(rows)

	var buf bytes.Buffer
	buf.Write(utf8BOM)
	w := csv.NewWriter(&buf)
	if err := w.Write(t.Header); err != nil {
		return File{}, fmt.Errorf("write csv header: %w", err)
	}
	if err := w.WriteAll(t.Lines); err != nil {
		return File{}, fmt.Errorf("write csv rows: %w", err)
	}

	return File{
		Name:        BaseName(b) + ".csv",
		ContentType: CSVContentType,
		Data:        buf.Bytes(),
	}, nil
}
