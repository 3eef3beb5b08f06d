// Package export renders the visible ledger rows as downloadable files.
package export

import (
	"strconv"

	"caisse/internal/core"
	"caisse/internal/ledger"
)

// Header matches the ledger table columns, without the action column.
var Header = []string{"ID", "Employé", "Service", "Date", "Heure", "Montant"}

// File is an export result. The HTTP layer decides how to present it.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Table is the header plus one line per row, as cell text.
type Table struct {
	Header []string
	Lines  [][]string
}

func NewTable(rows []ledger.Row) Table {
	t := Table{Header: Header, Lines: make([][]string, 0, len(rows))}
	for _, r := range rows {
		line := Cells(r)
		if isEmpty(line) {
			continue
		}
		t.Lines = append(t.Lines, line)
	}
	return t
}

// Cells returns the row's cells in Header order.
func Cells(r ledger.Row) []string {
	return []string{
		strconv.FormatInt(r.ID, 10),
		r.Employee.FullName(),
		r.Service,
		r.Date,
		r.Time,
		core.FormatAmount(r.Amount),
	}
}

// BaseName is the file name without extension, e.g. "amount_mois_encaissements".
func BaseName(b ledger.Bucket) string {
	if b == "" {
		b = ledger.BucketTotal
	}
	return string(b) + "_encaissements"
}

func isEmpty(line []string) bool {
	for _, c := range line {
		if c != "" {
			return false
		}
	}
	return true
}
