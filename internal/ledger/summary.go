package ledger

import (
	"github.com/shopspring/decimal"

	"caisse/internal/core"
)

// Summary is the total shown under the table.
type Summary struct {
	Count int             `json:"count"`
	Total decimal.Decimal `json:"total"`
}

func Summarize(rows []Row) Summary {
	s := Summary{Total: decimal.Zero}
	for _, r := range rows {
		s.Total = s.Total.Add(r.Amount)
	}
	s.Count = len(rows)
	return s
}

func (s Summary) Display() string { return core.FormatEuros(s.Total) }
