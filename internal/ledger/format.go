// Package ledger holds the encaissement view logic: joining raw records with
// the service and employee lookups, time buckets, search and sort, totals,
// and the deletion flow.
package ledger

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"caisse/internal/core"
)

const (
	ManualServiceLabel  = "Encaissement manuel"
	UnknownServiceLabel = "Service inconnu"
)

// FormerEmployee stands in for records whose employee was deleted.
var FormerEmployee = Employee{Username: "Ancien", FirstName: "Ancien", LastName: "employé"}

type (
	Employee struct {
		Username  string `json:"username"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}

	// Row is a record joined with its lookups and formatted for display.
	Row struct {
		ID       int64           `json:"id"`
		Date     string          `json:"date"` // DD/MM/YYYY
		Time     string          `json:"time"` // HHhMM
		Service  string          `json:"service"`
		Employee Employee        `json:"employee"`
		Amount   decimal.Decimal `json:"amount"`
	}
)

func (e Employee) FullName() string {
	return strings.TrimSpace(e.FirstName + " " + e.LastName)
}

// Format joins records with services and employees and returns one row per
// record, most recent date first. A malformed date or time fails the whole
// batch.
func Format(records []core.Record, services []core.Service, employees []core.Employee) ([]Row, error) {
	serviceNames := make(map[int64]string, len(services))
	for _, s := range services {
		serviceNames[s.ID] = s.Name
	}
	people := make(map[int64]Employee, len(employees))
	for _, e := range employees {
		people[e.ID] = Employee{Username: e.Username, FirstName: e.FirstName, LastName: e.LastName}
	}

	sorted := make([]core.Record, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date < sorted[j].Date })
	reverse(sorted)

	rows := make([]Row, 0, len(sorted))
	for _, r := range sorted {
		date, err := core.FormatDate(r.Date)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", r.ID, err)
		}
		clock, err := core.FormatTime(r.Time)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", r.ID, err)
		}
		rows = append(rows, Row{
			ID:       r.ID,
			Date:     date,
			Time:     clock,
			Service:  serviceName(serviceNames, r.Service),
			Employee: employeeOf(people, r.Employee),
			Amount:   r.Amount,
		})
	}
	return rows, nil
}

// FormatDataset is Format over a fetched dataset.
func FormatDataset(ds core.Dataset) ([]Row, error) {
	return Format(ds.Records, ds.Services, ds.Employees)
}

func serviceName(names map[int64]string, id *int64) string {
	if id == nil {
		return ManualServiceLabel
	}
	if name, ok := names[*id]; ok && name != "" {
		return name
	}
	return UnknownServiceLabel
}

func employeeOf(people map[int64]Employee, id *int64) Employee {
	if id == nil {
		return FormerEmployee
	}
	if e, ok := people[*id]; ok {
		return e
	}
	return FormerEmployee
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
