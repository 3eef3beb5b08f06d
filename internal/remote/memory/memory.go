// Package memory is an in-process stand-in for the salon API, used for
// local runs and tests. Tokens are accepted but not checked.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"caisse/internal/core"
	"caisse/internal/remote"
)

type Store struct {
	mu           sync.Mutex
	records      []core.Record
	services     []core.Service
	employees    []core.Employee
	appointments []core.Appointment
}

var _ remote.API = (*Store)(nil)

func New(records []core.Record, services []core.Service, employees []core.Employee) *Store {
	return &Store{
		records:   append([]core.Record(nil), records...),
		services:  append([]core.Service(nil), services...),
		employees: append([]core.Employee(nil), employees...),
	}
}

// NewFromFiles loads seed_encaissements.json, seed_services.json and
// seed_employees.json from base. Missing files fall back to demo data
// dated around now.
func NewFromFiles(base string, now time.Time) (*Store, error) {
	var (
		records   []core.Record
		services  []core.Service
		employees []core.Employee
	)
	for _, seed := range []struct {
		name string
		dst  any
	}{
		{"seed_encaissements.json", &records},
		{"seed_services.json", &services},
		{"seed_employees.json", &employees},
	} {
		if err := readJSON(filepath.Join(base, seed.name), seed.dst); err != nil {
			return nil, err
		}
	}
	if len(services) == 0 {
		services = demoServices()
	}
	if len(employees) == 0 {
		employees = demoEmployees()
	}
	if len(records) == 0 {
		records = demoRecords(now)
	}
	return New(records, services, employees), nil
}

func (s *Store) ListRecords(_ context.Context, _ string) ([]core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Record(nil), s.records...), nil
}

func (s *Store) ListServices(_ context.Context, _ string) ([]core.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Service(nil), s.services...), nil
}

func (s *Store) ListEmployees(_ context.Context, _ string) ([]core.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Employee(nil), s.employees...), nil
}

func (s *Store) DeleteRecord(_ context.Context, _ string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.records {
		if r.ID == id {
			s.records = append(s.records[:i:i], s.records[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("record %d: %w", id, remote.ErrNotFound)
}

func (s *Store) CreateAppointment(_ context.Context, _ string, a core.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appointments = append(s.appointments, a)
	return nil
}

// Appointments returns the appointments created so far.
func (s *Store) Appointments() []core.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Appointment(nil), s.appointments...)
}

func readJSON(path string, dst any) error {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func demoServices() []core.Service {
	return []core.Service{
		{ID: 1, Name: "Coupe homme", Duration: "00:30:00", Price: decimal.NewNullDecimal(decimal.RequireFromString("25.00"))},
		{ID: 2, Name: "Coupe femme", Duration: "00:45:00", Price: decimal.NewNullDecimal(decimal.RequireFromString("40.00"))},
		{ID: 3, Name: "Coloration", Duration: "01:30:00", Price: decimal.NewNullDecimal(decimal.RequireFromString("65.00"))},
		{ID: 4, Name: "Brushing", Duration: "00:30:00", Price: decimal.NewNullDecimal(decimal.RequireFromString("20.00"))},
	}
}

func demoEmployees() []core.Employee {
	return []core.Employee{
		{ID: 1, Username: "jsmith", FirstName: "John", LastName: "Smith"},
		{ID: 2, Username: "mdupont", FirstName: "Marie", LastName: "Dupont"},
		{ID: 3, Username: "lmartin", FirstName: "Léa", LastName: "Martin"},
	}
}

func demoRecords(now time.Time) []core.Record {
	ref := func(v int64) *int64 { return &v }
	day := func(offset int) string { return now.AddDate(0, 0, -offset).Format("2006-01-02") }
	return []core.Record{
		{ID: 1, Date: day(0), Time: "09:30:00", Service: ref(1), Employee: ref(1), Amount: decimal.RequireFromString("25.00")},
		{ID: 2, Date: day(0), Time: "11:00:00", Service: ref(3), Employee: ref(2), Amount: decimal.RequireFromString("65.00")},
		{ID: 3, Date: day(2), Time: "14:15:00", Service: ref(2), Employee: ref(3), Amount: decimal.RequireFromString("40.00")},
		{ID: 4, Date: day(9), Time: "16:45:00", Service: nil, Employee: ref(1), Amount: decimal.RequireFromString("12.50")},
		{ID: 5, Date: day(35), Time: "10:00:00", Service: ref(4), Employee: nil, Amount: decimal.RequireFromString("20.00")},
		{ID: 6, Date: day(400), Time: "15:30:00", Service: ref(1), Employee: ref(2), Amount: decimal.RequireFromString("25.00")},
	}
}
