package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caisse/internal/core"
)

func id(v int64) *int64 { return &v }

func amount(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var (
	testServices = []core.Service{
		{ID: 1, Name: "Coupe homme", Duration: "00:30:00"},
		{ID: 2, Name: "Coloration", Duration: "01:30:00"},
	}
	testEmployees = []core.Employee{
		{ID: 1, Username: "jsmith", FirstName: "John", LastName: "Smith"},
		{ID: 2, Username: "mdupont", FirstName: "Marie", LastName: "Dupont"},
	}
)

func TestFormat(t *testing.T) {
	records := []core.Record{
		{ID: 1, Date: "2024-03-01", Time: "10:15:00", Service: id(1), Employee: id(1), Amount: amount("50.00")},
		{ID: 2, Date: "2024-03-15", Time: "14:30:00", Service: nil, Employee: nil, Amount: amount("30.00")},
		{ID: 3, Date: "2024-02-10", Time: "09:05:30", Service: id(99), Employee: id(42), Amount: amount("12.50")},
	}

	rows, err := Format(records, testServices, testEmployees)
	require.NoError(t, err)
	require.Len(t, rows, len(records))

	assert.Equal(t, []int64{2, 1, 3}, []int64{rows[0].ID, rows[1].ID, rows[2].ID}, "most recent first")

	assert.Equal(t, "15/03/2024", rows[0].Date)
	assert.Equal(t, "14h30", rows[0].Time)
	assert.Equal(t, ManualServiceLabel, rows[0].Service)
	assert.Equal(t, FormerEmployee, rows[0].Employee)

	assert.Equal(t, "Coupe homme", rows[1].Service)
	assert.Equal(t, "John Smith", rows[1].Employee.FullName())

	assert.Equal(t, UnknownServiceLabel, rows[2].Service)
	assert.Equal(t, FormerEmployee, rows[2].Employee)
	assert.Equal(t, "09h05", rows[2].Time)

	for _, r := range rows {
		assert.NotEmpty(t, r.Service)
		assert.NotEmpty(t, r.Employee.Username)
		assert.NotEmpty(t, r.Employee.FirstName)
		assert.NotEmpty(t, r.Employee.LastName)
	}
}

func TestFormat_SameDateKeepsInputOrderReversed(t *testing.T) {
	records := []core.Record{
		{ID: 1, Date: "2024-03-01", Time: "10:00:00", Amount: amount("1")},
		{ID: 2, Date: "2024-03-01", Time: "11:00:00", Amount: amount("2")},
	}
	rows, err := Format(records, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rows[0].ID)
	assert.Equal(t, int64(1), rows[1].ID)
}

func TestFormat_DoesNotMutateInput(t *testing.T) {
	records := []core.Record{
		{ID: 1, Date: "2024-01-01", Time: "10:00:00", Amount: amount("1")},
		{ID: 2, Date: "2024-06-01", Time: "10:00:00", Amount: amount("2")},
	}
	_, err := Format(records, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), records[0].ID)
}

func TestFormat_MalformedRecord(t *testing.T) {
	tests := []struct {
		name   string
		record core.Record
		want   error
	}{
		{"bad date", core.Record{ID: 1, Date: "01/03/2024", Time: "10:00:00"}, core.ErrInvalidDate},
		{"bad time", core.Record{ID: 1, Date: "2024-03-01", Time: "10h00"}, core.ErrInvalidTime},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Format([]core.Record{tt.record}, nil, nil)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFormat_Empty(t *testing.T) {
	rows, err := Format(nil, testServices, testEmployees)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
