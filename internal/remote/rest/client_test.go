package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caisse/internal/core"
	"caisse/internal/remote"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL+"/api", 5*time.Second, WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return c
}

func TestNew_RejectsBadBaseURL(t *testing.T) {
	for _, base := range []string{"", "   ", "ftp://salon", "salon.example/api"} {
		_, err := New(base, time.Second)
		assert.Error(t, err, base)
	}
}

func TestListRecords(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/collections/", r.URL.Path)
		assert.Equal(t, "Token abc123", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[
			{"id": 1, "date": "2024-03-01", "time": "10:15:00", "service": 2, "employee": null, "amount": "50.00"},
			{"id": 2, "date": "2024-03-15", "time": "14:30:00.000000", "service": null, "employee": 3, "amount": 30.5}
		]`)
	})

	records, err := c.ListRecords(context.Background(), "abc123")
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, int64(1), records[0].ID)
	require.NotNil(t, records[0].Service)
	assert.Equal(t, int64(2), *records[0].Service)
	assert.Nil(t, records[0].Employee)
	assert.Equal(t, "50.00", records[0].Amount.StringFixed(2))

	assert.Nil(t, records[1].Service)
	assert.Equal(t, "30.50", records[1].Amount.StringFixed(2))
}

func TestListRecords_InvalidPayload(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `<html>oops</html>`},
		{"bad date", `[{"id": 1, "date": "01/03/2024", "time": "10:00:00", "amount": "1"}]`},
		{"missing time", `[{"id": 1, "date": "2024-03-01", "amount": "1"}]`},
		{"missing id", `[{"date": "2024-03-01", "time": "10:00:00", "amount": "1"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, tt.body)
			})
			_, err := c.ListRecords(context.Background(), "tok")
			assert.ErrorIs(t, err, ErrInvalidPayload)
		})
	}
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, remote.ErrUnauthorized},
		{http.StatusForbidden, remote.ErrUnauthorized},
		{http.StatusNotFound, remote.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			_, err := c.ListEmployees(context.Background(), "tok")
			assert.ErrorIs(t, err, tt.want)
		})
	}

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "database is down", http.StatusBadGateway)
	})
	_, err := c.ListServices(context.Background(), "tok")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "database is down")
}

func TestListServicesAndEmployees(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/services/":
			_, _ = io.WriteString(w, `[{"id": 1, "name": "Coupe homme", "duration": "00:30:00", "price": "25.00"}]`)
		case "/api/employees/":
			_, _ = io.WriteString(w, `[{"id": 3, "username": "jsmith", "first_name": "John", "last_name": "Smith"}]`)
		default:
			http.NotFound(w, r)
		}
	})

	services, err := c.ListServices(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, "Coupe homme", services[0].Name)
	assert.True(t, services[0].Price.Valid)

	employees, err := c.ListEmployees(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, employees, 1)
	assert.Equal(t, "John", employees[0].FirstName)
}

func TestDeleteRecord(t *testing.T) {
	var gotPath, gotMethod string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.DeleteRecord(context.Background(), "tok", 42))
	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Equal(t, "/api/collections/42/", gotPath)
}

func TestCreateAppointment(t *testing.T) {
	var payload map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/appointments/create", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusCreated)
	})

	info := "Cheveux longs"
	err := c.CreateAppointment(context.Background(), "tok", core.Appointment{
		Date: "2024-03-20", Time: "14:00:00", Employee: 3, Service: 1, Informations: &info,
	})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-20", payload["date"])
	assert.Equal(t, "14:00:00", payload["time"])
	assert.Equal(t, float64(3), payload["employee"])
	assert.Nil(t, payload["customer"])
	assert.Contains(t, payload, "customer")
	assert.Equal(t, "Cheveux longs", payload["informations"])
}
