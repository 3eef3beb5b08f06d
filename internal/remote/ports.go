// Package remote declares the ports to the salon REST API. Adapters live in
// rest (the real API) and memory (local demo data).
package remote

import (
	"context"
	"errors"

	"caisse/internal/core"
)

var (
	// ErrUnauthorized is returned for 401 and 403 responses.
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
)

// Ports for outbound adapters. Every call carries the caller's session token.
type (
	RecordLister interface {
		ListRecords(ctx context.Context, token string) ([]core.Record, error)
	}

	ServiceLister interface {
		ListServices(ctx context.Context, token string) ([]core.Service, error)
	}

	EmployeeLister interface {
		ListEmployees(ctx context.Context, token string) ([]core.Employee, error)
	}

	RecordDeleter interface {
		DeleteRecord(ctx context.Context, token string, id int64) error
	}

	AppointmentCreator interface {
		CreateAppointment(ctx context.Context, token string, a core.Appointment) error
	}

	// API is everything the back-office needs from the salon backend.
	API interface {
		RecordLister
		ServiceLister
		EmployeeLister
		RecordDeleter
		AppointmentCreator
	}
)
