package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type (
	// RecapInput is what the booking flow collected before the recap page:
	// the chosen slot, service and hairdresser, and for staff bookings either
	// a client or a free-text description.
	RecapInput struct {
		Date        string // DD/MM/YYYY
		Start       string // HH:MM
		Service     Service
		Employee    Employee
		Role        Role
		Client      *Client
		Description string
	}

	// Appointment is the payload accepted by POST appointments/create.
	// Customer and Informations are sent as null when unset.
	Appointment struct {
		Date         string  `json:"date"`
		Time         string  `json:"time"`
		Employee     int64   `json:"employee"`
		Service      int64   `json:"service"`
		Customer     *int64  `json:"customer"`
		Informations *string `json:"informations"`
	}

	Recap struct {
		Appointment  Appointment
		ServiceName  string
		EmployeeName string
		ClientName   string
		Description  string
		DisplayDate  string
		Start        string // HH:MM:SS
		End          string // HH:MM:SS
	}
)

var ErrMissingService = errors.New("missing service")

// BuildRecap computes the appointment's start and end times and the payload
// to submit, following the booking rules for each role.
func BuildRecap(in RecapInput) (Recap, error) {
	if err := in.Role.Validate(); err != nil {
		return Recap{}, err
	}
	if in.Service.ID == 0 {
		return Recap{}, ErrMissingService
	}
	day, err := ParseDisplayDate(in.Date)
	if err != nil {
		return Recap{}, err
	}
	clock, err := ParseClock(in.Start)
	if err != nil {
		return Recap{}, err
	}
	duration, err := ParseDuration(in.Service.Duration)
	if err != nil {
		return Recap{}, fmt.Errorf("service %d: %w", in.Service.ID, err)
	}

	start := time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, time.UTC)
	end := start.Add(duration)

	rc := Recap{
		ServiceName:  in.Service.Name,
		EmployeeName: strings.TrimSpace(in.Employee.FirstName + " " + in.Employee.LastName),
		DisplayDate:  start.Format(displayDateLayout),
		Start:        start.Format(clockLayout),
		End:          end.Format(clockLayout),
		Appointment: Appointment{
			Date:     start.Format(isoDateLayout),
			Time:     start.Format(clockLayout),
			Employee: in.Employee.ID,
			Service:  in.Service.ID,
		},
	}

	if !in.Role.IsStaff() {
		return rc, nil
	}
	if in.Client != nil && in.Client.ID != 0 {
		id := in.Client.ID
		rc.Appointment.Customer = &id
		rc.ClientName = strings.TrimSpace(in.Client.FirstName + " " + in.Client.LastName)
		return rc, nil
	}
	desc := strings.TrimSpace(in.Description)
	rc.Appointment.Informations = &desc
	rc.Description = desc
	return rc, nil
}
