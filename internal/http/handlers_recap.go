package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/sync/errgroup"

	"caisse/internal/core"
	"caisse/internal/log"
)

// recapForm is what the booking steps pass to the recap page, either as
// query parameters (GET) or form fields (POST).
type recapForm struct {
	Date            string
	Start           string
	ServiceID       string
	EmployeeID      string
	ClientID        string
	ClientFirstName string
	ClientLastName  string
	Description     string
}

func parseRecapForm(v url.Values) recapForm {
	return recapForm{
		Date:            sanitizeInput(v.Get("date")),
		Start:           sanitizeInput(v.Get("start")),
		ServiceID:       sanitizeInput(v.Get("service")),
		EmployeeID:      sanitizeInput(v.Get("employee")),
		ClientID:        sanitizeInput(v.Get("client")),
		ClientFirstName: sanitizeInput(v.Get("client_first_name")),
		ClientLastName:  sanitizeInput(v.Get("client_last_name")),
		Description:     sanitizeInput(v.Get("description")),
	}
}

type recapData struct {
	Recap core.Recap
	Form  recapForm
	Staff bool
}

type errorData struct {
	Title   string
	Message string
}

var errUnknownChoice = errors.New("unknown service or employee")

// buildRecap resolves the chosen service and employee against the API and
// computes the appointment.
func (s *Server) buildRecap(ctx context.Context, token string, role core.Role, f recapForm) (core.Recap, error) {
	serviceID, err := parseID(f.ServiceID)
	if err != nil {
		return core.Recap{}, fmt.Errorf("service: %w", core.ErrMissingService)
	}
	employeeID, err := parseID(f.EmployeeID)
	if err != nil {
		return core.Recap{}, fmt.Errorf("employee: %w", errUnknownChoice)
	}

	var (
		services  []core.Service
		employees []core.Employee
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		services, err = s.deps.Booking.ListServices(gctx, token)
		return err
	})
	g.Go(func() (err error) {
		employees, err = s.deps.Booking.ListEmployees(gctx, token)
		return err
	})
	if err := g.Wait(); err != nil {
		return core.Recap{}, err
	}

	in := core.RecapInput{Date: f.Date, Start: f.Start, Role: role, Description: f.Description}
	for _, svc := range services {
		if svc.ID == serviceID {
			in.Service = svc
		}
	}
	for _, e := range employees {
		if e.ID == employeeID {
			in.Employee = e
		}
	}
	if in.Service.ID == 0 || in.Employee.ID == 0 {
		return core.Recap{}, errUnknownChoice
	}
	if f.ClientID != "" {
		id, err := parseID(f.ClientID)
		if err != nil {
			return core.Recap{}, fmt.Errorf("client: %w", errUnknownChoice)
		}
		in.Client = &core.Client{ID: id, FirstName: f.ClientFirstName, LastName: f.ClientLastName}
	}
	return core.BuildRecap(in)
}

// recapError maps a recap failure to a response.
func recapError(err error) *HTMXResponseBuilder {
	switch {
	case errors.Is(err, core.ErrInvalidDate), errors.Is(err, core.ErrInvalidTime):
		return BadRequestError("Date ou heure du rendez-vous invalide.")
	case errors.Is(err, core.ErrInvalidDuration):
		return BadRequestError("Durée du service invalide.")
	case errors.Is(err, core.ErrInvalidRole):
		return BadRequestError("Rôle inconnu.")
	case errors.Is(err, core.ErrMissingService), errors.Is(err, errUnknownChoice):
		return BadRequestError("Service ou coiffeur introuvable.")
	default:
		return remoteError(err)
	}
}

// recapRequest reads the token, role and booking choices common to both
// recap routes.
func (s *Server) recapRequest(w http.ResponseWriter, r *http.Request, values url.Values) (string, recapData, bool) {
	if s.deps.Booking == nil {
		NotFoundError("La prise de rendez-vous n'est pas disponible.").Write(w)
		return "", recapData{}, false
	}
	token, err := tokenFrom(r)
	if err != nil {
		remoteError(err).Write(w)
		return "", recapData{}, false
	}
	role, err := roleFrom(r)
	if err != nil {
		recapError(err).Write(w)
		return "", recapData{}, false
	}
	form := parseRecapForm(values)
	rc, err := s.buildRecap(r.Context(), token, role, form)
	if err != nil {
		log.FromContext(r.Context()).Warn("Recap rejected", log.FieldOperation, log.OpBook, log.FieldError, err.Error())
		recapError(err).Write(w)
		return "", recapData{}, false
	}
	return token, recapData{Recap: rc, Form: form, Staff: role.IsStaff()}, true
}

func (s *Server) handleRecap(w http.ResponseWriter, r *http.Request) {
	_, data, ok := s.recapRequest(w, r, r.URL.Query())
	if !ok {
		return
	}
	s.render(w, r, "recap.html", data, nil)
}

// handleConfirmAppointment recomputes the recap from the submitted fields
// and books it.
func (s *Server) handleConfirmAppointment(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		BadRequestError("Formulaire invalide.").Write(w)
		return
	}
	token, data, ok := s.recapRequest(w, r, r.PostForm)
	if !ok {
		return
	}
	logger := log.FromContext(r.Context())
	if err := s.deps.Booking.CreateAppointment(r.Context(), token, data.Recap.Appointment); err != nil {
		logger.Error("Appointment booking failed", log.FieldOperation, log.OpBook, log.FieldError, err.Error())
		remoteError(err).Write(w)
		return
	}
	logger.Info("Appointment booked",
		log.FieldOperation, log.OpBook,
		"service", data.Recap.Appointment.Service,
		"employee", data.Recap.Appointment.Employee,
		"date", data.Recap.Appointment.Date,
		"time", data.Recap.Appointment.Time)
	s.render(w, r, "confirmation.html", data, NewHTMXResponse().
		Status(http.StatusCreated).
		TriggerSuccessNotification("Rendez-vous confirmé"))
}
