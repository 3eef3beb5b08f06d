package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"caisse/internal/core"
	"caisse/internal/ledger"
	"caisse/internal/log"
	"caisse/internal/remote"
)

// Cookies set by the salon frontend. They are read, never written.
const (
	cookieToken = "csrftoken"
	cookieRole  = "role"
)

var errNoToken = errors.New("missing session token")

var templateFuncs = template.FuncMap{
	"euros":       core.FormatEuros,
	"bucketLabel": func(b ledger.Bucket) string { return b.Label() },
}

// tokenFrom returns the caller's salon API token.
func tokenFrom(r *http.Request) (string, error) {
	c, err := r.Cookie(cookieToken)
	if err != nil || strings.TrimSpace(c.Value) == "" {
		return "", errNoToken
	}
	return strings.TrimSpace(c.Value), nil
}

// roleFrom returns the caller's role. An absent cookie means a customer.
func roleFrom(r *http.Request) (core.Role, error) {
	c, err := r.Cookie(cookieRole)
	if err != nil || c.Value == "" {
		return core.RoleCustomer, nil
	}
	role := core.Role(strings.ToLower(strings.TrimSpace(c.Value)))
	return role, role.Validate()
}

// sanitizeInput drops control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// render executes a template into a buffer first so a failing template
// never leaves a half-written page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any, rb *HTMXResponseBuilder) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		log.FromContext(r.Context()).Error("Template render failed",
			"template", name, log.FieldOperation, log.OpRender, log.FieldError, err.Error())
		http.Error(w, "Erreur interne", http.StatusInternalServerError)
		return
	}
	if rb == nil {
		rb = NewHTMXResponse()
	}
	rb.Header("Content-Type", "text/html; charset=utf-8").Body(buf.Bytes()).Write(w)
}

// remoteError maps a salon API failure to a response.
func remoteError(err error) *HTMXResponseBuilder {
	switch {
	case errors.Is(err, errNoToken), errors.Is(err, remote.ErrUnauthorized):
		return UnauthorizedError("Session expirée, veuillez vous reconnecter.")
	case errors.Is(err, remote.ErrNotFound):
		return NotFoundError("Élément introuvable.")
	default:
		return BadGatewayError("Le serveur de la caisse est injoignable.")
	}
}

// flowError maps a deletion flow error to a response.
func flowError(err error) *HTMXResponseBuilder {
	switch {
	case errors.Is(err, ledger.ErrUnknownRecord):
		return NotFoundError("Cet encaissement n'existe plus.")
	case errors.Is(err, ledger.ErrInvalidTransition):
		return ConflictError("Action impossible pour le moment.")
	default:
		return InternalServerError("Erreur interne")
	}
}
