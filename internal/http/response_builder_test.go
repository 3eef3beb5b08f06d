package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"caisse/internal/ledger"
)

func TestHTMXResponseBuilder_Basic(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		Status(http.StatusOK).
		Body([]byte("test")).
		Write(w)

	if w.Code != http.StatusOK {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Body.String() != "test" {
		t.Errorf("Body = %q, want %q", w.Body.String(), "test")
	}
	if w.Header().Get("HX-Trigger") != "" {
		t.Errorf("HX-Trigger should be absent without triggers")
	}
}

func TestHTMXResponseBuilder_Triggers(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		TriggerLedgerRefresh().
		TriggerSuccessNotification("Export envoyé").
		Write(w)

	trigger := w.Header().Get("HX-Trigger")
	if trigger == "" {
		t.Fatal("HX-Trigger header not set")
	}
	for _, part := range []string{`"ledger:refresh"`, `"show-notification"`, `"type":"success"`, `"duration":3000`} {
		if !strings.Contains(trigger, part) {
			t.Errorf("HX-Trigger missing %q: %s", part, trigger)
		}
	}
	if strings.Contains(trigger, `"title"`) {
		t.Errorf("empty title should be omitted: %s", trigger)
	}
}

func TestHTMXResponseBuilder_TriggerNotice(t *testing.T) {
	tests := []struct {
		outcome ledger.Outcome
		want    NotificationType
	}{
		{ledger.OutcomeDeleted, NotificationSuccess},
		{ledger.OutcomeQueued, NotificationInfo},
		{ledger.OutcomeFailed, NotificationError},
	}

	for _, tt := range tests {
		t.Run(string(tt.outcome), func(t *testing.T) {
			w := httptest.NewRecorder()
			n := ledger.NewNotice(12, tt.outcome)
			NewHTMXResponse().TriggerNotice(n).Write(w)

			var got map[string]map[string]any
			if err := json.Unmarshal([]byte(w.Header().Get("HX-Trigger")), &got); err != nil {
				t.Fatalf("decode trigger: %v", err)
			}
			payload := got["show-notification"]
			if payload["type"] != string(tt.want) {
				t.Errorf("type = %v, want %s", payload["type"], tt.want)
			}
			if payload["title"] != n.Title || payload["message"] != n.Message {
				t.Errorf("unexpected payload %v", payload)
			}
			if payload["duration"] != float64(10000) {
				t.Errorf("duration = %v, want 10000", payload["duration"])
			}
		})
	}
}

func TestHTMXResponseBuilder_CustomHeader(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		Header("X-Custom", "value").
		Status(http.StatusCreated).
		Write(w)

	if w.Header().Get("X-Custom") != "value" {
		t.Errorf("Custom header not set")
	}
	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
}

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name       string
		builder    *HTMXResponseBuilder
		wantStatus int
		wantBody   string
	}{
		{"bad request", BadRequestError("Entrée invalide"), http.StatusBadRequest, `<div class="error" role="alert">Entrée invalide</div>`},
		{"unauthorized", UnauthorizedError("Session expirée"), http.StatusUnauthorized, `<div class="error" role="alert">Session expirée</div>`},
		{"conflict", ConflictError("Action impossible"), http.StatusConflict, `<div class="error" role="alert">Action impossible</div>`},
		{"bad gateway", BadGatewayError("API indisponible"), http.StatusBadGateway, `<div class="error" role="alert">API indisponible</div>`},
		{"internal server error", InternalServerError("Erreur"), http.StatusInternalServerError, `<div class="error" role="alert">Erreur</div>`},
		{"not found", NotFoundError("Introuvable"), http.StatusNotFound, `<div class="error" role="alert">Introuvable</div>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.builder.Write(w)

			if w.Code != tt.wantStatus {
				t.Errorf("Status code = %d, want %d", w.Code, tt.wantStatus)
			}
			if w.Body.String() != tt.wantBody {
				t.Errorf("Body = %q, want %q", w.Body.String(), tt.wantBody)
			}
			if !strings.Contains(w.Header().Get("HX-Trigger"), `"type":"error"`) {
				t.Errorf("error responses should notify: %s", w.Header().Get("HX-Trigger"))
			}
		})
	}
}

func TestErrorResponse_EscapesHTML(t *testing.T) {
	w := httptest.NewRecorder()

	BadRequestError("<script>alert('xss')</script>").Write(w)

	body := w.Body.String()
	if strings.Contains(body, "<script>") {
		t.Error("Error response did not escape HTML")
	}
	if !strings.Contains(body, "&lt;script&gt;") {
		t.Error("Error response did not properly escape HTML entities")
	}
}
