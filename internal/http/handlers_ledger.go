package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"caisse/internal/export"
	"caisse/internal/ledger"
	"caisse/internal/log"
	"caisse/internal/remote"
	"caisse/internal/storage"
)

type sortOption struct {
	Key   ledger.SortKey
	Label string
}

var sortOptions = []sortOption{
	{ledger.SortID, "ID"},
	{ledger.SortEmployee, "Employé"},
	{ledger.SortService, "Service"},
	{ledger.SortDate, "Date"},
	{ledger.SortTime, "Heure"},
	{ledger.SortAmount, "Montant"},
}

// ledgerData feeds page.html and the ledger_table partial.
type ledgerData struct {
	ledger.Page
	Buckets       []ledger.Bucket
	SortOptions   []sortOption
	SheetsEnabled bool
	Error         string
}

func (s *Server) ledgerData(page ledger.Page) ledgerData {
	return ledgerData{
		Page:          page,
		Buckets:       ledger.Buckets(),
		SortOptions:   sortOptions,
		SheetsEnabled: s.deps.Sheets != nil,
	}
}

// withSession resolves the caller's token and session, writing the error
// response itself when either is unavailable.
func (s *Server) withSession(w http.ResponseWriter, r *http.Request) (string, *ledger.Session, bool) {
	token, err := tokenFrom(r)
	if err != nil {
		remoteError(err).Write(w)
		return "", nil, false
	}
	sess, err := s.session(r.Context(), token)
	if err != nil && !sess.Loaded() {
		remoteError(err).Write(w)
		return "", nil, false
	}
	return token, sess, true
}

func (s *Server) renderTable(w http.ResponseWriter, r *http.Request, sess *ledger.Session, rb *HTMXResponseBuilder) {
	s.render(w, r, "ledger_table", s.ledgerData(sess.Page()), rb)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	token, err := tokenFrom(r)
	if err != nil {
		s.render(w, r, "error.html", errorData{Title: "Session expirée", Message: "Veuillez vous reconnecter."},
			NewHTMXResponse().Status(http.StatusUnauthorized))
		return
	}

	sess, err := s.session(r.Context(), token)
	data := s.ledgerData(sess.Page())
	rb := NewHTMXResponse()
	if err != nil && !sess.Loaded() {
		if errors.Is(err, remote.ErrUnauthorized) {
			s.render(w, r, "error.html", errorData{Title: "Session expirée", Message: "Veuillez vous reconnecter."},
				rb.Status(http.StatusUnauthorized))
			return
		}
		data.Error = "Impossible de charger les encaissements."
		rb.Status(http.StatusBadGateway)
	}
	s.render(w, r, "page.html", data, rb)
}

func (s *Server) handleBucket(w http.ResponseWriter, r *http.Request) {
	b, err := ledger.ParseBucket(r.FormValue("bucket"))
	if err != nil {
		BadRequestError("Période inconnue.").Write(w)
		return
	}
	_, sess, ok := s.withSession(w, r)
	if !ok {
		return
	}
	sess.SetBucket(b)
	page := sess.Page()
	log.FromContext(r.Context()).Debug("Bucket selected",
		log.FieldBucket, string(b), log.FieldCount, page.Summary.Count, log.FieldTotal, page.Summary.Total.String())
	s.render(w, r, "ledger_table", s.ledgerData(page), nil)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	term := sanitizeInput(r.FormValue("search"))
	if len(term) > 100 {
		BadRequestError("Recherche trop longue.").Write(w)
		return
	}
	_, sess, ok := s.withSession(w, r)
	if !ok {
		return
	}
	sess.SetSearch(term)
	s.renderTable(w, r, sess, nil)
}

func (s *Server) handleSort(w http.ResponseWriter, r *http.Request) {
	k, err := ledger.ParseSortKey(r.FormValue("sort"))
	if err != nil {
		BadRequestError("Tri inconnu.").Write(w)
		return
	}
	_, sess, ok := s.withSession(w, r)
	if !ok {
		return
	}
	sess.SetSort(k)
	s.renderTable(w, r, sess, nil)
}

func (s *Server) handleInvert(w http.ResponseWriter, r *http.Request) {
	_, sess, ok := s.withSession(w, r)
	if !ok {
		return
	}
	sess.ToggleInvert()
	s.renderTable(w, r, sess, nil)
}

// handleRefresh re-fetches the dataset. A failed refresh keeps the rows
// already shown and says so.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	token, err := tokenFrom(r)
	if err != nil {
		remoteError(err).Write(w)
		return
	}
	sess, _ := s.sessions.GetOrSet(storage.OwnerKey(token), func() *ledger.Session {
		return ledger.NewSession(s.now)
	})
	if err := s.load(r.Context(), token, sess); err != nil {
		if !sess.Loaded() {
			remoteError(err).Write(w)
			return
		}
		s.renderTable(w, r, sess, NewHTMXResponse().
			TriggerNotification(NotificationWarning, "", "Actualisation impossible, données non à jour.", 5000))
		return
	}
	s.renderTable(w, r, sess, nil)
}

func (s *Server) handleDeleteMode(w http.ResponseWriter, r *http.Request) {
	_, sess, ok := s.withSession(w, r)
	if !ok {
		return
	}
	if err := sess.ToggleDeleteMode(); err != nil {
		flowError(err).Write(w)
		return
	}
	s.renderTable(w, r, sess, nil)
}

func (s *Server) handleChoose(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		BadRequestError("Identifiant invalide.").Write(w)
		return
	}
	_, sess, ok := s.withSession(w, r)
	if !ok {
		return
	}
	if err := sess.Choose(id); err != nil {
		flowError(err).Write(w)
		return
	}
	s.renderTable(w, r, sess, nil)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	_, sess, ok := s.withSession(w, r)
	if !ok {
		return
	}
	if err := sess.Cancel(); err != nil {
		flowError(err).Write(w)
		return
	}
	s.renderTable(w, r, sess, nil)
}

// handleConfirm deletes the chosen record. The row disappears right away;
// it is restored when the deletion fails, and the notice reports the
// outcome either way.
func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	token, sess, ok := s.withSession(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	notice, err := sess.Confirm(ctx, token, s.deps.Deleter)
	if errors.Is(err, ledger.ErrInvalidTransition) {
		flowError(err).Write(w)
		return
	}
	log.NewStructuredLogger(log.FromContext(ctx)).LogDeletion(ctx, notice.RecordID, string(notice.Outcome), err)

	if notice.Refresh {
		// The refresh only reconciles; the notice already reflects the outcome.
		_ = s.load(context.WithoutCancel(ctx), token, sess)
	}
	s.renderTable(w, r, sess, NewHTMXResponse().TriggerNotice(notice))
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	s.exportFile(w, r, export.CSV)
}

func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	s.exportFile(w, r, export.XLSX)
}

func (s *Server) exportFile(w http.ResponseWriter, r *http.Request, build func(ledger.Bucket, []ledger.Row) (export.File, error)) {
	_, sess, ok := s.withSession(w, r)
	if !ok {
		return
	}
	page := sess.Page()
	f, err := build(page.State.Bucket, page.Rows)
	if err != nil {
		log.NewStructuredLogger(log.FromContext(r.Context())).LogError(r.Context(), "Export failed", err,
			log.OpExport, log.NewFields().WithComponent(log.ComponentExport))
		InternalServerError("Le téléchargement a échoué.").Write(w)
		return
	}
	w.Header().Set("Content-Type", f.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", f.Name))
	w.Header().Set("Content-Length", strconv.Itoa(len(f.Data)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(f.Data)
}

func (s *Server) handleExportSheets(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sheets == nil {
		NotFoundError("L'export Google Sheets n'est pas configuré.").Write(w)
		return
	}
	_, sess, ok := s.withSession(w, r)
	if !ok {
		return
	}
	page := sess.Page()
	tab, err := s.deps.Sheets.Export(r.Context(), page.State.Bucket, page.Rows)
	if err != nil {
		log.NewStructuredLogger(log.FromContext(r.Context())).LogError(r.Context(), "Sheets export failed", err,
			log.OpExport, log.LogFields{log.FieldBucket: string(page.State.Bucket), log.FieldCount: len(page.Rows)})
		BadGatewayError("L'export vers Google Sheets a échoué.").Write(w)
		return
	}
	NewHTMXResponse().
		Status(http.StatusNoContent).
		TriggerSuccessNotification(fmt.Sprintf("%d encaissements exportés dans l'onglet %s", len(page.Rows), tab)).
		Write(w)
}

// ledgerJSON is the body of GET /api/encaissements.
type ledgerJSON struct {
	ledger.Page
	Display string `json:"display_total"`
}

func (s *Server) handleAPILedger(w http.ResponseWriter, r *http.Request) {
	token, err := tokenFrom(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
		return
	}
	sess, err := s.session(r.Context(), token)
	if err != nil && !sess.Loaded() {
		status := http.StatusBadGateway
		if errors.Is(err, remote.ErrUnauthorized) {
			status = http.StatusUnauthorized
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	page := sess.Page()
	writeJSON(w, http.StatusOK, ledgerJSON{Page: page, Display: page.Summary.Display()})
}
