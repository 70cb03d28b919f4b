package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jellyjelly/campaign-engine/internal/campaign"
	"github.com/jellyjelly/campaign-engine/internal/domain"
	"github.com/jellyjelly/campaign-engine/internal/events"
	"github.com/jellyjelly/campaign-engine/internal/pkg/logger"
	"github.com/jellyjelly/campaign-engine/internal/token"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[API] encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleWebhook ingests one provider callback. The provider retries on
// non-2xx, so validation failures return precise statuses: 403 for a
// bad signature, 400 for a malformed payload.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var env events.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	e, err := s.ingestor.Ingest(r.Context(), &env)
	switch {
	case errors.Is(err, events.ErrBadSignature):
		writeError(w, http.StatusForbidden, "signature verification failed")
		return
	case errors.Is(err, events.ErrMissingEventData):
		writeError(w, http.StatusBadRequest, "missing event-data")
		return
	case err != nil:
		log.Printf("[API] webhook ingest: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := map[string]interface{}{"success": true}
	if e != nil {
		resp["event_type"] = e.EventType
	}
	writeJSON(w, http.StatusOK, resp)
}

const unsubscribePageHTML = `<!DOCTYPE html>
<html>
<head><title>Unsubscribe</title></head>
<body>
<h1>Unsubscribe</h1>
<p>Click below to stop receiving campaign emails at %s.</p>
<form method="POST" action="/unsubscribe">
<input type="hidden" name="token" value="%s">
<button type="submit">Unsubscribe</button>
</form>
</body>
</html>`

const unsubscribeDoneHTML = `<!DOCTYPE html>
<html>
<head><title>Unsubscribed</title></head>
<body>
<h1>You're unsubscribed</h1>
<p>%s will no longer receive campaign emails.</p>
</body>
</html>`

// handleUnsubscribePage renders the confirmation page. The token is
// validated up front so a dead link fails here instead of on submit.
func (s *Server) handleUnsubscribePage(w http.ResponseWriter, r *http.Request) {
	tok := r.URL.Query().Get("token")
	p := token.Verify(tok, s.cfg.Unsubscribe.Secret)
	if p == nil {
		http.Error(w, "Invalid or expired unsubscribe link.", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, unsubscribePageHTML, html.EscapeString(p.Email), html.EscapeString(tok))
}

// handleUnsubscribe performs the actual opt-out. It also serves
// List-Unsubscribe-Post one-click requests, which POST the token with
// no human involved.
func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Malformed request.", http.StatusBadRequest)
		return
	}
	tok := r.PostForm.Get("token")
	if tok == "" {
		tok = r.URL.Query().Get("token")
	}
	p := token.Verify(tok, s.cfg.Unsubscribe.Secret)
	if p == nil {
		http.Error(w, "Invalid or expired unsubscribe link.", http.StatusBadRequest)
		return
	}

	if err := s.suppressions.AddUnsubscribe(r.Context(), p.Email); err != nil {
		log.Printf("[API] unsubscribing %s: %v", logger.RedactEmail(p.Email), err)
		http.Error(w, "Something went wrong. Please try again.", http.StatusInternalServerError)
		return
	}
	log.Printf("[API] unsubscribed %s (campaign %s)", logger.RedactEmail(p.Email), p.CampaignID)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, unsubscribeDoneHTML, html.EscapeString(p.Email))
}

// handleSendScheduled is the cron entry point for sequence steps.
func (s *Server) handleSendScheduled(w http.ResponseWriter, r *http.Request) {
	report, err := s.scheduler.RunDue(r.Context())
	if err != nil {
		log.Printf("[API] scheduler run: %v", err)
		writeError(w, http.StatusInternalServerError, "scheduler run failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleReconcileOutcomes is the cron entry point for outcome windows.
func (s *Server) handleReconcileOutcomes(w http.ResponseWriter, r *http.Request) {
	report, err := s.reconciler.Reconcile(r.Context())
	if err != nil {
		log.Printf("[API] outcome reconciliation: %v", err)
		writeError(w, http.StatusInternalServerError, "reconciliation failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleSendCampaign triggers a one-off campaign send.
func (s *Server) handleSendCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	progress, err := s.campaigns.Send(r.Context(), id)
	switch {
	case errors.Is(err, campaign.ErrNotFound):
		writeError(w, http.StatusNotFound, "campaign not found")
		return
	case errors.Is(err, campaign.ErrNotDraft):
		writeError(w, http.StatusConflict, "campaign already sent or sending")
		return
	case err != nil:
		log.Printf("[API] sending campaign %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "send failed")
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

// handleListSuppressions returns provider suppression entries, filtered
// by ?type=unsubscribe|bounce|complaint (default unsubscribe).
func (s *Server) handleListSuppressions(w http.ResponseWriter, r *http.Request) {
	kind := domain.SuppressionType(r.URL.Query().Get("type"))
	if kind == "" {
		kind = domain.SuppressionUnsubscribe
	}
	switch kind {
	case domain.SuppressionUnsubscribe, domain.SuppressionBounce, domain.SuppressionComplaint:
	default:
		writeError(w, http.StatusBadRequest, "unknown suppression type")
		return
	}

	entries, err := s.suppressions.Suppressions(r.Context(), kind)
	if err != nil {
		log.Printf("[API] listing %s suppressions: %v", kind, err)
		writeError(w, http.StatusInternalServerError, "listing suppressions failed")
		return
	}
	if entries == nil {
		entries = []domain.SuppressionEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"type":    kind,
		"count":   len(entries),
		"entries": entries,
	})
}

// handleDeleteSuppression removes an address from the unsubscribe list,
// re-enabling delivery.
func (s *Server) handleDeleteSuppression(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	if email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}
	if err := s.suppressions.RemoveUnsubscribe(r.Context(), email); err != nil {
		log.Printf("[API] removing suppression for %s: %v", logger.RedactEmail(email), err)
		writeError(w, http.StatusInternalServerError, "removing suppression failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": true})
}
