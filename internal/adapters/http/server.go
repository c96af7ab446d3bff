// Package httpadapter exposes the scan pipeline, backlog and credit ledger
// over HTTP. Callers are identified by the X-Owner-ID header; authentication
// itself lives upstream.
package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/afcbpeter1/Accessitest-sub009/internal/domain"
	"github.com/afcbpeter1/Accessitest-sub009/internal/ports"
	"github.com/afcbpeter1/Accessitest-sub009/internal/progress"
	"github.com/afcbpeter1/Accessitest-sub009/internal/rulepack"
)

const maxDocumentUpload = 32 << 20

// History serves stored scan results.
type History interface {
	List(ctx context.Context, ownerID string, limit int) ([]domain.ScanSummary, error)
	Get(ctx context.Context, ownerID, scanID string) (domain.ScanReport, error)
}

// Credits reports admission balances.
type Credits interface {
	Balance(ctx context.Context, ownerID string) (domain.CreditLedger, error)
}

type Server struct {
	scanner  ports.Scanner
	backlog  ports.Backlog
	history  History
	credits  Credits
	hub      *progress.Hub
	registry *rulepack.Registry
}

func New(scanner ports.Scanner, backlog ports.Backlog, history History, credits Credits, hub *progress.Hub, registry *rulepack.Registry) *Server {
	return &Server{
		scanner:  scanner,
		backlog:  backlog,
		history:  history,
		credits:  credits,
		hub:      hub,
		registry: registry,
	}
}

func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealthz)
	r.Route("/api", func(r chi.Router) {
		r.Post("/scans", s.handleStartScan)
		r.Post("/scans/document", s.handleStartDocumentScan)
		r.Get("/scans", s.handleListScans)
		r.Get("/scans/{scanID}", s.handleScanStatus)
		r.Get("/scans/{scanID}/events", s.handleScanEvents)
		r.Post("/scans/{scanID}/cancel", s.handleCancelScan)

		r.Get("/backlog", s.handleListBacklog)
		r.Patch("/backlog/{issueKey}", s.handleUpdateBacklogItem)
		r.Put("/backlog/reorder", s.handleReorderBacklog)
		r.Delete("/backlog/{issueKey}", s.handleDeleteBacklogItem)
		r.Post("/backlog/bulk-delete", s.handleBulkDeleteBacklog)

		r.Get("/credits", s.handleCredits)
		r.Get("/profiles", s.handleProfiles)
	})
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type startScanRequest struct {
	Target   string   `json:"target,omitempty"`
	Pages    []string `json:"pages"`
	Profile  string   `json:"profile,omitempty"`
	RuleTags []string `json:"ruleTags,omitempty"`
}

type scanAccepted struct {
	ScanID string            `json:"scanId"`
	Status domain.ScanStatus `json:"status"`
}

func (s *Server) handleStartScan(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	var body startScanRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err))
		return
	}
	id, err := s.scanner.StartWebScan(r.Context(), ports.WebScanRequest{
		OwnerID:  owner,
		Target:   body.Target,
		Pages:    body.Pages,
		Profile:  body.Profile,
		RuleTags: body.RuleTags,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	// Blocking path for tests and scripts: poll until the job settles.
	if parseBool(r.URL.Query().Get("wait")) {
		timeout := 30 * time.Second
		if n, err := strconv.Atoi(r.URL.Query().Get("timeout")); err == nil && n > 0 {
			timeout = time.Duration(n) * time.Second
		}
		job, err := s.awaitTerminal(r.Context(), id, timeout)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, job)
		return
	}
	writeJSON(w, http.StatusAccepted, scanAccepted{ScanID: id, Status: domain.ScanStatusPending})
}

// awaitTerminal polls job status until it settles or the budget runs out; a
// timeout returns the latest snapshot rather than an error.
func (s *Server) awaitTerminal(ctx context.Context, jobID string, timeout time.Duration) (domain.ScanJob, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		job, err := s.scanner.Status(ctx, jobID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return domain.ScanJob{}, err
		}
		if err == nil && job.Status.Terminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return domain.ScanJob{}, ctx.Err()
		case <-deadline.C:
			return s.scanner.Status(ctx, jobID)
		case <-tick.C:
		}
	}
}

func (s *Server) handleStartDocumentScan(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(maxDocumentUpload); err != nil {
		writeError(w, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, fmt.Errorf("%w: missing file field", domain.ErrInvalidInput))
		return
	}
	defer file.Close()
	body, err := io.ReadAll(file)
	if err != nil {
		writeError(w, fmt.Errorf("read upload: %w", err))
		return
	}

	id, err := s.scanner.EnqueueDocumentScan(r.Context(), ports.DocumentScanRequest{
		OwnerID: owner,
		File: domain.DocumentFile{
			Name:     header.Filename,
			MIMEType: header.Header.Get("Content-Type"),
			Bytes:    body,
		},
		Profile:  r.FormValue("profile"),
		RuleTags: splitList(r.FormValue("ruleTags")),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, scanAccepted{ScanID: id, Status: domain.ScanStatusPending})
}

func (s *Server) handleListScans(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	scans, err := s.history.List(r.Context(), owner, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if scans == nil {
		scans = []domain.ScanSummary{}
	}
	writeJSON(w, http.StatusOK, scans)
}

// handleScanStatus answers for both identifiers a client may hold: the live
// job id, and the persistent id of a stored result.
func (s *Server) handleScanStatus(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	scanID := chi.URLParam(r, "scanID")
	job, err := s.scanner.Status(r.Context(), scanID)
	if err == nil {
		if job.OwnerID != owner {
			writeError(w, domain.ErrNotFound)
			return
		}
		writeJSON(w, http.StatusOK, job)
		return
	}
	if !errors.Is(err, domain.ErrNotFound) {
		writeError(w, err)
		return
	}
	report, err := s.history.Get(r.Context(), owner, scanID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleScanEvents(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	scanID := chi.URLParam(r, "scanID")
	// Reject other owners' jobs when the job is still known; a job surviving
	// only as a stream slips through, which is acceptable for uuid job ids.
	if job, err := s.scanner.Status(r.Context(), scanID); err == nil && job.OwnerID != owner {
		writeError(w, domain.ErrNotFound)
		return
	}

	ch, cancel, live := s.hub.Subscribe(scanID)
	if !live {
		// Stream already reaped, or the process restarted mid-job. Send one
		// snapshot event so the client can settle.
		job, err := s.scanner.Status(r.Context(), scanID)
		if err != nil || job.OwnerID != owner {
			writeError(w, domain.ErrNotFound)
			return
		}
		setSSEHeaders(w)
		writeSSE(w, snapshotEvent(job))
		flusher.Flush()
		return
	}
	defer cancel()

	setSSEHeaders(w)
	flusher.Flush()
	for {
		select {
		case ev, open := <-ch:
			if !open {
				return
			}
			writeSSE(w, ev)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) handleCancelScan(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	scanID := chi.URLParam(r, "scanID")
	if err := s.scanner.Cancel(r.Context(), owner, scanID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"scanId": scanID, "cancelRequested": true})
}

func (s *Server) handleListBacklog(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	items, err := s.backlog.List(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}
	if items == nil {
		items = []domain.BacklogItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

type backlogPatch struct {
	Status      *string `json:"status,omitempty"`
	StoryPoints *int    `json:"storyPoints,omitempty"`
}

func (s *Server) handleUpdateBacklogItem(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	issueKey := chi.URLParam(r, "issueKey")
	var patch backlogPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err))
		return
	}
	if patch.Status == nil && patch.StoryPoints == nil {
		writeError(w, fmt.Errorf("%w: nothing to update", domain.ErrInvalidInput))
		return
	}
	if patch.Status != nil {
		if err := s.backlog.UpdateStatus(r.Context(), owner, issueKey, domain.BacklogStatus(*patch.Status)); err != nil {
			writeError(w, err)
			return
		}
	}
	if patch.StoryPoints != nil {
		if err := s.backlog.UpdateStoryPoints(r.Context(), owner, issueKey, *patch.StoryPoints); err != nil {
			writeError(w, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

type reorderRequest struct {
	OrderedKeys []string `json:"orderedKeys"`
}

func (s *Server) handleReorderBacklog(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	var body reorderRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err))
		return
	}
	if err := s.backlog.Reorder(r.Context(), owner, body.OrderedKeys); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteBacklogItem(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	if err := s.backlog.Delete(r.Context(), owner, chi.URLParam(r, "issueKey")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type bulkDeleteRequest struct {
	IssueKeys []string `json:"issueKeys"`
}

func (s *Server) handleBulkDeleteBacklog(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	var body bulkDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err))
		return
	}
	deleted, err := s.backlog.BulkDelete(r.Context(), owner, body.IssueKeys)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

func (s *Server) handleCredits(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	ledger, err := s.credits.Balance(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ledger)
}

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Profiles())
}

// Helpers

func requireOwner(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner := strings.TrimSpace(r.Header.Get("X-Owner-ID"))
	if owner == "" {
		writeError(w, fmt.Errorf("%w: missing X-Owner-ID header", domain.ErrInvalidInput))
		return "", false
	}
	return owner, true
}

func parseBool(v string) bool {
	b, _ := strconv.ParseBool(v)
	return b
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var denied *domain.DeniedError
	switch {
	case errors.As(err, &denied):
		status = http.StatusPaymentRequired
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("response encode failed")
	}
}

func setSSEHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
}

func writeSSE(w io.Writer, ev domain.ProgressEvent) {
	b, err := json.Marshal(ev)
	if err != nil {
		log.Warn().Err(err).Msg("event encode failed")
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, b)
}

// snapshotEvent reconstructs a single settling event for a job whose live
// stream is gone. A job that is still non-terminal here was orphaned by a
// restart and reads as an error.
func snapshotEvent(job domain.ScanJob) domain.ProgressEvent {
	ev := domain.ProgressEvent{
		Message:     "Scan " + string(job.Status),
		CurrentPage: job.PagesCompleted,
		TotalPages:  job.PagesTotal,
		Status:      job.Status,
	}
	switch job.Status {
	case domain.ScanStatusComplete:
		ev.Type = domain.EventComplete
	case domain.ScanStatusCancelled:
		ev.Type = domain.EventCancelled
	case domain.ScanStatusError:
		ev.Type = domain.EventError
		if job.Error != "" {
			ev.Message = job.Error
		}
	default:
		ev.Type = domain.EventError
		ev.Message = "scan interrupted"
		ev.Status = domain.ScanStatusError
	}
	return ev
}
