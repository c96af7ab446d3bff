package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/afcbpeter1/Accessitest-sub009/internal/domain"
	"github.com/afcbpeter1/Accessitest-sub009/internal/ports"
	"github.com/afcbpeter1/Accessitest-sub009/internal/progress"
	"github.com/afcbpeter1/Accessitest-sub009/internal/rulepack"
)

type fakeScanner struct {
	startID  string
	startErr error
	startReq ports.WebScanRequest

	docErr error
	docReq ports.DocumentScanRequest

	jobs      map[string]domain.ScanJob
	cancelled []string
	cancelErr error
}

func (f *fakeScanner) StartWebScan(ctx context.Context, req ports.WebScanRequest) (string, error) {
	f.startReq = req
	if f.startErr != nil {
		return "", f.startErr
	}
	if f.startID == "" {
		f.startID = "job-1"
	}
	return f.startID, nil
}

func (f *fakeScanner) EnqueueDocumentScan(ctx context.Context, req ports.DocumentScanRequest) (string, error) {
	f.docReq = req
	if f.docErr != nil {
		return "", f.docErr
	}
	return "doc-job-1", nil
}

func (f *fakeScanner) Status(ctx context.Context, jobID string) (domain.ScanJob, error) {
	job, ok := f.jobs[jobID]
	if !ok {
		return domain.ScanJob{}, domain.ErrNotFound
	}
	return job, nil
}

func (f *fakeScanner) Cancel(ctx context.Context, ownerID, jobID string) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, ownerID+"/"+jobID)
	return nil
}

type fakeBacklog struct {
	items   []domain.BacklogItem
	err     error
	updated map[string]string
	points  map[string]int
	order   []string
	deleted []string
	bulk    int64
}

func newFakeBacklog() *fakeBacklog {
	return &fakeBacklog{updated: map[string]string{}, points: map[string]int{}}
}

func (f *fakeBacklog) List(ctx context.Context, ownerID string) ([]domain.BacklogItem, error) {
	return f.items, f.err
}

func (f *fakeBacklog) UpdateStatus(ctx context.Context, ownerID, issueKey string, status domain.BacklogStatus) error {
	if f.err != nil {
		return f.err
	}
	f.updated[issueKey] = string(status)
	return nil
}

func (f *fakeBacklog) UpdateStoryPoints(ctx context.Context, ownerID, issueKey string, points int) error {
	if f.err != nil {
		return f.err
	}
	f.points[issueKey] = points
	return nil
}

func (f *fakeBacklog) Reorder(ctx context.Context, ownerID string, orderedKeys []string) error {
	if f.err != nil {
		return f.err
	}
	f.order = orderedKeys
	return nil
}

func (f *fakeBacklog) Delete(ctx context.Context, ownerID, issueKey string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, issueKey)
	return nil
}

func (f *fakeBacklog) BulkDelete(ctx context.Context, ownerID string, issueKeys []string) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.bulk = int64(len(issueKeys))
	return f.bulk, nil
}

type fakeHistory struct {
	summaries []domain.ScanSummary
	reports   map[string]domain.ScanReport
}

func (f *fakeHistory) List(ctx context.Context, ownerID string, limit int) ([]domain.ScanSummary, error) {
	return f.summaries, nil
}

func (f *fakeHistory) Get(ctx context.Context, ownerID, scanID string) (domain.ScanReport, error) {
	report, ok := f.reports[ownerID+"/"+scanID]
	if !ok {
		return domain.ScanReport{}, domain.ErrNotFound
	}
	return report, nil
}

type fakeCredits struct {
	ledger domain.CreditLedger
}

func (f *fakeCredits) Balance(ctx context.Context, ownerID string) (domain.CreditLedger, error) {
	return domain.CreditLedger{OwnerID: ownerID, CreditsRemaining: f.ledger.CreditsRemaining, Unlimited: f.ledger.Unlimited}, nil
}

type env struct {
	scanner *fakeScanner
	backlog *fakeBacklog
	history *fakeHistory
	credits *fakeCredits
	hub     *progress.Hub
	router  http.Handler
}

func newEnv(t *testing.T) *env {
	t.Helper()
	registry, err := rulepack.Load("")
	if err != nil {
		t.Fatalf("rulepack.Load: %v", err)
	}
	e := &env{
		scanner: &fakeScanner{jobs: map[string]domain.ScanJob{}},
		backlog: newFakeBacklog(),
		history: &fakeHistory{reports: map[string]domain.ScanReport{}},
		credits: &fakeCredits{},
		hub:     progress.NewHub(),
	}
	e.router = New(e.scanner, e.backlog, e.history, e.credits, e.hub, registry).Routes()
	return e
}

func (e *env) do(method, path, owner string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if owner != "" {
		req.Header.Set("X-Owner-ID", owner)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func TestStartScan(t *testing.T) {
	validBody := []byte(`{"pages":["https://example.com/"]}`)

	tests := []struct {
		name           string
		owner          string
		body           []byte
		setup          func(*env)
		expectedStatus int
		expectedInBody string
	}{
		{
			name:           "accepted",
			owner:          "owner-1",
			body:           validBody,
			expectedStatus: http.StatusAccepted,
			expectedInBody: "scanId",
		},
		{
			name:           "missing owner header",
			owner:          "",
			body:           validBody,
			expectedStatus: http.StatusBadRequest,
			expectedInBody: "X-Owner-ID",
		},
		{
			name:           "malformed json",
			owner:          "owner-1",
			body:           []byte(`{pages`),
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:  "credit denial",
			owner: "owner-1",
			body:  validBody,
			setup: func(e *env) {
				e.scanner.startErr = &domain.DeniedError{OwnerID: "owner-1", Err: domain.ErrInsufficientCredits}
			},
			expectedStatus: http.StatusPaymentRequired,
			expectedInBody: "insufficient",
		},
		{
			name:  "invalid pages",
			owner: "owner-1",
			body:  validBody,
			setup: func(e *env) {
				e.scanner.startErr = domain.ErrInvalidInput
			},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			if tt.setup != nil {
				tt.setup(e)
			}
			rr := e.do(http.MethodPost, "/api/scans", tt.owner, tt.body)
			if rr.Code != tt.expectedStatus {
				t.Errorf("status = %d, want %d (body %s)", rr.Code, tt.expectedStatus, rr.Body.String())
			}
			if tt.expectedInBody != "" && !strings.Contains(rr.Body.String(), tt.expectedInBody) {
				t.Errorf("body = %s, want substring %q", rr.Body.String(), tt.expectedInBody)
			}
		})
	}
}

func TestStartScanPassesOwnerFromHeader(t *testing.T) {
	e := newEnv(t)
	e.do(http.MethodPost, "/api/scans", "owner-42", []byte(`{"pages":["https://example.com/"]}`))
	if e.scanner.startReq.OwnerID != "owner-42" {
		t.Fatalf("ownerID = %q, want owner-42", e.scanner.startReq.OwnerID)
	}
}

func TestStartScanWaitReturnsTerminalSnapshot(t *testing.T) {
	e := newEnv(t)
	e.scanner.startID = "job-9"
	e.scanner.jobs["job-9"] = domain.ScanJob{ID: "job-9", OwnerID: "owner-1", Status: domain.ScanStatusComplete}

	rr := e.do(http.MethodPost, "/api/scans?wait=true", "owner-1", []byte(`{"pages":["https://example.com/"]}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var job domain.ScanJob
	if err := json.Unmarshal(rr.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if job.ID != "job-9" || job.Status != domain.ScanStatusComplete {
		t.Fatalf("job = %+v", job)
	}
}

func TestScanStatus(t *testing.T) {
	e := newEnv(t)
	e.scanner.jobs["live-1"] = domain.ScanJob{ID: "live-1", OwnerID: "owner-1", Status: domain.ScanStatusScanning}
	e.history.reports["owner-1/stored-1"] = domain.ScanReport{ScanID: "stored-1", OwnerID: "owner-1", Kind: domain.ScanKindWeb}

	if rr := e.do(http.MethodGet, "/api/scans/live-1", "owner-1", nil); rr.Code != http.StatusOK {
		t.Errorf("live status = %d", rr.Code)
	}
	if rr := e.do(http.MethodGet, "/api/scans/live-1", "intruder", nil); rr.Code != http.StatusNotFound {
		t.Errorf("foreign job leaked: %d", rr.Code)
	}
	rr := e.do(http.MethodGet, "/api/scans/stored-1", "owner-1", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"scanId":"stored-1"`) {
		t.Errorf("stored report: %d %s", rr.Code, rr.Body.String())
	}
	if rr := e.do(http.MethodGet, "/api/scans/ghost", "owner-1", nil); rr.Code != http.StatusNotFound {
		t.Errorf("missing scan = %d, want 404", rr.Code)
	}
}

func TestScanEventsReplaysFinishedStream(t *testing.T) {
	e := newEnv(t)
	em := e.hub.Register("job-1")
	em.Emit(domain.ProgressEvent{Type: domain.EventPageComplete, Message: "Scanned page 1 of 1", CurrentPage: 1, TotalPages: 1})
	em.Terminal(domain.ProgressEvent{Type: domain.EventComplete, Message: "Scan complete: 0 issues found", Status: domain.ScanStatusComplete})

	rr := e.do(http.MethodGet, "/api/scans/job-1/events", "owner-1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
	body := rr.Body.String()
	for _, want := range []string{"event: page_complete", "event: complete", `data: {"type":"complete"`} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
}

func TestScanEventsSynthesizesSnapshotAfterReap(t *testing.T) {
	e := newEnv(t)
	e.scanner.jobs["old-1"] = domain.ScanJob{ID: "old-1", OwnerID: "owner-1", Status: domain.ScanStatusComplete, PagesTotal: 2, PagesCompleted: 2}

	rr := e.do(http.MethodGet, "/api/scans/old-1/events", "owner-1", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "event: complete") {
		t.Fatalf("snapshot stream: %d %s", rr.Code, rr.Body.String())
	}

	if rr := e.do(http.MethodGet, "/api/scans/ghost/events", "owner-1", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("missing job stream = %d, want 404", rr.Code)
	}
}

func TestCancelScan(t *testing.T) {
	e := newEnv(t)
	rr := e.do(http.MethodPost, "/api/scans/job-1/cancel", "owner-1", nil)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rr.Code)
	}
	if len(e.scanner.cancelled) != 1 || e.scanner.cancelled[0] != "owner-1/job-1" {
		t.Fatalf("cancelled = %v", e.scanner.cancelled)
	}

	e.scanner.cancelErr = domain.ErrNotFound
	if rr := e.do(http.MethodPost, "/api/scans/ghost/cancel", "owner-1", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestBacklogEndpoints(t *testing.T) {
	e := newEnv(t)

	rr := e.do(http.MethodGet, "/api/backlog", "owner-1", nil)
	if rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Errorf("empty list = %d %q, want 200 []", rr.Code, rr.Body.String())
	}

	rr = e.do(http.MethodPatch, "/api/backlog/key-1", "owner-1", []byte(`{"status":"in_progress","storyPoints":3}`))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("patch = %d %s", rr.Code, rr.Body.String())
	}
	if e.backlog.updated["key-1"] != "in_progress" || e.backlog.points["key-1"] != 3 {
		t.Fatalf("patch not applied: %v %v", e.backlog.updated, e.backlog.points)
	}

	if rr := e.do(http.MethodPatch, "/api/backlog/key-1", "owner-1", []byte(`{}`)); rr.Code != http.StatusBadRequest {
		t.Errorf("empty patch = %d, want 400", rr.Code)
	}

	rr = e.do(http.MethodPut, "/api/backlog/reorder", "owner-1", []byte(`{"orderedKeys":["b","a"]}`))
	if rr.Code != http.StatusNoContent || len(e.backlog.order) != 2 || e.backlog.order[0] != "b" {
		t.Fatalf("reorder = %d %v", rr.Code, e.backlog.order)
	}

	if rr := e.do(http.MethodDelete, "/api/backlog/key-1", "owner-1", nil); rr.Code != http.StatusNoContent {
		t.Errorf("delete = %d", rr.Code)
	}

	rr = e.do(http.MethodPost, "/api/backlog/bulk-delete", "owner-1", []byte(`{"issueKeys":["a","b"]}`))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"deleted":2`) {
		t.Errorf("bulk delete = %d %s", rr.Code, rr.Body.String())
	}

	e.backlog.err = domain.ErrNotFound
	if rr := e.do(http.MethodDelete, "/api/backlog/ghost", "owner-1", nil); rr.Code != http.StatusNotFound {
		t.Errorf("missing delete = %d, want 404", rr.Code)
	}
}

func TestCreditsEndpoint(t *testing.T) {
	e := newEnv(t)
	e.credits.ledger.CreditsRemaining = 2

	rr := e.do(http.MethodGet, "/api/credits", "owner-1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var ledger domain.CreditLedger
	if err := json.Unmarshal(rr.Body.Bytes(), &ledger); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ledger.OwnerID != "owner-1" || ledger.CreditsRemaining != 2 {
		t.Fatalf("ledger = %+v", ledger)
	}
}

func TestDocumentUpload(t *testing.T) {
	e := newEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "report.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte("%PDF-1.7 body")); err != nil {
		t.Fatal(err)
	}
	if err := mw.WriteField("profile", "wcag2a"); err != nil {
		t.Fatal(err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/scans/document", &buf)
	req.Header.Set("X-Owner-ID", "owner-1")
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d %s", rr.Code, rr.Body.String())
	}
	if e.scanner.docReq.File.Name != "report.pdf" || len(e.scanner.docReq.File.Bytes) == 0 {
		t.Fatalf("docReq = %+v", e.scanner.docReq)
	}
	if e.scanner.docReq.Profile != "wcag2a" {
		t.Fatalf("profile = %q", e.scanner.docReq.Profile)
	}
}

func TestHealthz(t *testing.T) {
	e := newEnv(t)
	rr := e.do(http.MethodGet, "/healthz", "", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "ok") {
		t.Fatalf("healthz = %d %s", rr.Code, rr.Body.String())
	}
}

func TestProfilesEndpoint(t *testing.T) {
	e := newEnv(t)
	rr := e.do(http.MethodGet, "/api/profiles", "", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "wcag2aa") {
		t.Fatalf("profiles = %d %s", rr.Code, rr.Body.String())
	}
}
