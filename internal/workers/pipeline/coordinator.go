// Package pipeline drives a single scan job from admission to its terminal
// state: sequential page scans with live progress, cooperative cancellation,
// deduplication, durable result storage and backlog reconciliation. One
// coordinator run owns one job; multiple jobs run concurrently on their own
// goroutines.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/afcbpeter1/Accessitest-sub009/internal/domain"
	"github.com/afcbpeter1/Accessitest-sub009/internal/pagescan"
	"github.com/afcbpeter1/Accessitest-sub009/internal/ports"
	"github.com/afcbpeter1/Accessitest-sub009/internal/progress"
	"github.com/afcbpeter1/Accessitest-sub009/internal/services/dedup"
)

// Reconciler syncs a completed scan's issues into the backlog.
type Reconciler interface {
	Reconcile(ctx context.Context, ownerID, scanID string, issuesBySource map[string][]domain.DeduplicatedIssue) (domain.ReconcileSummary, error)
}

// Deps are one coordinator's collaborators. Hub, Tracker and History are
// required. State bookkeeping is best-effort, Screenshots and Reconciler may
// be nil, in which case those steps are skipped.
type Deps struct {
	Web         ports.PageScanCapability
	Documents   ports.DocumentScanCapability
	Tracker     ports.JobTracker
	Hub         *progress.Hub
	Dedup       *dedup.Engine
	State       ports.ScanStateRepository
	History     ports.ScanHistoryRepository
	Reconciler  Reconciler
	Screenshots ports.ObjectStore
	Clock       clockwork.Clock
	PageOpts    pagescan.Options
}

// Coordinator runs scan jobs. Stateless between runs; safe to share.
type Coordinator struct {
	deps Deps
}

func New(deps Deps) *Coordinator {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Dedup == nil {
		deps.Dedup = dedup.New()
	}
	return &Coordinator{deps: deps}
}

// Work is one admitted scan job plus its inputs: the page list for web scans,
// the uploaded file for document scans.
type Work struct {
	Job   domain.ScanJob
	Pages []string
	File  domain.DocumentFile
}

// cancelToken adapts the job tracker's cancellation flag to the page scanner.
type cancelToken struct {
	tracker ports.JobTracker
	jobID   string
}

func (t cancelToken) Cancelled() bool { return t.tracker.Cancelled(t.jobID) }

// Run drives one job to its terminal state and blocks until then. Whatever
// path the job takes, its progress stream receives exactly one terminal event
// and is closed.
func (c *Coordinator) Run(ctx context.Context, work Work) {
	job := work.Job
	logger := log.With().Str("scan_id", job.ID).Str("owner_id", job.OwnerID).Logger()
	em := c.deps.Hub.Register(job.ID)
	token := cancelToken{tracker: c.deps.Tracker, jobID: job.ID}
	startedAt := c.deps.Clock.Now()

	if err := c.deps.State.RegisterScan(ctx, job); err != nil {
		logger.Warn().Err(err).Msg("scan-state registration failed")
	}
	c.setStatus(job.ID, domain.ScanStatusScanning)

	var results []domain.RawPageResult
	var shots map[string]string
	var err error
	if job.Kind == domain.ScanKindDocument {
		results, shots, err = c.scanDocument(ctx, job, work.File, token, em, logger)
	} else {
		results, shots, err = c.scanPages(ctx, job, work.Pages, token, em, logger)
	}
	if errors.Is(err, domain.ErrCancelled) {
		c.finishCancelled(ctx, job, em, logger)
		return
	}
	if err != nil {
		c.finishError(ctx, job, em, err, logger)
		return
	}

	c.setStatus(job.ID, domain.ScanStatusAnalyzing)
	total := job.PagesTotal
	c.emit(ctx, em, job.ID, domain.ProgressEvent{
		Type:        domain.EventAnalyzing,
		Message:     "Analyzing results",
		CurrentPage: total,
		TotalPages:  total,
		Status:      domain.ScanStatusAnalyzing,
	})

	res := c.deps.Dedup.Dedupe(results)
	report := c.assembleReport(job, results, res, shots, startedAt)

	// The scan record must exist before any backlog item can reference it.
	// This write failing is the one fatal outcome left.
	scanID, err := c.deps.History.StoreResult(ctx, report)
	if err != nil {
		c.finishError(ctx, job, em, fmt.Errorf("store scan result: %w", err), logger)
		return
	}
	report.ScanID = scanID

	if c.deps.Reconciler != nil {
		summary, err := c.deps.Reconciler.Reconcile(ctx, job.OwnerID, scanID, res.BySource)
		if err != nil {
			// The report is already durable; a failed backlog sync degrades
			// the result rather than voiding it.
			logger.Error().Err(err).Msg("backlog reconciliation failed")
			summary.Errors = append(summary.Errors, err.Error())
		}
		report.Reconcile = summary
	}

	c.finishComplete(ctx, job, em, &report, logger)
}

// scanPages walks the page list in order, one shared rendering session for
// the whole job. A failed page is recorded and the walk continues; only an
// observed cancellation stops it.
func (c *Coordinator) scanPages(ctx context.Context, job domain.ScanJob, pages []string, token ports.CancelToken, em *progress.Emitter, logger zerolog.Logger) ([]domain.RawPageResult, map[string]string, error) {
	session, err := c.deps.Web.OpenSession(ctx, job.RuleTags)
	if err != nil {
		return nil, nil, fmt.Errorf("open scan session: %w", err)
	}
	defer session.Close()

	total := len(pages)
	results := make([]domain.RawPageResult, 0, total)
	shots := make(map[string]string)
	for i, page := range pages {
		if token.Cancelled() {
			return nil, nil, domain.ErrCancelled
		}
		n := i + 1
		c.emit(ctx, em, job.ID, domain.ProgressEvent{
			Type:        domain.EventPageStart,
			Message:     fmt.Sprintf("Scanning page %d of %d", n, total),
			CurrentPage: n,
			TotalPages:  total,
			Status:      domain.ScanStatusScanning,
			SourceRef:   page,
		})

		out, err := pagescan.ScanPage(ctx, session, page, token, c.deps.PageOpts)
		if err != nil {
			return nil, nil, err
		}
		result := out.Result
		if result.Failed() {
			logger.Warn().Str("page", page).Str("reason", result.Err).Msg("page scan failed")
			results = append(results, result)
			c.emit(ctx, em, job.ID, domain.ProgressEvent{
				Type:        domain.EventPageError,
				Message:     result.Err,
				CurrentPage: n,
				TotalPages:  total,
				Status:      domain.ScanStatusScanning,
				SourceRef:   page,
			})
			continue
		}
		if key := c.storeScreenshot(ctx, job.ID, n, out.Screenshot, logger); key != "" {
			result.ScreenshotRef = key
			shots[page] = key
		}
		results = append(results, result)
		c.deps.Tracker.Apply(job.ID, func(j *domain.ScanJob) { j.PagesCompleted = n })
		c.emit(ctx, em, job.ID, domain.ProgressEvent{
			Type:        domain.EventPageComplete,
			Message:     fmt.Sprintf("Scanned page %d of %d", n, total),
			CurrentPage: n,
			TotalPages:  total,
			Status:      domain.ScanStatusScanning,
			SourceRef:   page,
		})
	}
	return results, shots, nil
}

// scanDocument is the single-source variant of scanPages.
func (c *Coordinator) scanDocument(ctx context.Context, job domain.ScanJob, file domain.DocumentFile, token ports.CancelToken, em *progress.Emitter, logger zerolog.Logger) ([]domain.RawPageResult, map[string]string, error) {
	if c.deps.Documents == nil {
		return nil, nil, fmt.Errorf("no document scan capability configured")
	}
	if token.Cancelled() {
		return nil, nil, domain.ErrCancelled
	}
	c.emit(ctx, em, job.ID, domain.ProgressEvent{
		Type:        domain.EventPageStart,
		Message:     fmt.Sprintf("Scanning document %s", file.Name),
		CurrentPage: 1,
		TotalPages:  1,
		Status:      domain.ScanStatusScanning,
		SourceRef:   file.Name,
	})

	out, err := pagescan.ScanDocument(ctx, c.deps.Documents, file, job.RuleTags, token, c.deps.PageOpts)
	if err != nil {
		return nil, nil, err
	}
	result := out.Result
	if result.Failed() {
		logger.Warn().Str("document", file.Name).Str("reason", result.Err).Msg("document scan failed")
		c.emit(ctx, em, job.ID, domain.ProgressEvent{
			Type:        domain.EventPageError,
			Message:     result.Err,
			CurrentPage: 1,
			TotalPages:  1,
			Status:      domain.ScanStatusScanning,
			SourceRef:   file.Name,
		})
		return []domain.RawPageResult{result}, nil, nil
	}

	shots := make(map[string]string)
	if key := c.storeScreenshot(ctx, job.ID, 1, out.Screenshot, logger); key != "" {
		result.ScreenshotRef = key
		shots[file.Name] = key
	}
	c.deps.Tracker.Apply(job.ID, func(j *domain.ScanJob) { j.PagesCompleted = 1 })
	c.emit(ctx, em, job.ID, domain.ProgressEvent{
		Type:        domain.EventPageComplete,
		Message:     fmt.Sprintf("Scanned document %s", file.Name),
		CurrentPage: 1,
		TotalPages:  1,
		Status:      domain.ScanStatusScanning,
		SourceRef:   file.Name,
	})
	return []domain.RawPageResult{result}, shots, nil
}

func (c *Coordinator) assembleReport(job domain.ScanJob, results []domain.RawPageResult, res dedup.Result, shots map[string]string, startedAt time.Time) domain.ScanReport {
	report := domain.ScanReport{
		ScanID:          job.ID,
		OwnerID:         job.OwnerID,
		Kind:            job.Kind,
		Target:          job.Target,
		Issues:          res.Issues,
		IssuesBySource:  res.BySource,
		SummaryBySource: res.SummaryBySource,
		Totals:          res.Totals,
		PagesScanned:    len(results),
		Screenshots:     shots,
		StartedAt:       startedAt,
		FinishedAt:      c.deps.Clock.Now(),
	}
	for _, r := range results {
		if r.Failed() {
			report.PageErrors = append(report.PageErrors, domain.PageError{SourceRef: r.SourceRef, Reason: r.Err})
		}
	}
	return report
}

// emit pushes one progress event to the stream and mirrors it into the
// best-effort scan-state store.
func (c *Coordinator) emit(ctx context.Context, em *progress.Emitter, jobID string, ev domain.ProgressEvent) {
	em.Emit(ev)
	if err := c.deps.State.UpdateProgress(ctx, jobID, ev); err != nil {
		log.Warn().Err(err).Str("scan_id", jobID).Msg("progress bookkeeping failed")
	}
}

func (c *Coordinator) setStatus(jobID string, status domain.ScanStatus) {
	c.deps.Tracker.Apply(jobID, func(j *domain.ScanJob) { j.Status = status })
}

// storeScreenshot persists optional capability screenshots. Returns the
// object key, or "" when there is nothing to store or storage is unavailable.
func (c *Coordinator) storeScreenshot(ctx context.Context, jobID string, page int, shot []byte, logger zerolog.Logger) string {
	if c.deps.Screenshots == nil || len(shot) == 0 {
		return ""
	}
	key := fmt.Sprintf("scans/%s/page-%d.png", jobID, page)
	if err := c.deps.Screenshots.Put(ctx, key, shot, "image/png"); err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("screenshot upload failed")
		return ""
	}
	return key
}

func (c *Coordinator) finishComplete(ctx context.Context, job domain.ScanJob, em *progress.Emitter, report *domain.ScanReport, logger zerolog.Logger) {
	total := job.PagesTotal
	em.Terminal(domain.ProgressEvent{
		Type:        domain.EventComplete,
		Message:     fmt.Sprintf("Scan complete: %d issues found", len(report.Issues)),
		CurrentPage: total,
		TotalPages:  total,
		Status:      domain.ScanStatusComplete,
		Report:      report,
	})
	logger.Info().
		Int("issues", len(report.Issues)).
		Int("pages", report.PagesScanned).
		Int("page_errors", len(report.PageErrors)).
		Int("backlog_added", report.Reconcile.Added).
		Int("backlog_reopened", report.Reconcile.Reopened).
		Msg("scan complete")
	c.finalize(job.ID, domain.ScanStatusComplete, logger, func() error {
		return c.deps.State.MarkCompleted(ctx, job.ID, report)
	})
}

func (c *Coordinator) finishError(ctx context.Context, job domain.ScanJob, em *progress.Emitter, cause error, logger zerolog.Logger) {
	em.Terminal(domain.ProgressEvent{
		Type:       domain.EventError,
		Message:    cause.Error(),
		TotalPages: job.PagesTotal,
		Status:     domain.ScanStatusError,
	})
	logger.Error().Err(cause).Msg("scan failed")
	c.deps.Tracker.Apply(job.ID, func(j *domain.ScanJob) { j.Error = cause.Error() })
	c.finalize(job.ID, domain.ScanStatusError, logger, func() error {
		return c.deps.State.MarkFailed(ctx, job.ID, cause.Error())
	})
}

func (c *Coordinator) finishCancelled(ctx context.Context, job domain.ScanJob, em *progress.Emitter, logger zerolog.Logger) {
	em.Terminal(domain.ProgressEvent{
		Type:       domain.EventCancelled,
		Message:    "Scan cancelled",
		TotalPages: job.PagesTotal,
		Status:     domain.ScanStatusCancelled,
	})
	logger.Info().Msg("scan cancelled")
	c.finalize(job.ID, domain.ScanStatusCancelled, logger, func() error {
		return c.deps.State.MarkCancelled(ctx, job.ID)
	})
}

// finalize records the terminal status and retires the live-tracker entry.
// The entry is dropped only once the persisted copy exists; when the write
// fails it stays behind as the only record of the outcome.
func (c *Coordinator) finalize(jobID string, status domain.ScanStatus, logger zerolog.Logger, persist func() error) {
	c.deps.Tracker.Apply(jobID, func(j *domain.ScanJob) { j.Status = status })
	if err := persist(); err != nil {
		logger.Warn().Err(err).Str("status", string(status)).Msg("terminal scan-state write failed")
		return
	}
	c.deps.Tracker.Remove(jobID)
}
