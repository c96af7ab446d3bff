// Package scanner admits scan requests through the credit gate and hands the
// admitted jobs to the pipeline: web scans start inline on their own
// goroutine, document scans go through the upload store and the background
// queue.
package scanner

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/afcbpeter1/Accessitest-sub009/internal/domain"
	"github.com/afcbpeter1/Accessitest-sub009/internal/ports"
	"github.com/afcbpeter1/Accessitest-sub009/internal/rulepack"
	"github.com/afcbpeter1/Accessitest-sub009/internal/workers/pipeline"
)

// Gate is the admission-control dependency: spend one credit or deny.
type Gate interface {
	Authorize(ctx context.Context, ownerID string) (domain.CreditLedger, error)
	Refund(ctx context.Context, ownerID string) error
}

// Runner executes one admitted scan job to its terminal state.
type Runner interface {
	Run(ctx context.Context, work pipeline.Work)
}

// Service implements ports.Scanner.
type Service struct {
	gate     Gate
	runner   Runner
	registry *rulepack.Registry
	tracker  ports.JobTracker
	state    ports.ScanStateRepository
	queue    ports.ScanQueue
	objects  ports.ObjectStore
	clock    clockwork.Clock
}

func New(gate Gate, runner Runner, registry *rulepack.Registry, tracker ports.JobTracker, state ports.ScanStateRepository, queue ports.ScanQueue, objects ports.ObjectStore, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		gate:     gate,
		runner:   runner,
		registry: registry,
		tracker:  tracker,
		state:    state,
		queue:    queue,
		objects:  objects,
		clock:    clock,
	}
}

// StartWebScan admits a multi-page website scan and starts its pipeline.
// No scan work happens before the credit gate passes; a denial surfaces as
// *domain.DeniedError with nothing to clean up.
func (s *Service) StartWebScan(ctx context.Context, req ports.WebScanRequest) (string, error) {
	pages, err := normalizePages(req)
	if err != nil {
		return "", err
	}
	tags, err := s.registry.Resolve(req.Profile, req.RuleTags)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if _, err := s.gate.Authorize(ctx, req.OwnerID); err != nil {
		return "", err
	}

	job := domain.ScanJob{
		ID:         uuid.NewString(),
		OwnerID:    req.OwnerID,
		Kind:       domain.ScanKindWeb,
		Target:     pages[0],
		RuleTags:   tags,
		PagesTotal: len(pages),
		Status:     domain.ScanStatusPending,
		CreatedAt:  s.clock.Now(),
	}
	if req.Target != "" {
		job.Target = req.Target
	}
	s.tracker.Put(job)
	log.Info().
		Str("scan_id", job.ID).
		Str("owner_id", job.OwnerID).
		Int("pages", len(pages)).
		Msg("web scan admitted")

	// The request context dies with the HTTP response; the job must not.
	go s.runner.Run(context.WithoutCancel(ctx), pipeline.Work{Job: job, Pages: pages})
	return job.ID, nil
}

// EnqueueDocumentScan admits a document scan and parks it on the background
// queue. The uploaded bytes go to the object store first so the queue row
// stays small; if either write fails after admission the spent credit is
// refunded.
func (s *Service) EnqueueDocumentScan(ctx context.Context, req ports.DocumentScanRequest) (string, error) {
	if req.OwnerID == "" {
		return "", fmt.Errorf("%w: missing owner", domain.ErrInvalidInput)
	}
	if req.File.Name == "" || len(req.File.Bytes) == 0 {
		return "", fmt.Errorf("%w: document name and content are required", domain.ErrInvalidInput)
	}
	if s.queue == nil || s.objects == nil {
		return "", fmt.Errorf("document scans are not configured")
	}
	tags, err := s.registry.Resolve(req.Profile, req.RuleTags)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if _, err := s.gate.Authorize(ctx, req.OwnerID); err != nil {
		return "", err
	}

	jobID := uuid.NewString()
	objectKey := fmt.Sprintf("uploads/%s/%s", jobID, req.File.Name)
	if err := s.objects.Put(ctx, objectKey, req.File.Bytes, req.File.MIMEType); err != nil {
		s.refund(ctx, req.OwnerID)
		return "", fmt.Errorf("store document upload: %w", err)
	}
	queued := ports.QueuedScan{
		JobID:     jobID,
		OwnerID:   req.OwnerID,
		ObjectKey: objectKey,
		FileName:  req.File.Name,
		MIMEType:  req.File.MIMEType,
		RuleTags:  tags,
	}
	if err := s.queue.Enqueue(ctx, queued); err != nil {
		s.refund(ctx, req.OwnerID)
		return "", fmt.Errorf("enqueue document scan: %w", err)
	}

	s.tracker.Put(domain.ScanJob{
		ID:         jobID,
		OwnerID:    req.OwnerID,
		Kind:       domain.ScanKindDocument,
		Target:     req.File.Name,
		RuleTags:   tags,
		PagesTotal: 1,
		Status:     domain.ScanStatusPending,
		CreatedAt:  s.clock.Now(),
	})
	log.Info().
		Str("scan_id", jobID).
		Str("owner_id", req.OwnerID).
		Str("file", req.File.Name).
		Msg("document scan queued")
	return jobID, nil
}

// Status reports a job's current state: live jobs from the tracker, finished
// ones from the persisted copy.
func (s *Service) Status(ctx context.Context, jobID string) (domain.ScanJob, error) {
	if job, ok := s.tracker.Get(jobID); ok {
		return job, nil
	}
	return s.state.GetJob(ctx, jobID)
}

// Cancel requests cooperative cancellation. The pipeline observes the flag at
// its next check point; cancelling an already-finished job is a no-op.
func (s *Service) Cancel(ctx context.Context, ownerID, jobID string) error {
	job, ok := s.tracker.Get(jobID)
	if !ok || job.OwnerID != ownerID {
		return domain.ErrNotFound
	}
	if s.tracker.RequestCancel(jobID) {
		log.Info().Str("scan_id", jobID).Str("owner_id", ownerID).Msg("scan cancellation requested")
	}
	return nil
}

func (s *Service) refund(ctx context.Context, ownerID string) {
	if err := s.gate.Refund(ctx, ownerID); err != nil {
		log.Warn().Err(err).Str("owner_id", ownerID).Msg("credit refund failed")
	}
}

func normalizePages(req ports.WebScanRequest) ([]string, error) {
	if req.OwnerID == "" {
		return nil, fmt.Errorf("%w: missing owner", domain.ErrInvalidInput)
	}
	pages := req.Pages
	if len(pages) == 0 && req.Target != "" {
		pages = []string{req.Target}
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: a web scan needs at least one page", domain.ErrInvalidInput)
	}
	out := make([]string, 0, len(pages))
	seen := make(map[string]struct{}, len(pages))
	for _, raw := range pages {
		page := strings.TrimSpace(raw)
		u, err := url.Parse(page)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return nil, fmt.Errorf("%w: %q is not a scannable http(s) url", domain.ErrInvalidInput, raw)
		}
		if _, dup := seen[page]; dup {
			continue
		}
		seen[page] = struct{}{}
		out = append(out, page)
	}
	return out, nil
}
