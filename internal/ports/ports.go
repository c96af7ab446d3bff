package ports

import (
	"context"

	"github.com/afcbpeter1/Accessitest-sub009/internal/domain"
)

// WebScanRequest asks for a multi-page website scan. Pages are scanned in
// order; RuleTags wins over Profile when both are set.
type WebScanRequest struct {
	OwnerID  string   `json:"ownerId"`
	Target   string   `json:"target"`
	Pages    []string `json:"pages"`
	Profile  string   `json:"profile,omitempty"`
	RuleTags []string `json:"ruleTags,omitempty"`
}

// DocumentScanRequest asks for a single-document scan, processed by the
// background queue rather than inline.
type DocumentScanRequest struct {
	OwnerID  string
	File     domain.DocumentFile
	Profile  string
	RuleTags []string
}

// Scanner admits, tracks and cancels scan jobs.
type Scanner interface {
	StartWebScan(ctx context.Context, req WebScanRequest) (jobID string, err error)
	EnqueueDocumentScan(ctx context.Context, req DocumentScanRequest) (jobID string, err error)
	Status(ctx context.Context, jobID string) (domain.ScanJob, error)
	Cancel(ctx context.Context, ownerID, jobID string) error
}

// Backlog exposes the persisted work-item operations backing the backlog UI.
type Backlog interface {
	List(ctx context.Context, ownerID string) ([]domain.BacklogItem, error)
	UpdateStatus(ctx context.Context, ownerID, issueKey string, status domain.BacklogStatus) error
	UpdateStoryPoints(ctx context.Context, ownerID, issueKey string, points int) error
	Reorder(ctx context.Context, ownerID string, orderedKeys []string) error
	Delete(ctx context.Context, ownerID, issueKey string) error
	BulkDelete(ctx context.Context, ownerID string, issueKeys []string) (int64, error)
}

// CapabilityResult is the black-box output of one page or document
// evaluation: structured violations plus an optional screenshot.
type CapabilityResult struct {
	Violations []domain.Violation
	Screenshot []byte
}

// ScanSession is one reusable rendering context. Sequential pages within a
// job share a session to amortize startup cost.
type ScanSession interface {
	ScanPage(ctx context.Context, url string) (CapabilityResult, error)
	Close() error
}

// PageScanCapability is the external headless-renderer capability: load a
// URL, execute the rule engine, return violations. Implementations must fail
// fast on navigation errors with a descriptive error, not a raw transport one.
type PageScanCapability interface {
	OpenSession(ctx context.Context, ruleTags []string) (ScanSession, error)
}

// DocumentScanCapability is the external document capability with the same
// output contract as web scans.
type DocumentScanCapability interface {
	ScanDocument(ctx context.Context, file domain.DocumentFile, ruleTags []string) (CapabilityResult, error)
}

// CancelToken is the cooperative-cancellation handle passed down through the
// page scanner. Long evaluations poll it at a coarse interval.
type CancelToken interface {
	Cancelled() bool
}

// JobTracker is the injected store for live job state and cancellation flags,
// keyed by job id. Implementations must be safe for concurrent use.
type JobTracker interface {
	Put(job domain.ScanJob)
	Get(jobID string) (domain.ScanJob, bool)
	// Apply mutates the tracked job under the tracker's lock. It reports
	// whether the job was found.
	Apply(jobID string, fn func(*domain.ScanJob)) bool
	// RequestCancel sets the cooperative cancellation flag. It reports
	// whether the job exists and was not already terminal.
	RequestCancel(jobID string) bool
	Cancelled(jobID string) bool
	Remove(jobID string)
}

// Notifier delivers admission-control side effects. Calls are best-effort;
// failures are logged and never block authorization.
type Notifier interface {
	LowCredits(ctx context.Context, ownerID string, remaining int) error
	CreditsExhausted(ctx context.Context, ownerID string) error
}
