package ports

import (
	"context"

	"github.com/afcbpeter1/Accessitest-sub009/internal/domain"
)

// CreditLedgerRepository mutates the per-owner credit ledger. Debits are the
// one place in the system requiring strict transactional read-modify-write:
// two concurrent debits of a single remaining credit must not both succeed.
type CreditLedgerRepository interface {
	// DebitScanCredit atomically spends one credit, creating the ledger row
	// with defaultCredits first if the owner has none. Unlimited owners are
	// not decremented but still get a zero-amount usage log entry. Returns
	// the post-debit ledger, or domain.ErrInsufficientCredits.
	DebitScanCredit(ctx context.Context, ownerID string, defaultCredits int) (domain.CreditLedger, error)
	// Refund restores one credit after an admission that could not be used.
	Refund(ctx context.Context, ownerID string) error
	// Balance reads the ledger, creating it with defaultCredits when absent.
	Balance(ctx context.Context, ownerID string, defaultCredits int) (domain.CreditLedger, error)
}

// RankAssignment pins one backlog item to an explicit rank during reorders.
type RankAssignment struct {
	IssueKey string `json:"issueKey"`
	Rank     int    `json:"rank"`
}

// BacklogRepository persists cross-scan work items. IssueKey lookups are
// global, not owner-scoped: the same hash must never exist twice.
type BacklogRepository interface {
	FindByKey(ctx context.Context, issueKey string) (domain.BacklogItem, error)
	// Insert adds a new item and returns domain.ErrDuplicateIssueKey when the
	// key already exists (benign concurrent-reconcile race).
	Insert(ctx context.Context, item domain.BacklogItem) error
	// Touch advances updatedAt only.
	Touch(ctx context.Context, issueKey string) error
	// Reopen moves a resolved item back to backlog at the given rank.
	Reopen(ctx context.Context, issueKey string, rank int) error
	// AdoptOwner backfills ownership on a historical row created without one.
	AdoptOwner(ctx context.Context, issueKey, ownerID, scanID string) error
	// MaxRank returns the highest rank for the owner, 0 when they have none.
	MaxRank(ctx context.Context, ownerID string) (int, error)

	ListByOwner(ctx context.Context, ownerID string) ([]domain.BacklogItem, error)
	UpdateStatus(ctx context.Context, ownerID, issueKey string, status domain.BacklogStatus) error
	UpdateStoryPoints(ctx context.Context, ownerID, issueKey string, points int) error
	// UpdateRanks persists a full reordering as one transaction.
	UpdateRanks(ctx context.Context, ownerID string, ranks []RankAssignment) error
	Delete(ctx context.Context, ownerID, issueKey string) error
	DeleteBulk(ctx context.Context, ownerID string, issueKeys []string) (int64, error)
}

// ScanStateRepository mirrors live job state for inspection and restart
// forensics. All calls are best-effort: the coordinator logs failures and
// keeps going.
type ScanStateRepository interface {
	RegisterScan(ctx context.Context, job domain.ScanJob) error
	UpdateProgress(ctx context.Context, jobID string, ev domain.ProgressEvent) error
	MarkCompleted(ctx context.Context, jobID string, report *domain.ScanReport) error
	MarkFailed(ctx context.Context, jobID, reason string) error
	MarkCancelled(ctx context.Context, jobID string) error
	GetJob(ctx context.Context, jobID string) (domain.ScanJob, error)
}

// ScanHistoryRepository stores completed scan reports. StoreResult must
// succeed before backlog reconciliation runs, since backlog items reference
// the stored scan by id.
type ScanHistoryRepository interface {
	StoreResult(ctx context.Context, report domain.ScanReport) (scanPersistentID string, err error)
	List(ctx context.Context, ownerID string, limit int) ([]domain.ScanSummary, error)
	Get(ctx context.Context, ownerID, scanPersistentID string) (domain.ScanReport, error)
}

// ObjectStore keeps binary artifacts: page screenshots and queued document
// payloads.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
}
