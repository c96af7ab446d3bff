package ports

import "context"

// QueuedScan is one document scan waiting for a worker. The uploaded payload
// lives in the object store under ObjectKey; the queue row carries metadata
// only.
type QueuedScan struct {
	JobID     string
	OwnerID   string
	ObjectKey string
	FileName  string
	MIMEType  string
	RuleTags  []string
}

// ScanQueue supports enqueueing and claiming queued document scans.
type ScanQueue interface {
	Enqueue(ctx context.Context, q QueuedScan) error
	// ClaimNext locks and transitions the next queued scan to running.
	ClaimNext(ctx context.Context) (q QueuedScan, found bool, err error)
	MarkCompleted(ctx context.Context, jobID string) error
	MarkFailed(ctx context.Context, jobID string, reason string) error
}
