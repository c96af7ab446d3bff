package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by repositories when a row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientCredits denies admission before any scan work begins.
	ErrInsufficientCredits = errors.New("insufficient scan credits")

	// ErrDuplicateIssueKey marks a benign unique-key race during backlog
	// insertion: another reconciliation created the same key first.
	ErrDuplicateIssueKey = errors.New("issue key already exists")

	// ErrCancelled is the cooperative-cancellation terminal condition.
	ErrCancelled = errors.New("scan cancelled")

	// ErrInvalidInput rejects a malformed caller request before any side
	// effects exist.
	ErrInvalidInput = errors.New("invalid input")
)

// DeniedError is an admission-control rejection surfaced to the caller before
// any scan side effects exist.
type DeniedError struct {
	OwnerID string
	Err     error
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("scan admission denied for owner %s: %v", e.OwnerID, e.Err)
}

func (e *DeniedError) Unwrap() error { return e.Err }

// PageScanError is a per-page failure. It is recorded in the report and never
// aborts the job on its own.
type PageScanError struct {
	SourceRef string
	Reason    string
	Err       error
}

func (e *PageScanError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("page scan failed for %s: %s: %v", e.SourceRef, e.Reason, e.Err)
	}
	return fmt.Sprintf("page scan failed for %s: %s", e.SourceRef, e.Reason)
}

func (e *PageScanError) Unwrap() error { return e.Err }
