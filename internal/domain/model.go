package domain

import "time"

// Core domain models used internally. Wire shapes (JSON tags) follow the
// public API; keep these decoupled from storage rows where helpful.

// ScanKind distinguishes multi-page website scans from single-document scans.
type ScanKind string

const (
	ScanKindWeb      ScanKind = "web"
	ScanKindDocument ScanKind = "document"
)

// ScanStatus is the lifecycle state of a scan job.
type ScanStatus string

const (
	ScanStatusPending   ScanStatus = "pending"
	ScanStatusScanning  ScanStatus = "scanning"
	ScanStatusAnalyzing ScanStatus = "analyzing"
	ScanStatusComplete  ScanStatus = "complete"
	ScanStatusError     ScanStatus = "error"
	ScanStatusCancelled ScanStatus = "cancelled"
)

// Terminal reports whether a job in this status will never change again.
func (s ScanStatus) Terminal() bool {
	return s == ScanStatusComplete || s == ScanStatusError || s == ScanStatusCancelled
}

// ScanJob is one in-flight or completed scan run. It is owned exclusively by
// the coordinator driving it; the persisted copy is best-effort bookkeeping.
type ScanJob struct {
	ID              string     `json:"id"`
	OwnerID         string     `json:"ownerId"`
	Kind            ScanKind   `json:"kind"`
	Target          string     `json:"target"`
	RuleTags        []string   `json:"ruleTags,omitempty"`
	PagesTotal      int        `json:"pagesTotal"`
	PagesCompleted  int        `json:"pagesCompleted"`
	Status          ScanStatus `json:"status"`
	CancelRequested bool       `json:"cancelRequested"`
	Error           string     `json:"error,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// Impact is the ordinal severity of a violation, minor < moderate < serious < critical.
type Impact string

const (
	ImpactMinor    Impact = "minor"
	ImpactModerate Impact = "moderate"
	ImpactSerious  Impact = "serious"
	ImpactCritical Impact = "critical"
)

// Rank maps an impact onto its ordinal position. Unknown impacts rank lowest.
func (i Impact) Rank() int {
	switch i {
	case ImpactCritical:
		return 4
	case ImpactSerious:
		return 3
	case ImpactModerate:
		return 2
	case ImpactMinor:
		return 1
	}
	return 0
}

// ElementOccurrence is one offending element inside a violation: the full
// ordered selector path from the document root plus a short failure summary.
type ElementOccurrence struct {
	Selector       []string `json:"selector"`
	FailureSummary string   `json:"failureSummary,omitempty"`
}

// Violation is a single rule firing on a page or document, possibly covering
// several elements.
type Violation struct {
	RuleID             string              `json:"ruleId"`
	Description        string              `json:"description"`
	Impact             Impact              `json:"impact"`
	WCAGTags           []string            `json:"wcagTags,omitempty"`
	ElementOccurrences []ElementOccurrence `json:"elementOccurrences,omitempty"`
}

// RawPageResult is the scanner output for one page or document attempt.
// Immutable once produced; consumed by the deduplication engine.
type RawPageResult struct {
	SourceRef     string      `json:"sourceRef"`
	Violations    []Violation `json:"violations"`
	ScreenshotRef string      `json:"screenshotRef,omitempty"`
	Err           string      `json:"error,omitempty"`
}

// Failed reports whether the page attempt produced no usable result.
func (r RawPageResult) Failed() bool { return r.Err != "" }

// DeduplicatedIssue is the canonical issue shape after merging raw violations.
// Within one scan (ruleId, elementSignature) is unique.
type DeduplicatedIssue struct {
	RuleID             string              `json:"ruleId"`
	ElementSignature   string              `json:"elementSignature"`
	Description        string              `json:"description"`
	Impact             Impact              `json:"impact"`
	WCAGTags           []string            `json:"wcagTags,omitempty"`
	OccurrenceCount    int                 `json:"occurrenceCount"`
	AffectedSourceRefs []string            `json:"affectedSourceRefs"`
	Occurrences        []ElementOccurrence `json:"occurrences,omitempty"`
}

// PrimarySelector is the full selector path of the first offending element,
// used for stable issue identity across scans.
func (d DeduplicatedIssue) PrimarySelector() string {
	if len(d.Occurrences) == 0 {
		return ""
	}
	return SelectorPath(d.Occurrences[0].Selector)
}

// BacklogStatus is the workflow state of a persisted backlog item.
type BacklogStatus string

const (
	BacklogStatusOpen       BacklogStatus = "backlog"
	BacklogStatusInProgress BacklogStatus = "in_progress"
	BacklogStatusDone       BacklogStatus = "done"
	BacklogStatusCancelled  BacklogStatus = "cancelled"
)

// Active reports whether the item is still being worked (no reopen needed on
// repeat observation).
func (s BacklogStatus) Active() bool {
	return s == BacklogStatusOpen || s == BacklogStatusInProgress
}

// Resolved reports whether the item was closed and may be reopened.
func (s BacklogStatus) Resolved() bool {
	return s == BacklogStatusDone || s == BacklogStatusCancelled
}

// BacklogItem is the persisted, cross-scan work item for one defect signature.
// IssueKey is unique across the whole system, not just per owner.
type BacklogItem struct {
	IssueKey        string        `json:"issueKey"`
	OwnerID         string        `json:"ownerId,omitempty"`
	RuleID          string        `json:"ruleId"`
	Description     string        `json:"description"`
	Impact          Impact        `json:"impact"`
	WCAGLevel       string        `json:"wcagLevel,omitempty"`
	Status          BacklogStatus `json:"status"`
	Rank            int           `json:"rank"`
	StoryPoints     int           `json:"storyPoints"`
	SourceRef       string        `json:"sourceRef,omitempty"`
	FirstSeenScanID string        `json:"firstSeenScanId,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// CreditLedger is the admission-control balance for one owner.
type CreditLedger struct {
	OwnerID          string `json:"ownerId"`
	CreditsRemaining int    `json:"creditsRemaining"`
	Unlimited        bool   `json:"unlimited"`
}

// DocumentFile describes an uploaded document handed to the document
// capability: name, declared mime type and raw bytes.
type DocumentFile struct {
	Name     string
	MIMEType string
	Bytes    []byte
}
