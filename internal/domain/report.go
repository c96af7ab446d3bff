package domain

import (
	"strings"
	"time"
)

// SelectorPath renders a full ordered selector path as a single string.
// The joined form is what dedup signatures and issue keys are built from.
func SelectorPath(selector []string) string {
	return strings.Join(selector, " > ")
}

// SeverityCounts tallies canonical issues by impact.
type SeverityCounts struct {
	Critical int `json:"critical"`
	Serious  int `json:"serious"`
	Moderate int `json:"moderate"`
	Minor    int `json:"minor"`
}

// Add counts one issue of the given impact.
func (c *SeverityCounts) Add(impact Impact) {
	switch impact {
	case ImpactCritical:
		c.Critical++
	case ImpactSerious:
		c.Serious++
	case ImpactModerate:
		c.Moderate++
	case ImpactMinor:
		c.Minor++
	}
}

// Total is the number of issues counted.
func (c SeverityCounts) Total() int {
	return c.Critical + c.Serious + c.Moderate + c.Minor
}

// PageError records a per-page failure that did not abort the job.
type PageError struct {
	SourceRef string `json:"sourceRef"`
	Reason    string `json:"reason"`
}

// ReconcileOutcome is the per-issue result of a backlog reconciliation.
type ReconcileOutcome struct {
	IssueKey  string `json:"issueKey"`
	RuleID    string `json:"ruleId"`
	SourceRef string `json:"sourceRef"`
	Result    string `json:"result"` // added | reopened | skipped | error
	Reason    string `json:"reason,omitempty"`
}

// Reconcile result kinds and skip reasons.
const (
	ReconcileAdded    = "added"
	ReconcileReopened = "reopened"
	ReconcileSkipped  = "skipped"
	ReconcileError    = "error"

	SkipReasonOwnedByOther     = "owned_by_other"
	SkipReasonRecentlyResolved = "recently_resolved"
	SkipReasonDuplicateKey     = "duplicate_key"
	SkipReasonStillOpen        = "still_open"
)

// ReconcileSummary aggregates what a scan's reconciliation did to the backlog.
type ReconcileSummary struct {
	Added    int                `json:"added"`
	Reopened int                `json:"reopened"`
	Skipped  int                `json:"skipped"`
	Errors   []string           `json:"errors,omitempty"`
	Outcomes []ReconcileOutcome `json:"outcomes,omitempty"`
}

// Record folds one outcome into the summary.
func (s *ReconcileSummary) Record(o ReconcileOutcome) {
	s.Outcomes = append(s.Outcomes, o)
	switch o.Result {
	case ReconcileAdded:
		s.Added++
	case ReconcileReopened:
		s.Reopened++
	case ReconcileSkipped:
		s.Skipped++
	case ReconcileError:
		s.Errors = append(s.Errors, o.IssueKey+": "+o.Reason)
	}
}

// ScanSummary is the lightweight history row for listing past scans.
type ScanSummary struct {
	ID          string         `json:"id"`
	Kind        ScanKind       `json:"kind"`
	Target      string         `json:"target"`
	TotalIssues int            `json:"totalIssues"`
	Totals      SeverityCounts `json:"totals"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// ScanReport is the assembled outcome of one completed scan job: the
// canonical issue set, per-source views recomputed after dedup, and the
// backlog reconciliation summary.
type ScanReport struct {
	ScanID          string                         `json:"scanId"`
	OwnerID         string                         `json:"ownerId"`
	Kind            ScanKind                       `json:"kind"`
	Target          string                         `json:"target"`
	Issues          []DeduplicatedIssue            `json:"issues"`
	IssuesBySource  map[string][]DeduplicatedIssue `json:"issuesBySource,omitempty"`
	SummaryBySource map[string]SeverityCounts      `json:"summaryBySource,omitempty"`
	Totals          SeverityCounts                 `json:"totals"`
	PagesScanned    int                            `json:"pagesScanned"`
	PageErrors      []PageError                    `json:"pageErrors,omitempty"`
	Screenshots     map[string]string              `json:"screenshots,omitempty"`
	Reconcile       ReconcileSummary               `json:"reconcile"`
	StartedAt       time.Time                      `json:"startedAt"`
	FinishedAt      time.Time                      `json:"finishedAt"`
}
