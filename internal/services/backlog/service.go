// Package backlog reconciles deduplicated scan findings into the persistent
// backlog and backs the backlog API. Reconciliation is idempotent: the same
// defect signature always maps to the same issue key, repeat observations of
// open items only touch their timestamp, and resolved items reopen only once
// the configured grace period has passed.
package backlog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/afcbpeter1/Accessitest-sub009/internal/domain"
	"github.com/afcbpeter1/Accessitest-sub009/internal/ports"
)

// DefaultStoryPoints is the estimate given to freshly created items.
const DefaultStoryPoints = 1

// Service implements backlog reconciliation and the backlog operations
// exposed to callers.
type Service struct {
	repo  ports.BacklogRepository
	clock clockwork.Clock
	grace time.Duration
}

// New builds the service. graceDays is how long a resolved item is protected
// from reopening after its last update.
func New(repo ports.BacklogRepository, clock clockwork.Clock, graceDays int) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if graceDays <= 0 {
		graceDays = 7
	}
	return &Service{repo: repo, clock: clock, grace: time.Duration(graceDays) * 24 * time.Hour}
}

// Reconcile upserts one scan's deduplicated issues into the backlog. One issue
// instance is considered per affected source. Per-item failures are recorded
// in the summary and never abort the batch; the returned error is reserved for
// refusing to run at all.
//
// scanID must identify a durably stored scan record: items reference it, so an
// empty id means the scan write never happened and reconciliation is skipped
// entirely.
func (s *Service) Reconcile(ctx context.Context, ownerID, scanID string, issuesBySource map[string][]domain.DeduplicatedIssue) (domain.ReconcileSummary, error) {
	var summary domain.ReconcileSummary
	if scanID == "" {
		return summary, fmt.Errorf("%w: reconcile requires a persisted scan id", domain.ErrInvalidInput)
	}
	if ownerID == "" {
		return summary, fmt.Errorf("%w: reconcile requires an owner", domain.ErrInvalidInput)
	}

	// Deterministic source order keeps rank assignment reproducible for a
	// given scan outcome.
	sources := make([]string, 0, len(issuesBySource))
	for src := range issuesBySource {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	for _, src := range sources {
		for _, issue := range issuesBySource[src] {
			outcome := s.reconcileOne(ctx, ownerID, scanID, src, issue)
			summary.Record(outcome)
		}
	}
	log.Info().
		Str("owner_id", ownerID).
		Str("scan_id", scanID).
		Int("added", summary.Added).
		Int("reopened", summary.Reopened).
		Int("skipped", summary.Skipped).
		Int("errors", len(summary.Errors)).
		Msg("backlog reconciliation finished")
	return summary, nil
}

func (s *Service) reconcileOne(ctx context.Context, ownerID, scanID, sourceRef string, issue domain.DeduplicatedIssue) domain.ReconcileOutcome {
	// The element signature is the full selector path of the first offending
	// element (or the no-element sentinel), which is exactly the identity the
	// key needs.
	key := IssueKey(issue.RuleID, issue.ElementSignature, SourceDomain(sourceRef))
	outcome := domain.ReconcileOutcome{IssueKey: key, RuleID: issue.RuleID, SourceRef: sourceRef}

	existing, err := s.repo.FindByKey(ctx, key)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return s.insert(ctx, outcome, ownerID, scanID, sourceRef, issue)
	case err != nil:
		outcome.Result = domain.ReconcileError
		outcome.Reason = fmt.Sprintf("lookup failed: %v", err)
		return outcome
	}

	// The key space is global, so a hit may belong to someone else.
	if existing.OwnerID != "" && existing.OwnerID != ownerID {
		outcome.Result = domain.ReconcileSkipped
		outcome.Reason = domain.SkipReasonOwnedByOther
		return outcome
	}
	if existing.OwnerID == "" {
		// Historical rows were written without an owner; adopt on first
		// contact so later scans resolve normally.
		if err := s.repo.AdoptOwner(ctx, key, ownerID, scanID); err != nil {
			outcome.Result = domain.ReconcileError
			outcome.Reason = fmt.Sprintf("owner adoption failed: %v", err)
			return outcome
		}
	}

	if existing.Status.Active() {
		if err := s.repo.Touch(ctx, key); err != nil {
			outcome.Result = domain.ReconcileError
			outcome.Reason = fmt.Sprintf("touch failed: %v", err)
			return outcome
		}
		outcome.Result = domain.ReconcileSkipped
		outcome.Reason = domain.SkipReasonStillOpen
		return outcome
	}

	// Resolved item. Reopen only when the defect reappears after the grace
	// period; age exactly at the boundary still counts as recent.
	age := s.clock.Now().Sub(existing.UpdatedAt)
	if age <= s.grace {
		outcome.Result = domain.ReconcileSkipped
		outcome.Reason = domain.SkipReasonRecentlyResolved
		return outcome
	}
	rank, err := s.nextRank(ctx, ownerID)
	if err != nil {
		outcome.Result = domain.ReconcileError
		outcome.Reason = fmt.Sprintf("rank lookup failed: %v", err)
		return outcome
	}
	if err := s.repo.Reopen(ctx, key, rank); err != nil {
		outcome.Result = domain.ReconcileError
		outcome.Reason = fmt.Sprintf("reopen failed: %v", err)
		return outcome
	}
	outcome.Result = domain.ReconcileReopened
	return outcome
}

func (s *Service) insert(ctx context.Context, outcome domain.ReconcileOutcome, ownerID, scanID, sourceRef string, issue domain.DeduplicatedIssue) domain.ReconcileOutcome {
	rank, err := s.nextRank(ctx, ownerID)
	if err != nil {
		outcome.Result = domain.ReconcileError
		outcome.Reason = fmt.Sprintf("rank lookup failed: %v", err)
		return outcome
	}
	now := s.clock.Now()
	item := domain.BacklogItem{
		IssueKey:        outcome.IssueKey,
		OwnerID:         ownerID,
		RuleID:          issue.RuleID,
		Description:     issue.Description,
		Impact:          issue.Impact,
		WCAGLevel:       WCAGLevel(issue.WCAGTags),
		Status:          domain.BacklogStatusOpen,
		Rank:            rank,
		StoryPoints:     DefaultStoryPoints,
		SourceRef:       sourceRef,
		FirstSeenScanID: scanID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err = s.repo.Insert(ctx, item)
	switch {
	case errors.Is(err, domain.ErrDuplicateIssueKey):
		// A concurrent reconciliation won the insert race. Benign.
		outcome.Result = domain.ReconcileSkipped
		outcome.Reason = domain.SkipReasonDuplicateKey
	case err != nil:
		outcome.Result = domain.ReconcileError
		outcome.Reason = fmt.Sprintf("insert failed: %v", err)
	default:
		outcome.Result = domain.ReconcileAdded
	}
	return outcome
}

// nextRank appends to the owner's priority order. The read-then-write is not
// serialized across concurrent reconciliations for one owner; an occasional
// shared rank sorts stably by key and is tolerated.
func (s *Service) nextRank(ctx context.Context, ownerID string) (int, error) {
	max, err := s.repo.MaxRank(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

// WCAGLevel derives the conformance level from a rule's tag set: the most
// specific level tagged wins.
func WCAGLevel(tags []string) string {
	level := ""
	for _, tag := range tags {
		t := strings.ToLower(tag)
		if !strings.HasPrefix(t, "wcag") {
			continue
		}
		switch {
		case strings.HasSuffix(t, "aaa"):
			return "AAA"
		case strings.HasSuffix(t, "aa"):
			level = "AA"
		case strings.HasSuffix(t, "a") && level == "":
			level = "A"
		}
	}
	return level
}

// Backlog operations consumed by the API layer.

// List returns the owner's items in priority order.
func (s *Service) List(ctx context.Context, ownerID string) ([]domain.BacklogItem, error) {
	return s.repo.ListByOwner(ctx, ownerID)
}

// UpdateStatus moves an item through the workflow.
func (s *Service) UpdateStatus(ctx context.Context, ownerID, issueKey string, status domain.BacklogStatus) error {
	switch status {
	case domain.BacklogStatusOpen, domain.BacklogStatusInProgress, domain.BacklogStatusDone, domain.BacklogStatusCancelled:
	default:
		return fmt.Errorf("%w: unknown backlog status %q", domain.ErrInvalidInput, status)
	}
	return s.repo.UpdateStatus(ctx, ownerID, issueKey, status)
}

// UpdateStoryPoints changes an item's estimate.
func (s *Service) UpdateStoryPoints(ctx context.Context, ownerID, issueKey string, points int) error {
	if points < 0 {
		return fmt.Errorf("%w: story points must be non-negative", domain.ErrInvalidInput)
	}
	return s.repo.UpdateStoryPoints(ctx, ownerID, issueKey, points)
}

// Reorder persists a full reordering of the owner's backlog: position in
// orderedKeys becomes the new rank, written as one transaction.
func (s *Service) Reorder(ctx context.Context, ownerID string, orderedKeys []string) error {
	if len(orderedKeys) == 0 {
		return fmt.Errorf("%w: reorder requires at least one issue key", domain.ErrInvalidInput)
	}
	seen := make(map[string]struct{}, len(orderedKeys))
	ranks := make([]ports.RankAssignment, 0, len(orderedKeys))
	for i, key := range orderedKeys {
		if key == "" {
			return fmt.Errorf("%w: empty issue key at position %d", domain.ErrInvalidInput, i)
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: issue key %s listed twice", domain.ErrInvalidInput, key)
		}
		seen[key] = struct{}{}
		ranks = append(ranks, ports.RankAssignment{IssueKey: key, Rank: i + 1})
	}
	return s.repo.UpdateRanks(ctx, ownerID, ranks)
}

// Delete removes one item. Deletion is an explicit user action, never
// scan-driven.
func (s *Service) Delete(ctx context.Context, ownerID, issueKey string) error {
	return s.repo.Delete(ctx, ownerID, issueKey)
}

// BulkDelete removes a batch of items and reports how many went away.
func (s *Service) BulkDelete(ctx context.Context, ownerID string, issueKeys []string) (int64, error) {
	if len(issueKeys) == 0 {
		return 0, nil
	}
	return s.repo.DeleteBulk(ctx, ownerID, issueKeys)
}
