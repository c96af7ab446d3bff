// Package dedup collapses raw per-page findings into canonical issues with
// stable identities, so one defect rendered on many pages (a shared header,
// a global nav) becomes a single issue instead of one per page.
package dedup

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/afcbpeter1/Accessitest-sub009/internal/domain"
)

// NoElementSignature keys violations whose offending element has no
// resolvable selector path. They stay distinct per rule instead of being
// dropped.
const NoElementSignature = "<no-element>"

// foundOnPattern matches the page-count annotation embedded in merged issue
// descriptions. It is stripped on ingest and recomputed once per run, so
// re-processing a stored description never compounds the annotation.
var foundOnPattern = regexp.MustCompile(`\s*\(Found on \d+ pages?\)`)

// Engine merges raw violations into deduplicated issues. Stateless and safe
// for concurrent use.
type Engine struct{}

func New() *Engine { return &Engine{} }

// Result is one dedup pass over a scan's page results.
type Result struct {
	// Issues is the canonical set, in first-seen order.
	Issues []domain.DeduplicatedIssue
	// BySource maps every successfully scanned source to the canonical
	// issues affecting it.
	BySource map[string][]domain.DeduplicatedIssue
	// SummaryBySource counts canonical issues per source. Computed after the
	// merge so the numbers reflect issues, not raw violation rows.
	SummaryBySource map[string]domain.SeverityCounts
	// Totals counts the canonical set.
	Totals domain.SeverityCounts
}

// Dedupe merges all violations across the given page results. Failed pages
// contribute nothing. The merge key is the rule plus the full ordered
// selector path of the first offending element; the same rule firing on
// different elements stays separate.
func (e *Engine) Dedupe(pages []domain.RawPageResult) Result {
	type entry struct {
		issue    domain.DeduplicatedIssue
		seenPath map[string]struct{}
		seenRef  map[string]struct{}
		seenTag  map[string]struct{}
	}
	merged := make(map[string]*entry)
	var order []string

	scanned := make([]string, 0, len(pages))
	for _, page := range pages {
		if page.Failed() {
			continue
		}
		scanned = append(scanned, page.SourceRef)
		for _, v := range page.Violations {
			sig := signature(v)
			key := v.RuleID + "|" + sig
			ent, ok := merged[key]
			if !ok {
				ent = &entry{
					issue: domain.DeduplicatedIssue{
						RuleID:           v.RuleID,
						ElementSignature: sig,
						Description:      stripAnnotation(v.Description),
						Impact:           v.Impact,
					},
					seenPath: make(map[string]struct{}),
					seenRef:  make(map[string]struct{}),
					seenTag:  make(map[string]struct{}),
				}
				merged[key] = ent
				order = append(order, key)
			} else if v.Impact.Rank() > ent.issue.Impact.Rank() {
				// The worst impact observed wins.
				ent.issue.Impact = v.Impact
			}
			ent.issue.OccurrenceCount++
			if _, dup := ent.seenRef[page.SourceRef]; !dup {
				ent.seenRef[page.SourceRef] = struct{}{}
				ent.issue.AffectedSourceRefs = append(ent.issue.AffectedSourceRefs, page.SourceRef)
			}
			for _, occ := range v.ElementOccurrences {
				path := domain.SelectorPath(occ.Selector)
				if _, dup := ent.seenPath[path]; dup {
					continue
				}
				ent.seenPath[path] = struct{}{}
				ent.issue.Occurrences = append(ent.issue.Occurrences, occ)
			}
			for _, tag := range v.WCAGTags {
				if _, dup := ent.seenTag[tag]; dup {
					continue
				}
				ent.seenTag[tag] = struct{}{}
				ent.issue.WCAGTags = append(ent.issue.WCAGTags, tag)
			}
		}
	}

	res := Result{
		Issues:          make([]domain.DeduplicatedIssue, 0, len(order)),
		BySource:        make(map[string][]domain.DeduplicatedIssue, len(scanned)),
		SummaryBySource: make(map[string]domain.SeverityCounts, len(scanned)),
	}
	// Clean pages still get a zeroed summary row.
	for _, ref := range scanned {
		if _, ok := res.BySource[ref]; !ok {
			res.BySource[ref] = nil
			res.SummaryBySource[ref] = domain.SeverityCounts{}
		}
	}
	for _, key := range order {
		issue := merged[key].issue
		if n := len(issue.AffectedSourceRefs); n > 1 {
			issue.Description = fmt.Sprintf("%s (Found on %d pages)", issue.Description, n)
		}
		res.Issues = append(res.Issues, issue)
		res.Totals.Add(issue.Impact)
		for _, ref := range issue.AffectedSourceRefs {
			res.BySource[ref] = append(res.BySource[ref], issue)
			counts := res.SummaryBySource[ref]
			counts.Add(issue.Impact)
			res.SummaryBySource[ref] = counts
		}
	}
	return res
}

func signature(v domain.Violation) string {
	if len(v.ElementOccurrences) == 0 {
		return NoElementSignature
	}
	if path := domain.SelectorPath(v.ElementOccurrences[0].Selector); path != "" {
		return path
	}
	return NoElementSignature
}

func stripAnnotation(description string) string {
	return strings.TrimSpace(foundOnPattern.ReplaceAllString(description, ""))
}
