// Package pagescan wraps one capability invocation per page or document with
// a bounded timeout, cooperative cancellation polling and error
// normalization. A failed page is reported in its result, never as a job
// error; only an observed cancellation stops the caller.
package pagescan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/afcbpeter1/Accessitest-sub009/internal/domain"
	"github.com/afcbpeter1/Accessitest-sub009/internal/ports"
)

// Options bound a single page evaluation.
type Options struct {
	// Timeout is the per-page budget handed to the capability context.
	Timeout time.Duration
	// SafetyCeiling is the absolute wait bound. A capability that ignores
	// its context is abandoned and the page marked failed once this fires.
	SafetyCeiling time.Duration
	// CancelPoll is how often the cancellation token is checked while a
	// page evaluation is in flight.
	CancelPoll time.Duration
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 90 * time.Second
	}
	if o.SafetyCeiling <= 0 {
		o.SafetyCeiling = 5 * time.Minute
	}
	if o.CancelPoll <= 0 {
		o.CancelPoll = 500 * time.Millisecond
	}
	return o
}

// PageOutcome bundles the normalized page result with the raw screenshot
// bytes, which the pipeline may persist separately.
type PageOutcome struct {
	Result     domain.RawPageResult
	Screenshot []byte
}

// ScanPage evaluates one page in the given session. The returned error is
// domain.ErrCancelled when the token fired, and nil otherwise; per-page
// failures are normalized into Result.Err so the job can continue.
func ScanPage(ctx context.Context, session ports.ScanSession, sourceRef string, token ports.CancelToken, opts Options) (PageOutcome, error) {
	opts = opts.withDefaults()

	pageCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	type outcome struct {
		res ports.CapabilityResult
		err error
	}
	// Buffered so the capability goroutine can finish after we stop waiting.
	done := make(chan outcome, 1)
	go func() {
		res, err := session.ScanPage(pageCtx, sourceRef)
		done <- outcome{res: res, err: err}
	}()

	poll := time.NewTicker(opts.CancelPoll)
	defer poll.Stop()
	ceiling := time.NewTimer(opts.SafetyCeiling)
	defer ceiling.Stop()

	for {
		select {
		case out := <-done:
			if out.err != nil {
				return PageOutcome{Result: failedPage(sourceRef, out.err, opts)}, nil
			}
			return PageOutcome{
				Result: domain.RawPageResult{
					SourceRef:  sourceRef,
					Violations: out.res.Violations,
				},
				Screenshot: out.res.Screenshot,
			}, nil
		case <-poll.C:
			if token != nil && token.Cancelled() {
				// Interrupt the capability and hand control back; the
				// goroutine drains into the buffered channel on its own.
				cancel()
				return PageOutcome{}, domain.ErrCancelled
			}
		case <-ceiling.C:
			cancel()
			perr := &domain.PageScanError{
				SourceRef: sourceRef,
				Reason:    fmt.Sprintf("evaluation exceeded the %s safety ceiling", opts.SafetyCeiling),
			}
			return PageOutcome{Result: domain.RawPageResult{SourceRef: sourceRef, Err: perr.Error()}}, nil
		case <-ctx.Done():
			cancel()
			return PageOutcome{}, domain.ErrCancelled
		}
	}
}

// ScanDocument evaluates one uploaded document with the same normalization
// contract as ScanPage.
func ScanDocument(ctx context.Context, capability ports.DocumentScanCapability, file domain.DocumentFile, ruleTags []string, token ports.CancelToken, opts Options) (PageOutcome, error) {
	opts = opts.withDefaults()

	docCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	type outcome struct {
		res ports.CapabilityResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := capability.ScanDocument(docCtx, file, ruleTags)
		done <- outcome{res: res, err: err}
	}()

	poll := time.NewTicker(opts.CancelPoll)
	defer poll.Stop()
	ceiling := time.NewTimer(opts.SafetyCeiling)
	defer ceiling.Stop()

	for {
		select {
		case out := <-done:
			if out.err != nil {
				return PageOutcome{Result: failedPage(file.Name, out.err, opts)}, nil
			}
			return PageOutcome{
				Result: domain.RawPageResult{
					SourceRef:  file.Name,
					Violations: out.res.Violations,
				},
				Screenshot: out.res.Screenshot,
			}, nil
		case <-poll.C:
			if token != nil && token.Cancelled() {
				cancel()
				return PageOutcome{}, domain.ErrCancelled
			}
		case <-ceiling.C:
			cancel()
			perr := &domain.PageScanError{
				SourceRef: file.Name,
				Reason:    fmt.Sprintf("evaluation exceeded the %s safety ceiling", opts.SafetyCeiling),
			}
			return PageOutcome{Result: domain.RawPageResult{SourceRef: file.Name, Err: perr.Error()}}, nil
		case <-ctx.Done():
			cancel()
			return PageOutcome{}, domain.ErrCancelled
		}
	}
}

func failedPage(sourceRef string, err error, opts Options) domain.RawPageResult {
	perr := &domain.PageScanError{SourceRef: sourceRef, Reason: normalizeReason(err, opts), Err: err}
	return domain.RawPageResult{SourceRef: sourceRef, Err: perr.Error()}
}

func normalizeReason(err error, opts Options) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("timed out after %s", opts.Timeout)
	case errors.Is(err, context.Canceled):
		return "interrupted"
	default:
		return "capability error"
	}
}
