// Package scanrunner drains queued document scans in the background: a
// dispatcher claims rows from the scan queue and a small worker pool runs
// each one through the scan pipeline.
package scanrunner

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/afcbpeter1/Accessitest-sub009/internal/domain"
	"github.com/afcbpeter1/Accessitest-sub009/internal/ports"
	"github.com/afcbpeter1/Accessitest-sub009/internal/workers/pipeline"
)

// Processor runs one claimed document scan to its terminal state.
type Processor interface {
	Process(ctx context.Context, queued ports.QueuedScan) error
}

// DocumentProcessor loads the uploaded payload from the object store and
// drives the scan pipeline. Errors are pre-pipeline failures only; once the
// coordinator takes over, scan outcomes land in the scan state, not here.
type DocumentProcessor struct {
	Objects     ports.ObjectStore
	Tracker     ports.JobTracker
	Coordinator *pipeline.Coordinator
	Clock       clockwork.Clock
}

func (p DocumentProcessor) Process(ctx context.Context, queued ports.QueuedScan) error {
	body, err := p.Objects.Get(ctx, queued.ObjectKey)
	if err != nil {
		return fmt.Errorf("load document payload %s: %w", queued.ObjectKey, err)
	}

	job, ok := p.Tracker.Get(queued.JobID)
	if !ok {
		// The process restarted since admission; rebuild the tracked entry
		// so progress and cancellation keep working.
		clock := p.Clock
		if clock == nil {
			clock = clockwork.NewRealClock()
		}
		job = domain.ScanJob{
			ID:         queued.JobID,
			OwnerID:    queued.OwnerID,
			Kind:       domain.ScanKindDocument,
			Target:     queued.FileName,
			RuleTags:   queued.RuleTags,
			PagesTotal: 1,
			Status:     domain.ScanStatusPending,
			CreatedAt:  clock.Now(),
		}
		p.Tracker.Put(job)
	}

	p.Coordinator.Run(ctx, pipeline.Work{
		Job:  job,
		File: domain.DocumentFile{Name: queued.FileName, MIMEType: queued.MIMEType, Bytes: body},
	})
	return nil
}

// Run starts the dispatcher and worker goroutines. It returns immediately;
// the pool stops once ctx is cancelled and the claimed work is drained.
func Run(ctx context.Context, queue ports.ScanQueue, processor Processor, concurrency int, pollInterval time.Duration) {
	if concurrency < 1 {
		return
	}
	work := make(chan ports.QueuedScan, concurrency)

	go func() {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				close(work)
				return
			case <-ticker.C:
				for {
					queued, found, err := queue.ClaimNext(ctx)
					if err != nil {
						log.Warn().Err(err).Msg("document scan claim failed")
						break
					}
					if !found {
						break
					}
					select {
					case work <- queued:
					case <-ctx.Done():
						close(work)
						return
					}
				}
			}
		}
	}()

	for i := 0; i < concurrency; i++ {
		go func(idx int) {
			for queued := range work {
				logger := log.With().Int("worker", idx).Str("scan_id", queued.JobID).Logger()
				if err := processor.Process(ctx, queued); err != nil {
					logger.Error().Err(err).Msg("document scan failed before the pipeline")
					if err := queue.MarkFailed(ctx, queued.JobID, err.Error()); err != nil {
						logger.Warn().Err(err).Msg("queue bookkeeping failed")
					}
					continue
				}
				if err := queue.MarkCompleted(ctx, queued.JobID); err != nil {
					logger.Warn().Err(err).Msg("queue bookkeeping failed")
				}
			}
		}(i)
	}
}
