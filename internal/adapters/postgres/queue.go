package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/afcbpeter1/Accessitest-sub009/internal/ports"
)

// Queue implements ports.ScanQueue on the scan_queue table. Workers race on
// ClaimNext; SKIP LOCKED keeps them from blocking each other.
type Queue struct {
	db *DB
}

func NewQueue(db *DB) *Queue { return &Queue{db: db} }

func (q *Queue) Enqueue(ctx context.Context, row ports.QueuedScan) error {
	_, err := q.db.Pool.Exec(ctx, `
        INSERT INTO scan_queue (job_id, owner_id, object_key, file_name, mime_type, rule_tags)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, row.JobID, row.OwnerID, row.ObjectKey, row.FileName, row.MIMEType, row.RuleTags)
	return err
}

// ClaimNext locks the next queued scan and transitions it to running.
func (q *Queue) ClaimNext(ctx context.Context) (row ports.QueuedScan, found bool, err error) {
	tx, err := q.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return row, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	err = tx.QueryRow(ctx, `
        SELECT job_id, owner_id, object_key, file_name, mime_type, rule_tags
        FROM scan_queue
        WHERE status = 'queued'
        ORDER BY queued_at
        FOR UPDATE SKIP LOCKED
        LIMIT 1
    `).Scan(&row.JobID, &row.OwnerID, &row.ObjectKey, &row.FileName, &row.MIMEType, &row.RuleTags)
	if errors.Is(err, pgx.ErrNoRows) {
		err = nil
		return row, false, nil
	}
	if err != nil {
		return row, false, err
	}

	if _, err = tx.Exec(ctx, `
        UPDATE scan_queue SET status = 'running', started_at = now(), attempts = attempts + 1
        WHERE job_id = $1
    `, row.JobID); err != nil {
		return row, false, err
	}
	return row, true, nil
}

func (q *Queue) MarkCompleted(ctx context.Context, jobID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := q.db.Pool.Exec(ctx, `
        UPDATE scan_queue SET status = 'completed', finished_at = now() WHERE job_id = $1
    `, jobID)
	return err
}

func (q *Queue) MarkFailed(ctx context.Context, jobID, reason string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := q.db.Pool.Exec(ctx, `
        UPDATE scan_queue SET status = 'failed', error = $2, finished_at = now() WHERE job_id = $1
    `, jobID, reason)
	return err
}
