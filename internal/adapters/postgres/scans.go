package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/afcbpeter1/Accessitest-sub009/internal/domain"
)

// Scans implements ports.ScanStateRepository and ports.ScanHistoryRepository.
// The scans table mirrors live job state; scan_results holds the durable
// reports under their own persistent ids.
type Scans struct {
	db *DB
}

func NewScans(db *DB) *Scans { return &Scans{db: db} }

func (r *Scans) RegisterScan(ctx context.Context, job domain.ScanJob) error {
	_, err := r.db.Pool.Exec(ctx, `
        INSERT INTO scans (id, owner_id, kind, target, status, pages_total, pages_done, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (id) DO NOTHING
    `, job.ID, job.OwnerID, string(job.Kind), job.Target, string(job.Status),
		job.PagesTotal, job.PagesCompleted, job.CreatedAt)
	return err
}

func (r *Scans) UpdateProgress(ctx context.Context, jobID string, ev domain.ProgressEvent) error {
	if ev.Type == domain.EventPageComplete {
		_, err := r.db.Pool.Exec(ctx, `
            UPDATE scans SET status = $2, pages_done = GREATEST(pages_done, $3) WHERE id = $1
        `, jobID, string(ev.Status), ev.CurrentPage)
		return err
	}
	_, err := r.db.Pool.Exec(ctx, `UPDATE scans SET status = $2 WHERE id = $1`, jobID, string(ev.Status))
	return err
}

func (r *Scans) MarkCompleted(ctx context.Context, jobID string, report *domain.ScanReport) error {
	pages := 0
	if report != nil {
		pages = report.PagesScanned
	}
	_, err := r.db.Pool.Exec(ctx, `
        UPDATE scans SET status = 'complete', pages_done = GREATEST(pages_done, $2), finished_at = now()
        WHERE id = $1
    `, jobID, pages)
	return err
}

func (r *Scans) MarkFailed(ctx context.Context, jobID, reason string) error {
	_, err := r.db.Pool.Exec(ctx, `
        UPDATE scans SET status = 'error', error = $2, finished_at = now() WHERE id = $1
    `, jobID, reason)
	return err
}

func (r *Scans) MarkCancelled(ctx context.Context, jobID string) error {
	_, err := r.db.Pool.Exec(ctx, `
        UPDATE scans SET status = 'cancelled', finished_at = now() WHERE id = $1
    `, jobID)
	return err
}

func (r *Scans) GetJob(ctx context.Context, jobID string) (domain.ScanJob, error) {
	var job domain.ScanJob
	err := r.db.Pool.QueryRow(ctx, `
        SELECT id, owner_id, kind, target, status, pages_total, pages_done, error, created_at
        FROM scans WHERE id = $1
    `, jobID).Scan(&job.ID, &job.OwnerID, &job.Kind, &job.Target, &job.Status,
		&job.PagesTotal, &job.PagesCompleted, &job.Error, &job.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ScanJob{}, domain.ErrNotFound
	}
	return job, err
}

// StoreResult writes the report under a fresh persistent id and returns it.
// The incoming report carries the live job id; the stored copy carries the
// persistent id so readers see a self-consistent document.
func (r *Scans) StoreResult(ctx context.Context, report domain.ScanReport) (string, error) {
	id := uuid.NewString()
	jobID := report.ScanID
	report.ScanID = id
	body, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("encode scan report: %w", err)
	}
	if _, err := r.db.Pool.Exec(ctx, `
        INSERT INTO scan_results (
            id, job_id, owner_id, kind, target, report,
            total_issues, critical, serious, moderate, minor, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
    `, id, jobID, report.OwnerID, string(report.Kind), report.Target, body,
		report.Totals.Total(), report.Totals.Critical, report.Totals.Serious,
		report.Totals.Moderate, report.Totals.Minor, report.FinishedAt); err != nil {
		return "", err
	}
	return id, nil
}

func (r *Scans) List(ctx context.Context, ownerID string, limit int) ([]domain.ScanSummary, error) {
	rows, err := r.db.Pool.Query(ctx, `
        SELECT id, kind, target, total_issues, critical, serious, moderate, minor, created_at
        FROM scan_results
        WHERE owner_id = $1
        ORDER BY created_at DESC
        LIMIT $2
    `, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.ScanSummary
	for rows.Next() {
		var s domain.ScanSummary
		if err := rows.Scan(&s.ID, &s.Kind, &s.Target, &s.TotalIssues, &s.Totals.Critical,
			&s.Totals.Serious, &s.Totals.Moderate, &s.Totals.Minor, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Scans) Get(ctx context.Context, ownerID, id string) (domain.ScanReport, error) {
	var body []byte
	err := r.db.Pool.QueryRow(ctx,
		`SELECT report FROM scan_results WHERE id = $1 AND owner_id = $2`, id, ownerID).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ScanReport{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.ScanReport{}, err
	}
	var report domain.ScanReport
	if err := json.Unmarshal(body, &report); err != nil {
		return domain.ScanReport{}, fmt.Errorf("decode stored report: %w", err)
	}
	return report, nil
}
