package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/afcbpeter1/Accessitest-sub009/internal/domain"
	"github.com/afcbpeter1/Accessitest-sub009/internal/ports"
)

// Backlog implements ports.BacklogRepository on the backlog_items table.
// owner_id is nullable: rows created before ownership tracking existed carry
// NULL until a later scan adopts them.
type Backlog struct {
	db *DB
}

func NewBacklog(db *DB) *Backlog { return &Backlog{db: db} }

const backlogColumns = ` issue_key, COALESCE(owner_id, ''), rule_id, description, impact,
    wcag_level, status, rank, story_points, source_ref, first_seen_scan_id,
    created_at, updated_at `

func scanBacklogItem(row pgx.Row) (domain.BacklogItem, error) {
	var it domain.BacklogItem
	err := row.Scan(&it.IssueKey, &it.OwnerID, &it.RuleID, &it.Description, &it.Impact,
		&it.WCAGLevel, &it.Status, &it.Rank, &it.StoryPoints, &it.SourceRef,
		&it.FirstSeenScanID, &it.CreatedAt, &it.UpdatedAt)
	return it, err
}

func (r *Backlog) FindByKey(ctx context.Context, issueKey string) (domain.BacklogItem, error) {
	it, err := scanBacklogItem(r.db.Pool.QueryRow(ctx,
		`SELECT`+backlogColumns+`FROM backlog_items WHERE issue_key = $1`, issueKey))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.BacklogItem{}, domain.ErrNotFound
	}
	return it, err
}

// Insert adds a new item. A unique-key violation surfaces as
// domain.ErrDuplicateIssueKey so the reconciler can treat the race as benign.
func (r *Backlog) Insert(ctx context.Context, item domain.BacklogItem) error {
	_, err := r.db.Pool.Exec(ctx, `
        INSERT INTO backlog_items (
            issue_key, owner_id, rule_id, description, impact, wcag_level,
            status, rank, story_points, source_ref, first_seen_scan_id,
            created_at, updated_at
        ) VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
    `, item.IssueKey, item.OwnerID, item.RuleID, item.Description, string(item.Impact),
		item.WCAGLevel, string(item.Status), item.Rank, item.StoryPoints, item.SourceRef,
		item.FirstSeenScanID, item.CreatedAt, item.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return domain.ErrDuplicateIssueKey
	}
	return err
}

func (r *Backlog) Touch(ctx context.Context, issueKey string) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE backlog_items SET updated_at = now() WHERE issue_key = $1`, issueKey)
	if err == nil && tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return err
}

func (r *Backlog) Reopen(ctx context.Context, issueKey string, rank int) error {
	tag, err := r.db.Pool.Exec(ctx, `
        UPDATE backlog_items SET status = 'backlog', rank = $2, updated_at = now()
        WHERE issue_key = $1
    `, issueKey, rank)
	if err == nil && tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return err
}

// AdoptOwner backfills ownership on a pre-ownership row. A concurrent
// adoption by another scan wins silently; the caller re-reads if it cares.
func (r *Backlog) AdoptOwner(ctx context.Context, issueKey, ownerID, scanID string) error {
	_, err := r.db.Pool.Exec(ctx, `
        UPDATE backlog_items
        SET owner_id = $2,
            first_seen_scan_id = CASE WHEN first_seen_scan_id = '' THEN $3 ELSE first_seen_scan_id END,
            updated_at = now()
        WHERE issue_key = $1 AND owner_id IS NULL
    `, issueKey, ownerID, scanID)
	return err
}

func (r *Backlog) MaxRank(ctx context.Context, ownerID string) (int, error) {
	var max int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(rank), 0) FROM backlog_items WHERE owner_id = $1`, ownerID).Scan(&max)
	return max, err
}

func (r *Backlog) ListByOwner(ctx context.Context, ownerID string) ([]domain.BacklogItem, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT`+backlogColumns+`FROM backlog_items WHERE owner_id = $1 ORDER BY rank, created_at`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []domain.BacklogItem
	for rows.Next() {
		it, err := scanBacklogItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *Backlog) UpdateStatus(ctx context.Context, ownerID, issueKey string, status domain.BacklogStatus) error {
	tag, err := r.db.Pool.Exec(ctx, `
        UPDATE backlog_items SET status = $3, updated_at = now()
        WHERE issue_key = $1 AND owner_id = $2
    `, issueKey, ownerID, string(status))
	if err == nil && tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return err
}

func (r *Backlog) UpdateStoryPoints(ctx context.Context, ownerID, issueKey string, points int) error {
	tag, err := r.db.Pool.Exec(ctx, `
        UPDATE backlog_items SET story_points = $3, updated_at = now()
        WHERE issue_key = $1 AND owner_id = $2
    `, issueKey, ownerID, points)
	if err == nil && tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return err
}

// UpdateRanks rewrites the owner's ranks as one transaction so a reorder is
// all-or-nothing.
func (r *Backlog) UpdateRanks(ctx context.Context, ownerID string, ranks []ports.RankAssignment) (err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	for _, ra := range ranks {
		var tag pgconn.CommandTag
		if tag, err = tx.Exec(ctx, `
            UPDATE backlog_items SET rank = $3, updated_at = now()
            WHERE issue_key = $1 AND owner_id = $2
        `, ra.IssueKey, ownerID, ra.Rank); err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			err = fmt.Errorf("%w: backlog item %s", domain.ErrNotFound, ra.IssueKey)
			return err
		}
	}
	return nil
}

func (r *Backlog) Delete(ctx context.Context, ownerID, issueKey string) error {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM backlog_items WHERE issue_key = $1 AND owner_id = $2`, issueKey, ownerID)
	if err == nil && tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return err
}

func (r *Backlog) DeleteBulk(ctx context.Context, ownerID string, issueKeys []string) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM backlog_items WHERE owner_id = $1 AND issue_key = ANY($2)`, ownerID, issueKeys)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
