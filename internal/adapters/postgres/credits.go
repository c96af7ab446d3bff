package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/afcbpeter1/Accessitest-sub009/internal/domain"
)

// Credits implements ports.CreditLedgerRepository on the credit_ledgers and
// credit_usage_log tables.
type Credits struct {
	db *DB
}

func NewCredits(db *DB) *Credits { return &Credits{db: db} }

// DebitScanCredit spends one credit in a single transaction. The ledger row
// is locked FOR UPDATE so two concurrent debits of the last credit cannot
// both succeed.
func (r *Credits) DebitScanCredit(ctx context.Context, ownerID string, defaultCredits int) (ledger domain.CreditLedger, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return ledger, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	// First contact creates the ledger with the free allotment.
	if _, err = tx.Exec(ctx, `
        INSERT INTO credit_ledgers (owner_id, credits_remaining)
        VALUES ($1, $2)
        ON CONFLICT (owner_id) DO NOTHING
    `, ownerID, defaultCredits); err != nil {
		return ledger, err
	}

	ledger.OwnerID = ownerID
	if err = tx.QueryRow(ctx, `
        SELECT credits_remaining, unlimited FROM credit_ledgers
        WHERE owner_id = $1
        FOR UPDATE
    `, ownerID).Scan(&ledger.CreditsRemaining, &ledger.Unlimited); err != nil {
		return ledger, err
	}

	if ledger.Unlimited {
		// Unlimited plans are not decremented but still leave an audit row.
		_, err = tx.Exec(ctx, `
            INSERT INTO credit_usage_log (owner_id, amount, reason) VALUES ($1, 0, 'scan')
        `, ownerID)
		return ledger, err
	}
	if ledger.CreditsRemaining <= 0 {
		err = domain.ErrInsufficientCredits
		return domain.CreditLedger{}, err
	}
	if err = tx.QueryRow(ctx, `
        UPDATE credit_ledgers
        SET credits_remaining = credits_remaining - 1, updated_at = now()
        WHERE owner_id = $1
        RETURNING credits_remaining
    `, ownerID).Scan(&ledger.CreditsRemaining); err != nil {
		return ledger, err
	}
	if _, err = tx.Exec(ctx, `
        INSERT INTO credit_usage_log (owner_id, amount, reason) VALUES ($1, 1, 'scan')
    `, ownerID); err != nil {
		return ledger, err
	}
	return ledger, nil
}

// Refund restores one credit spent on a scan that never ran.
func (r *Credits) Refund(ctx context.Context, ownerID string) (err error) {
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

	var unlimited bool
	err = tx.QueryRow(ctx, `
        SELECT unlimited FROM credit_ledgers WHERE owner_id = $1 FOR UPDATE
    `, ownerID).Scan(&unlimited)
	if errors.Is(err, pgx.ErrNoRows) {
		err = domain.ErrNotFound
		return err
	}
	if err != nil {
		return err
	}
	if unlimited {
		_, err = tx.Exec(ctx, `
            INSERT INTO credit_usage_log (owner_id, amount, reason) VALUES ($1, 0, 'refund')
        `, ownerID)
		return err
	}
	if _, err = tx.Exec(ctx, `
        UPDATE credit_ledgers
        SET credits_remaining = credits_remaining + 1, updated_at = now()
        WHERE owner_id = $1
    `, ownerID); err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
        INSERT INTO credit_usage_log (owner_id, amount, reason) VALUES ($1, -1, 'refund')
    `, ownerID)
	return err
}

// Balance reads the ledger, creating it with the free allotment when absent.
func (r *Credits) Balance(ctx context.Context, ownerID string, defaultCredits int) (domain.CreditLedger, error) {
	ledger := domain.CreditLedger{OwnerID: ownerID}
	err := r.db.Pool.QueryRow(ctx, `
        INSERT INTO credit_ledgers (owner_id, credits_remaining)
        VALUES ($1, $2)
        ON CONFLICT (owner_id) DO UPDATE SET owner_id = EXCLUDED.owner_id
        RETURNING credits_remaining, unlimited
    `, ownerID, defaultCredits).Scan(&ledger.CreditsRemaining, &ledger.Unlimited)
	if err != nil {
		return domain.CreditLedger{}, err
	}
	return ledger, nil
}
