// Package credit implements scan admission control. Every scan request spends
// one credit (or confirms an unlimited entitlement) before any scan work
// starts; a denial leaves no partial state behind.
package credit

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/afcbpeter1/Accessitest-sub009/internal/domain"
	"github.com/afcbpeter1/Accessitest-sub009/internal/ports"
)

// Service is the credit gate in front of the scan pipeline.
type Service struct {
	ledger         ports.CreditLedgerRepository
	notifier       ports.Notifier
	defaultCredits int
	lowThreshold   int
}

func New(ledger ports.CreditLedgerRepository, notifier ports.Notifier, defaultCredits, lowThreshold int) *Service {
	return &Service{
		ledger:         ledger,
		notifier:       notifier,
		defaultCredits: defaultCredits,
		lowThreshold:   lowThreshold,
	}
}

// Authorize atomically spends one credit for the owner, creating the ledger
// with the default free allotment on first contact. A denial is returned as
// *domain.DeniedError wrapping domain.ErrInsufficientCredits; any other error
// is a hard failure and the scan must not start.
func (s *Service) Authorize(ctx context.Context, ownerID string) (domain.CreditLedger, error) {
	ledger, err := s.ledger.DebitScanCredit(ctx, ownerID, s.defaultCredits)
	if errors.Is(err, domain.ErrInsufficientCredits) {
		s.notifyExhausted(ctx, ownerID)
		return domain.CreditLedger{}, &domain.DeniedError{OwnerID: ownerID, Err: domain.ErrInsufficientCredits}
	}
	if err != nil {
		return domain.CreditLedger{}, fmt.Errorf("debit scan credit: %w", err)
	}
	if !ledger.Unlimited && ledger.CreditsRemaining <= s.lowThreshold {
		s.notifyLow(ctx, ownerID, ledger.CreditsRemaining)
	}
	return ledger, nil
}

// Refund restores one credit after an admission whose scan never ran, for
// example when enqueueing the job failed after the debit.
func (s *Service) Refund(ctx context.Context, ownerID string) error {
	if err := s.ledger.Refund(ctx, ownerID); err != nil {
		return fmt.Errorf("refund scan credit: %w", err)
	}
	return nil
}

// Balance reads the owner's ledger, creating it with the default allotment
// when absent so first-time callers see their free credits.
func (s *Service) Balance(ctx context.Context, ownerID string) (domain.CreditLedger, error) {
	ledger, err := s.ledger.Balance(ctx, ownerID, s.defaultCredits)
	if err != nil {
		return domain.CreditLedger{}, fmt.Errorf("read credit balance: %w", err)
	}
	return ledger, nil
}

// Notifications are best-effort side effects and never block authorization.

func (s *Service) notifyLow(ctx context.Context, ownerID string, remaining int) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.LowCredits(ctx, ownerID, remaining); err != nil {
		log.Warn().Err(err).Str("owner_id", ownerID).Msg("low-credits notification failed")
	}
}

func (s *Service) notifyExhausted(ctx context.Context, ownerID string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.CreditsExhausted(ctx, ownerID); err != nil {
		log.Warn().Err(err).Str("owner_id", ownerID).Msg("credits-exhausted notification failed")
	}
}
