// Package history serves stored scan results back to their owners.
package history

import (
	"context"
	"fmt"

	"github.com/afcbpeter1/Accessitest-sub009/internal/domain"
	"github.com/afcbpeter1/Accessitest-sub009/internal/ports"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Service is an owner-scoped view over the scan result store.
type Service struct {
	results ports.ScanHistoryRepository
}

func New(results ports.ScanHistoryRepository) *Service { return &Service{results: results} }

// List returns the owner's stored scans, newest first.
func (s *Service) List(ctx context.Context, ownerID string, limit int) ([]domain.ScanSummary, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: missing owner", domain.ErrInvalidInput)
	}
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	return s.results.List(ctx, ownerID, limit)
}

// Get returns one stored report. Reports belonging to other owners read as
// absent, never as forbidden.
func (s *Service) Get(ctx context.Context, ownerID, scanID string) (domain.ScanReport, error) {
	if ownerID == "" || scanID == "" {
		return domain.ScanReport{}, fmt.Errorf("%w: missing owner or scan id", domain.ErrInvalidInput)
	}
	return s.results.Get(ctx, ownerID, scanID)
}
