package pagescan

import (
	"context"

	"github.com/afcbpeter1/Accessitest-sub009/internal/domain"
	"github.com/afcbpeter1/Accessitest-sub009/internal/ports"
)

// NoopCapability reports every page clean without real work. Replace with a
// real rendering capability.
type NoopCapability struct{}

func (NoopCapability) OpenSession(ctx context.Context, ruleTags []string) (ports.ScanSession, error) {
	return noopSession{}, nil
}

type noopSession struct{}

func (noopSession) ScanPage(ctx context.Context, sourceRef string) (ports.CapabilityResult, error) {
	return ports.CapabilityResult{}, nil
}

func (noopSession) Close() error { return nil }

// NoopDocumentCapability reports every document clean without real work.
type NoopDocumentCapability struct{}

func (NoopDocumentCapability) ScanDocument(ctx context.Context, file domain.DocumentFile, ruleTags []string) (ports.CapabilityResult, error) {
	return ports.CapabilityResult{}, nil
}
