// Package notify delivers owner-facing credit notifications. The log sink is
// the only channel today; wire email or webhook delivery here later.
package notify

import (
	"context"

	"github.com/rs/zerolog/log"
)

// LogSink writes admission notifications to the application log. It satisfies
// ports.Notifier.
type LogSink struct{}

func NewLogSink() *LogSink { return &LogSink{} }

func (*LogSink) LowCredits(ctx context.Context, ownerID string, remaining int) error {
	log.Info().
		Str("owner_id", ownerID).
		Int("credits_remaining", remaining).
		Msg("owner is low on scan credits")
	return nil
}

func (*LogSink) CreditsExhausted(ctx context.Context, ownerID string) error {
	log.Info().Str("owner_id", ownerID).Msg("owner is out of scan credits")
	return nil
}
