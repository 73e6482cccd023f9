package tasks

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"cardamage/internal/webhook"
)

// DeliveryProcessor posts queued upload notifications to the webhook.
type DeliveryProcessor struct {
	sender webhook.Sender
	logger zerolog.Logger
}

func NewDeliveryProcessor(sender webhook.Sender, logger zerolog.Logger) *DeliveryProcessor {
	return &DeliveryProcessor{
		sender: sender,
		logger: logger,
	}
}

func (p *DeliveryProcessor) Handle(ctx context.Context, msg redis.XMessage) error {
	n, err := webhook.Decode(msg.Values)
	if err != nil {
		// Retrying cannot fix a malformed entry.
		p.logger.Error().Err(err).Str("message_id", msg.ID).Msg("dropping undecodable notification")
		return nil
	}

	if err := p.sender.Send(ctx, n); err != nil {
		return fmt.Errorf("deliver %s: %w", n.AssessmentID, err)
	}

	p.logger.Info().
		Str("message_id", msg.ID).
		Str("assessment_id", n.AssessmentID).
		Msg("notification delivered")
	return nil
}
