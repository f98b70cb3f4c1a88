package command

import (
	"context"
	"time"

	"github.com/certiva/certiva-engine/internal/domain/shared"
	"github.com/certiva/certiva-engine/pkg/logger"
)

func utcNow() time.Time {
	return time.Now().UTC()
}

func publisherOrNop(p shared.EventPublisher) shared.EventPublisher {
	if p == nil {
		return shared.NopPublisher{}
	}
	return p
}

func loggerOrNop(l *logger.Logger) *logger.Logger {
	if l == nil {
		return logger.Nop()
	}
	return l
}

// publish is best-effort: a failed publish is logged and never fails the command.
func publish(ctx context.Context, p shared.EventPublisher, log *logger.Logger, event shared.Event) {
	if err := p.Publish(ctx, event); err != nil {
		log.Warn("failed to publish event",
			logger.String("event_type", string(event.EventType())),
			logger.String("aggregate_id", event.AggregateID()),
			logger.Err(err),
		)
	}
}
