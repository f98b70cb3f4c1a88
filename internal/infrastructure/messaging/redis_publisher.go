package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/certiva/certiva-engine/internal/domain/shared"
	"github.com/certiva/certiva-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REDIS FAN-OUT
// ══════════════════════════════════════════════════════════════════════════════

// ChannelPublisher sends a JSON-encodable message to a named channel.
// redis.Cache satisfies it.
type ChannelPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// ChannelNamer maps an event type to a channel name.
type ChannelNamer func(eventType string) string

// RedisFanout publishes every event to a local publisher first and then to
// a Redis channel per event type. Redis failures are logged only: local
// subscribers must not depend on Redis being up.
type RedisFanout struct {
	local      shared.EventPublisher
	client     ChannelPublisher
	channel    ChannelNamer
	instanceID string
	timeout    time.Duration
	log        *logger.Logger
}

// RedisFanoutConfig contains configuration for RedisFanout.
type RedisFanoutConfig struct {
	// Local receives every event before Redis. May be nil.
	Local shared.EventPublisher

	Client  ChannelPublisher
	Channel ChannelNamer

	// InstanceID tags envelopes so consumers can tell engine instances apart.
	InstanceID string

	// Timeout bounds a single Redis publish.
	Timeout time.Duration

	Logger *logger.Logger
}

// NewRedisFanout creates a RedisFanout.
func NewRedisFanout(config RedisFanoutConfig) (*RedisFanout, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("messaging: redis client is required")
	}
	if config.Local == nil {
		config.Local = shared.NopPublisher{}
	}
	if config.Channel == nil {
		config.Channel = func(eventType string) string { return "certiva:events:" + eventType }
	}
	if config.InstanceID == "" {
		config.InstanceID = uuid.NewString()
	}
	if config.Timeout <= 0 {
		config.Timeout = 500 * time.Millisecond
	}
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}

	return &RedisFanout{
		local:      config.Local,
		client:     config.Client,
		channel:    config.Channel,
		instanceID: config.InstanceID,
		timeout:    config.Timeout,
		log:        config.Logger.With(logger.Component("redis_fanout")),
	}, nil
}

// Publish implements shared.EventPublisher. Only the local publisher's error
// is returned.
func (f *RedisFanout) Publish(ctx context.Context, event shared.Event) error {
	if event == nil {
		return errNilEvent
	}

	localErr := f.local.Publish(ctx, event)

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
	defer cancel()

	channel := f.channel(string(event.EventType()))
	if err := f.client.Publish(pubCtx, channel, NewEnvelope(f.instanceID, event)); err != nil {
		f.log.Warn("failed to publish to redis",
			logger.String("channel", channel),
			logger.String("aggregate_id", event.AggregateID()),
			logger.Err(err),
		)
	}

	return localErr
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENT ENVELOPE
// ══════════════════════════════════════════════════════════════════════════════

// Envelope is the wire shape of an event on Redis.
type Envelope struct {
	InstanceID  string                 `json:"instance_id"`
	EventType   shared.EventType       `json:"event_type"`
	AggregateID string                 `json:"aggregate_id"`
	OccurredAt  time.Time              `json:"occurred_at"`
	Payload     map[string]interface{} `json:"payload"`
}

// NewEnvelope wraps event for serialization.
func NewEnvelope(instanceID string, event shared.Event) Envelope {
	return Envelope{
		InstanceID:  instanceID,
		EventType:   event.EventType(),
		AggregateID: event.AggregateID(),
		OccurredAt:  event.OccurredAt(),
		Payload:     event.Payload(),
	}
}
