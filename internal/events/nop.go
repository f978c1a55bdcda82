package events

import (
	"context"

	"go.uber.org/zap"

	"pagepilot/internal/entity"
	"pagepilot/pkg/logg"
)

// NopPublisher drops events. It is used when no NATS URL is configured.
type NopPublisher struct {
	logger *zap.Logger
}

func NewNopPublisher(logger *zap.Logger) *NopPublisher {
	return &NopPublisher{logger: logger.With(zap.String(logg.Layer, publisherName))}
}

func (p *NopPublisher) Publish(_ context.Context, event entity.Event) error {
	p.logger.Debug("Event dropped", zap.String(logg.Kind, string(event.Type)), zap.String(logg.RunID, event.ID))

	return nil
}

func (p *NopPublisher) Close() error {
	return nil
}
