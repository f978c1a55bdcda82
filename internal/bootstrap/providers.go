package bootstrap

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"pagepilot/internal/browser"
	"pagepilot/internal/config"
	"pagepilot/internal/events"
	"pagepilot/internal/ports"
	"pagepilot/internal/usecase"
)

// newSessionFactory provides the launcher and stops its driver on shutdown.
func newSessionFactory(lc fx.Lifecycle, params browser.Params) ports.SessionFactory {
	launcher := browser.NewLauncher(params)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return launcher.Stop(ctx)
		},
	})

	return launcher
}

// newEventPublisher connects to NATS when NATS_URL is set. Without it events
// are only logged.
func newEventPublisher(lc fx.Lifecycle, config *config.Config, logger *zap.Logger) (ports.EventPublisher, error) {
	if config.EventsConfig.NatsURL == "" {
		return events.NewNopPublisher(logger), nil
	}

	publisher, err := events.NewNATSPublisher(events.NATSConfig{
		URL:           config.EventsConfig.NatsURL,
		SubjectPrefix: config.EventsConfig.SubjectPrefix,
	}, logger)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return publisher.Close()
		},
	})

	return publisher, nil
}

func stopSelections(lc fx.Lifecycle, service *usecase.Service) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return service.Selection.Shutdown(ctx)
		},
	})
}
