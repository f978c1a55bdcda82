package bootstrap

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"pagepilot/internal/server"
)

func runServer(lc fx.Lifecycle, srv *server.Server, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Starting pagepilot HTTP server...")

			return srv.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
