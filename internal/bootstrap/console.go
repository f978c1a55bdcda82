package bootstrap

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"pagepilot/internal/console"
)

func runConsole(lc fx.Lifecycle, shutdowner fx.Shutdowner, consoleInterface *console.Interface, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			logger.Info("Starting pagepilot console...")

			go func() {
				if err := consoleInterface.Start(); err != nil {
					logger.Error("Console interface error", zap.Error(err))
				}

				if err := shutdowner.Shutdown(); err != nil {
					logger.Error("Failed to request shutdown", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(context.Context) error {
			logger.Info("Shutting down pagepilot console...")

			return consoleInterface.Stop()
		},
	})
}
