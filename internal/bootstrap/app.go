package bootstrap

import (
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"pagepilot/internal/artifact"
	"pagepilot/internal/config"
	"pagepilot/internal/console"
	"pagepilot/internal/ports"
	"pagepilot/internal/server"
	"pagepilot/internal/usecase"
)

// ScriptPath is the script the run command executes.
type ScriptPath string

func core() fx.Option {
	return fx.Options(
		fx.Provide(
			config.GetConfig,
			newLogger,

			fx.Annotate(artifact.NewStore, fx.As(new(ports.ArtifactStore))),
			newSessionFactory,
			newEventPublisher,

			usecase.NewUsecase,
		),

		fx.Invoke(
			setupTracing,
			stopSelections,
		),

		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx")}
		}),

		fx.StartTimeout(10*time.Second),
	)
}

// NewServerApp serves the HTTP API until interrupted.
func NewServerApp() *fx.App {
	return fx.New(
		core(),
		fx.Provide(server.NewServer),
		fx.Invoke(runServer),
	)
}

// NewConsoleApp runs the interactive prompt and stops when it exits.
func NewConsoleApp() *fx.App {
	return fx.New(
		core(),
		fx.Provide(console.NewInterface),
		fx.Invoke(runConsole),
	)
}

// NewRunApp executes one script file and exits with its outcome.
func NewRunApp(path string) *fx.App {
	return fx.New(
		core(),
		fx.Supply(ScriptPath(path)),
		fx.Invoke(runScript),
	)
}
