package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"pagepilot/internal/script"
	"pagepilot/internal/usecase"
)

// runScript executes the script once the graph is up and shuts the app down
// with exit code 1 when it fails.
func runScript(lc fx.Lifecycle, shutdowner fx.Shutdowner, path ScriptPath, service *usecase.Service, logger *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			s, err := script.Load(string(path))
			if err != nil {
				cancel()
				close(done)

				return err
			}

			go func() {
				defer close(done)

				code := 0
				if err := execute(ctx, service, s); err != nil {
					logger.Error("Script failed", zap.String("file", string(path)), zap.Error(err))
					fmt.Fprintf(os.Stderr, "Error: %v\n", err)

					code = 1
				}

				if err := shutdowner.Shutdown(fx.ExitCode(code)); err != nil {
					logger.Error("Failed to request shutdown", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()

			select {
			case <-done:
			case <-stopCtx.Done():
			}

			return nil
		},
	})
}

func execute(ctx context.Context, service *usecase.Service, s *script.Script) error {
	var (
		resp any
		err  error
	)

	switch s.Kind {
	case script.KindMap:
		resp, err = service.Automation.Map(ctx, *s.Map)
	case script.KindExtract:
		resp, err = service.Automation.Extract(ctx, *s.Extract)
	default:
		resp, err = service.Automation.Run(ctx, *s.Run)
	}

	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(resp)
}
