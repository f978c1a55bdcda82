package browser

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"pagepilot/internal/config"
	"pagepilot/internal/entity"
	"pagepilot/internal/metrics"
	"pagepilot/internal/ports"
	"pagepilot/internal/staticpage"
	"pagepilot/pkg/apperr"
	"pagepilot/pkg/logg"
	"pagepilot/pkg/tracing"
)

const (
	launcherName   = "BrowserLauncher"
	launcherTracer = "browser.launcher"
)

// Launcher owns the Playwright driver process and opens one independent
// session per run. The driver is started on the first browser session and
// shared by all of them.
type Launcher struct {
	config     *config.Config
	logger     *zap.Logger
	tracer     trace.Tracer
	httpClient *http.Client

	mu         sync.Mutex
	playwright *playwright.Playwright
}

type Params struct {
	fx.In

	Config *config.Config
	Logger *zap.Logger
}

func NewLauncher(params Params) *Launcher {
	return &Launcher{
		config:     params.Config,
		logger:     params.Logger.With(zap.String(logg.Layer, launcherName)),
		tracer:     otel.Tracer(launcherTracer),
		httpClient: &http.Client{},
	}
}

// Open starts a session with the given settings. Static sessions never touch
// the driver.
func (l *Launcher) Open(ctx context.Context, settings entity.SessionSettings) (session ports.Session, err error) {
	const op = "Open"
	logger := l.logger.With(zap.String(logg.Operation, op), zap.String(logg.Engine, string(settings.Engine)))

	ctx, step := tracing.StartSpan(ctx, l.tracer, logger, op, attribute.String("engine", string(settings.Engine)))
	defer func() {
		step.End(err)
	}()

	switch settings.Engine {
	case entity.EngineStatic:
		return l.track(staticpage.New(l.httpClient, settings, l.logger)), nil
	case entity.EngineBrowser, "":
	default:
		return nil, apperr.InvalidReqError(op, "engine", errUnknownEngine(settings.Engine))
	}

	pw, err := l.driver(ctx)
	if err != nil {
		return nil, err
	}

	step.AddEvent("launching browser")

	s, err := launchSession(pw, settings, l.logger.With(zap.String(logg.SessionID, uuid.NewString())))
	if err != nil {
		return nil, err
	}

	logger.Info("Browser session opened",
		zap.Bool("headless", settings.Headless),
		zap.Int("viewport_width", settings.Viewport.Width),
		zap.Int("viewport_height", settings.Viewport.Height))

	return l.track(s), nil
}

// Stop shuts the driver down. Sessions still open are closed by it.
func (l *Launcher) Stop(ctx context.Context) (err error) {
	const op = "Stop"
	logger := l.logger.With(zap.String(logg.Operation, op))

	_, step := tracing.StartSpan(ctx, l.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.playwright == nil {
		return nil
	}

	if err := l.playwright.Stop(); err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "playwright_stop_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	l.playwright = nil
	logger.Info("Playwright driver stopped")

	return nil
}

func (l *Launcher) driver(ctx context.Context) (*playwright.Playwright, error) {
	const op = "driver"
	logger := l.logger.With(zap.String(logg.Operation, op))

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.playwright != nil {
		return l.playwright, nil
	}

	if l.config.BrowserConfig.Install {
		logger.Info("Installing playwright driver and chromium...")

		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
			return nil, apperr.Wrap(op, apperr.CodeBrowserNotReady, err, map[string]any{
				apperr.MetaReason: "playwright_install_failed",
				apperr.MetaStage:  apperr.StageBrowser,
			})
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, apperr.Wrap(op, apperr.CodeBrowserNotReady, err, map[string]any{
			apperr.MetaReason: "playwright_start_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	l.playwright = pw
	logger.Info("Playwright driver started")

	return pw, nil
}

func (l *Launcher) track(s ports.Session) ports.Session {
	metrics.SessionOpened()

	return &trackedSession{Session: s}
}

// trackedSession keeps the active sessions gauge in step with Close.
type trackedSession struct {
	ports.Session
	once sync.Once
}

func (t *trackedSession) Close(ctx context.Context) error {
	err := t.Session.Close(ctx)
	t.once.Do(metrics.SessionClosed)

	return err
}
