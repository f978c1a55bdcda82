package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"pagepilot/internal/config"
	"pagepilot/internal/entity"
	"pagepilot/internal/metrics"
	"pagepilot/internal/ports"
	"pagepilot/pkg/apperr"
	"pagepilot/pkg/logg"
	"pagepilot/pkg/tracing"
)

const (
	orchestratorName   = "Orchestrator"
	orchestratorTracer = "usecase.orchestrator"

	kindRun      = "run"
	kindMap      = "map"
	kindExtract  = "extract"
	kindDescribe = "describe"
)

// Orchestrator owns the session lifecycle of every run: open, navigate, do
// the work, screenshot, persist, close. Sessions are never shared between
// runs and are closed on every path.
type Orchestrator struct {
	config    *config.Config
	logger    *zap.Logger
	tracer    trace.Tracer
	sessions  ports.SessionFactory
	store     ports.ArtifactStore
	events    ports.EventPublisher
	executor  *Executor
	extractor *Extractor
	slots     *semaphore.Weighted
}

type OrchestratorParams struct {
	fx.In

	Config   *config.Config
	Logger   *zap.Logger
	Sessions ports.SessionFactory
	Store    ports.ArtifactStore
	Events   ports.EventPublisher
}

func NewOrchestrator(params OrchestratorParams) *Orchestrator {
	extractor := NewExtractor(params.Logger)

	return &Orchestrator{
		config:    params.Config,
		logger:    params.Logger.With(zap.String(logg.Layer, orchestratorName)),
		tracer:    otel.Tracer(orchestratorTracer),
		sessions:  params.Sessions,
		store:     params.Store,
		events:    params.Events,
		executor:  NewExecutor(params.Logger, params.Store, extractor),
		extractor: extractor,
		slots:     semaphore.NewWeighted(params.Config.RunConfig.MaxConcurrent),
	}
}

func (o *Orchestrator) Run(ctx context.Context, req entity.RunRequest) (resp *entity.RunResult, err error) {
	const op = "Run"
	runID := uuid.NewString()
	logger := o.logger.With(zap.String(logg.Operation, op), zap.String(logg.RunID, runID), zap.String(logg.URL, req.URL))

	ctx, step := tracing.StartSpan(ctx, o.tracer, logger, op,
		attribute.String("url", req.URL),
		attribute.Int("actions", len(req.Actions)))
	started := time.Now()
	defer func() {
		metrics.ObserveRun(kindRun, started, err)
		step.End(err)
	}()

	if err := validateURL(op, "url", req.URL); err != nil {
		return nil, err
	}

	if req.Actions == nil {
		return nil, apperr.InvalidReqError(op, "actions", errors.New("actions is required"))
	}

	if err := validateActions(op, req.Actions); err != nil {
		return nil, err
	}

	settings, err := o.settings(req.Options)
	if err != nil {
		return nil, err
	}

	if err := checkEngineURL(op, settings.Engine, "url", req.URL); err != nil {
		return nil, err
	}

	if err := checkEngineActions(op, settings.Engine, req.Actions); err != nil {
		return nil, err
	}

	err = o.withSession(ctx, runID, settings, func(ctx context.Context, session ports.Session) error {
		if err := o.navigate(ctx, session, req.URL); err != nil {
			return err
		}

		executed, results, err := o.executor.Execute(ctx, session, req.Actions)
		if err != nil {
			return err
		}

		screenshot, err := o.finalScreenshot(ctx, logger, session, kindRun)
		if err != nil {
			return err
		}

		payload := entity.NewOrderedMap[any]()
		payload.Set("actions", req.Actions)
		payload.Set("results", results)
		payload.Set("screenshot", screenshot)

		resultFile, err := o.store.SaveResult(kindRun, req.URL, payload)
		if err != nil {
			return err
		}

		resp = &entity.RunResult{
			Success:         true,
			URL:             req.URL,
			ActionsExecuted: executed,
			Results:         results,
			Screenshot:      screenshot,
			ResultFile:      resultFile,
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Run completed", zap.Int("actions_executed", resp.ActionsExecuted), zap.String(logg.Artifact, resp.ResultFile))
	o.publish(ctx, logger, entity.EventRunCompleted, runID, req.URL, resp)

	return resp, nil
}

func (o *Orchestrator) Map(ctx context.Context, req entity.MapRequest) (resp *entity.MapResult, err error) {
	const op = "Map"
	runID := uuid.NewString()
	logger := o.logger.With(zap.String(logg.Operation, op), zap.String(logg.RunID, runID), zap.String(logg.URL, req.URL))

	ctx, step := tracing.StartSpan(ctx, o.tracer, logger, op,
		attribute.String("url", req.URL),
		attribute.Int("selectors", len(req.Selectors)))
	started := time.Now()
	defer func() {
		metrics.ObserveRun(kindMap, started, err)
		step.End(err)
	}()

	if err := validateURL(op, "url", req.URL); err != nil {
		return nil, err
	}

	if len(req.Selectors) == 0 {
		return nil, apperr.InvalidReqError(op, "selectors", errors.New("selectors must be a non-empty array"))
	}

	settings, err := o.settings(req.Options)
	if err != nil {
		return nil, err
	}

	if err := checkEngineURL(op, settings.Engine, "url", req.URL); err != nil {
		return nil, err
	}

	err = o.withSession(ctx, runID, settings, func(ctx context.Context, session ports.Session) error {
		if err := o.navigate(ctx, session, req.URL); err != nil {
			return err
		}

		mapping := o.extractor.Map(ctx, session, req.Selectors)
		screenshot, err := o.finalScreenshot(ctx, logger, session, kindMap)
		if err != nil {
			return err
		}

		payload := entity.NewOrderedMap[any]()
		payload.Set("selectors", req.Selectors)
		payload.Set("mappingResults", mapping)
		payload.Set("screenshot", screenshot)

		resultFile, err := o.store.SaveResult(kindMap, req.URL, payload)
		if err != nil {
			return err
		}

		resp = &entity.MapResult{
			Success:        true,
			URL:            req.URL,
			MappingResults: mapping,
			Screenshot:     screenshot,
			ResultFile:     resultFile,
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Mapping completed", zap.Int("selectors", resp.MappingResults.Len()), zap.String(logg.Artifact, resp.ResultFile))
	o.publish(ctx, logger, entity.EventMapCompleted, runID, req.URL, resp)

	return resp, nil
}

func (o *Orchestrator) Extract(ctx context.Context, req entity.ExtractRequest) (resp *entity.ExtractResult, err error) {
	const op = "Extract"
	runID := uuid.NewString()
	logger := o.logger.With(zap.String(logg.Operation, op), zap.String(logg.RunID, runID), zap.String(logg.URL, req.URL))

	ctx, step := tracing.StartSpan(ctx, o.tracer, logger, op,
		attribute.String("url", req.URL),
		attribute.Int("extractions", len(req.Extractions)))
	started := time.Now()
	defer func() {
		metrics.ObserveRun(kindExtract, started, err)
		step.End(err)
	}()

	if err := validateURL(op, "url", req.URL); err != nil {
		return nil, err
	}

	if len(req.Extractions) == 0 {
		return nil, apperr.InvalidReqError(op, "extractions", errors.New("extractions must be a non-empty array"))
	}

	extractions := make([]entity.Extraction, len(req.Extractions))

	for i, extraction := range req.Extractions {
		if extraction.Name == "" {
			return nil, apperr.InvalidReqError(op, "extractions.name", errors.New("every extraction needs a name"))
		}

		if err := requireSelector(op, "extractions["+extraction.Name+"]", extraction.Selector); err != nil {
			return nil, err
		}

		extractions[i] = extraction.Normalized()
	}

	settings, err := o.settings(req.Options)
	if err != nil {
		return nil, err
	}

	if err := checkEngineURL(op, settings.Engine, "url", req.URL); err != nil {
		return nil, err
	}

	err = o.withSession(ctx, runID, settings, func(ctx context.Context, session ports.Session) error {
		if err := o.navigate(ctx, session, req.URL); err != nil {
			return err
		}

		extracted := o.extractor.ExtractAll(ctx, session, extractions)
		screenshot, err := o.finalScreenshot(ctx, logger, session, kindExtract)
		if err != nil {
			return err
		}

		payload := entity.NewOrderedMap[any]()
		payload.Set("extractions", extractions)
		payload.Set("extractionResults", extracted)
		payload.Set("screenshot", screenshot)

		resultFile, err := o.store.SaveResult(kindExtract, req.URL, payload)
		if err != nil {
			return err
		}

		resp = &entity.ExtractResult{
			Success:           true,
			URL:               req.URL,
			ExtractionResults: extracted,
			Screenshot:        screenshot,
			ResultFile:        resultFile,
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Extraction completed", zap.Int("extractions", resp.ExtractionResults.Len()), zap.String(logg.Artifact, resp.ResultFile))
	o.publish(ctx, logger, entity.EventExtractCompleted, runID, req.URL, resp)

	return resp, nil
}

// Describe synthesizes selectors for every element matching req.Selector.
// Nothing is persisted.
func (o *Orchestrator) Describe(ctx context.Context, req entity.DescribeRequest) (resp *entity.DescribeResult, err error) {
	const op = "Describe"
	runID := uuid.NewString()
	logger := o.logger.With(zap.String(logg.Operation, op), zap.String(logg.RunID, runID), zap.String(logg.URL, req.URL))

	ctx, step := tracing.StartSpan(ctx, o.tracer, logger, op, attribute.String("url", req.URL))
	started := time.Now()
	defer func() {
		metrics.ObserveRun(kindDescribe, started, err)
		step.End(err)
	}()

	if err := validateURL(op, "url", req.URL); err != nil {
		return nil, err
	}

	if err := requireSelector(op, "request", req.Selector); err != nil {
		return nil, err
	}

	settings, err := o.settings(req.Options)
	if err != nil {
		return nil, err
	}

	if err := checkEngineURL(op, settings.Engine, "url", req.URL); err != nil {
		return nil, err
	}

	err = o.withSession(ctx, runID, settings, func(ctx context.Context, session ports.Session) error {
		if err := o.navigate(ctx, session, req.URL); err != nil {
			return err
		}

		elements, err := session.Describe(ctx, req.Selector)
		if err != nil {
			return err
		}

		resp = &entity.DescribeResult{
			Success:  true,
			URL:      req.URL,
			Elements: elements,
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return resp, nil
}

func (o *Orchestrator) ListArtifacts(kind entity.ArtifactKind) ([]entity.Artifact, error) {
	return o.store.List(kind)
}

// withSession bounds the number of open sessions, opens one for fn and
// closes it whatever fn returns.
func (o *Orchestrator) withSession(ctx context.Context, runID string, settings entity.SessionSettings, fn func(context.Context, ports.Session) error) (err error) {
	const op = "withSession"
	logger := o.logger.With(zap.String(logg.Operation, op), zap.String(logg.RunID, runID))

	if err := o.slots.Acquire(ctx, 1); err != nil {
		return apperr.Wrap(op, apperr.CodeUnavailable, err, map[string]any{
			apperr.MetaReason: "no_session_slot",
			apperr.MetaRunID:  runID,
		})
	}
	defer o.slots.Release(1)

	session, err := o.sessions.Open(ctx, settings)
	if err != nil {
		return err
	}

	defer func() {
		if closeErr := session.Close(context.WithoutCancel(ctx)); closeErr != nil {
			logger.Warn("Failed to close session", zap.Error(closeErr))
		}
	}()

	return fn(ctx, session)
}

func (o *Orchestrator) navigate(ctx context.Context, session ports.Session, url string) error {
	if err := session.Goto(ctx, url); err != nil {
		return apperr.Wrap("navigate", apperr.CodeInternal, err, map[string]any{
			apperr.MetaStage: apperr.StageNavigation,
			apperr.MetaURL:   url,
		})
	}

	return nil
}

// finalScreenshot returns the screenshot URL, or "" when the engine cannot
// take one.
func (o *Orchestrator) finalScreenshot(ctx context.Context, logger *zap.Logger, session ports.Session, name string) (string, error) {
	url, err := o.executor.screenshot(ctx, session, name)
	if err != nil {
		if apperr.HasCode(err, apperr.CodeUnsupported) {
			logger.Warn("Engine cannot take screenshots, skipping final screenshot")

			return "", nil
		}

		return "", err
	}

	return url, nil
}

func (o *Orchestrator) publish(ctx context.Context, logger *zap.Logger, eventType entity.EventType, runID, url string, payload any) {
	event := entity.Event{
		Type:      eventType,
		ID:        runID,
		URL:       url,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}

	if err := o.events.Publish(context.WithoutCancel(ctx), event); err != nil {
		logger.Warn("Failed to publish event", zap.String(logg.Kind, string(eventType)), zap.Error(err))
	}
}

func (o *Orchestrator) settings(opts *entity.SessionOptions) (entity.SessionSettings, error) {
	return resolveSettings(o.config.BrowserConfig, o.store.Dir(entity.ArtifactVideos), opts)
}
