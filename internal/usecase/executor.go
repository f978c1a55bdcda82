package usecase

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"pagepilot/internal/entity"
	"pagepilot/internal/metrics"
	"pagepilot/internal/ports"
	"pagepilot/pkg/apperr"
	"pagepilot/pkg/logg"
	"pagepilot/pkg/tracing"
)

const (
	executorName   = "Executor"
	executorTracer = "usecase.executor"
)

// Executor runs an action list against one session, strictly in order.
type Executor struct {
	logger    *zap.Logger
	tracer    trace.Tracer
	store     ports.ArtifactStore
	extractor *Extractor
}

func NewExecutor(logger *zap.Logger, store ports.ArtifactStore, extractor *Extractor) *Executor {
	return &Executor{
		logger:    logger.With(zap.String(logg.Layer, executorName)),
		tracer:    otel.Tracer(executorTracer),
		store:     store,
		extractor: extractor,
	}
}

// Execute stops at the first failing action. The returned count is the
// number of actions that completed, unknown ones included.
func (e *Executor) Execute(ctx context.Context, session ports.Session, actions entity.Actions) (executed int, results *entity.ResultBag, err error) {
	const op = "Execute"
	logger := e.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, e.tracer, logger, op, attribute.Int("actions", len(actions)))
	defer func() {
		step.End(err)
	}()

	results = entity.NewOrderedMap[any]()

	for i, action := range actions {
		kind := string(action.Kind())

		if err := ctx.Err(); err != nil {
			return executed, results, wrapAction(i, kind, err)
		}

		step.AddEvent("action", attribute.Int("index", i), attribute.String("kind", kind))

		if err := e.execute(ctx, session, action, results); err != nil {
			metrics.ObserveAction(kind, metrics.StatusFailed)
			logger.Error("Action failed", zap.Int(logg.Index, i), zap.String(logg.Action, kind), zap.Error(err))

			return executed, results, wrapAction(i, kind, err)
		}

		executed++
	}

	return executed, results, nil
}

func (e *Executor) execute(ctx context.Context, session ports.Session, action entity.Action, results *entity.ResultBag) error {
	kind := string(action.Kind())

	switch a := action.(type) {
	case entity.NavigateAction:
		if err := session.Goto(ctx, a.URL); err != nil {
			return err
		}
	case entity.ClickAction:
		if err := session.Click(ctx, a.Selector); err != nil {
			return err
		}
	case entity.FillAction:
		if err := session.Fill(ctx, a.Selector, a.Value); err != nil {
			return err
		}
	case entity.SelectAction:
		if err := session.SelectOption(ctx, a.Selector, a.Value); err != nil {
			return err
		}
	case entity.WaitAction:
		if err := sleep(ctx, time.Duration(a.Milliseconds)*time.Millisecond); err != nil {
			return err
		}
	case entity.WaitForSelectorAction:
		timeout := time.Duration(a.EffectiveTimeout()) * time.Millisecond
		if err := session.WaitForSelector(ctx, a.Selector, a.EffectiveState(), timeout); err != nil {
			return err
		}
	case entity.ScreenshotAction:
		url, err := e.screenshot(ctx, session, a.Name)
		if err != nil {
			return err
		}

		if a.SaveAs != "" {
			results.Set(a.SaveAs, url)
		}
	case entity.ExtractAction:
		value, err := e.extractor.ExtractOne(ctx, session, a.Extraction())
		if err != nil {
			return err
		}

		if a.SaveAs != "" {
			results.Set(a.SaveAs, value)
		}
	case entity.UnknownAction:
		e.skip(kind)

		return nil
	default:
		e.skip(kind)

		return nil
	}

	metrics.ObserveAction(kind, metrics.StatusOK)

	return nil
}

// screenshot captures the page into a new screenshot artifact and returns
// its public URL.
func (e *Executor) screenshot(ctx context.Context, session ports.Session, name string) (string, error) {
	path, url, err := e.store.NewScreenshot(name)
	if err != nil {
		return "", err
	}

	if err := session.Screenshot(ctx, path); err != nil {
		return "", err
	}

	return url, nil
}

func (e *Executor) skip(kind string) {
	e.logger.Warn("Skipping unknown action", zap.String(logg.Action, kind))
	metrics.ObserveAction(kind, metrics.StatusSkip)
}

func wrapAction(index int, kind string, err error) error {
	return apperr.Wrap(fmt.Sprintf("action %d (%s)", index, kind), apperr.CodeInternal, err, map[string]any{
		apperr.MetaIndex:  index,
		apperr.MetaAction: kind,
	})
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
