package usecase

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"pagepilot/internal/entity"
	"pagepilot/internal/ports"
	"pagepilot/internal/selector"
	"pagepilot/pkg/apperr"
	"pagepilot/pkg/logg"
	"pagepilot/pkg/tracing"
)

const (
	extractorName   = "Extractor"
	extractorTracer = "usecase.extractor"
)

// Outcome is the result of one extraction or mapping item. Exactly one of
// Value and Err is meaningful.
type Outcome struct {
	Value any
	Err   error
}

type Extractor struct {
	logger *zap.Logger
	tracer trace.Tracer
}

func NewExtractor(logger *zap.Logger) *Extractor {
	return &Extractor{
		logger: logger.With(zap.String(logg.Layer, extractorName)),
		tracer: otel.Tracer(extractorTracer),
	}
}

// ExtractOne reads one attribute from the elements matching the selector.
// Without Multiple the selector must match exactly one element.
func (x *Extractor) ExtractOne(ctx context.Context, session ports.Session, extraction entity.Extraction) (value any, err error) {
	const op = "ExtractOne"
	extraction = extraction.Normalized()
	logger := x.logger.With(zap.String(logg.Operation, op), zap.String(logg.Selector, extraction.Selector))

	ctx, step := tracing.StartSpan(ctx, x.tracer, logger, op,
		attribute.String("selector", extraction.Selector),
		attribute.String("attribute", extraction.Attribute),
		attribute.Bool("multiple", extraction.Multiple))
	defer func() {
		step.End(err)
	}()

	snapshots, err := session.Query(ctx, extraction.Selector)
	if err != nil {
		return nil, err
	}

	if extraction.Multiple {
		values := make([]any, 0, len(snapshots))
		for _, snap := range snapshots {
			values = append(values, readAttribute(snap, extraction.Attribute))
		}

		return values, nil
	}

	switch len(snapshots) {
	case 0:
		return nil, apperr.Wrap(op, apperr.CodeNotFound, fmt.Errorf("no element matches %q", extraction.Selector), map[string]any{
			apperr.MetaReason:   "element_not_found",
			apperr.MetaStage:    apperr.StageExtraction,
			apperr.MetaSelector: extraction.Selector,
		})
	case 1:
		return readAttribute(snapshots[0], extraction.Attribute), nil
	default:
		return nil, apperr.Wrap(op, apperr.CodeAmbiguous, fmt.Errorf("selector %q matches %d elements", extraction.Selector, len(snapshots)), map[string]any{
			apperr.MetaReason:   "ambiguous_selector",
			apperr.MetaStage:    apperr.StageExtraction,
			apperr.MetaSelector: extraction.Selector,
		})
	}
}

// ExtractAll runs every extraction independently. A failing item is stored
// as an ExtractionError under its name and the rest still run.
func (x *Extractor) ExtractAll(ctx context.Context, session ports.Session, extractions []entity.Extraction) *entity.OrderedMap[any] {
	const op = "ExtractAll"
	logger := x.logger.With(zap.String(logg.Operation, op))

	outcomes := entity.NewOrderedMap[Outcome]()

	for _, extraction := range extractions {
		value, err := x.ExtractOne(ctx, session, extraction)
		outcomes.Set(extractionKey(extraction), Outcome{Value: value, Err: err})
	}

	results := entity.NewOrderedMap[any]()

	for _, key := range outcomes.Keys() {
		outcome, _ := outcomes.Get(key)
		if outcome.Err != nil {
			logger.Warn("Extraction failed", zap.String("name", key), zap.Error(outcome.Err))
			results.Set(key, entity.ExtractionError{Error: outcome.Err.Error()})

			continue
		}

		results.Set(key, outcome.Value)
	}

	return results
}

// Map counts and summarizes the matches of every selector. Failures become
// per-selector error entries.
func (x *Extractor) Map(ctx context.Context, session ports.Session, selectors []string) *entity.OrderedMap[entity.MappingResult] {
	const op = "Map"
	logger := x.logger.With(zap.String(logg.Operation, op))

	results := entity.NewOrderedMap[entity.MappingResult]()

	for _, sel := range selectors {
		snapshots, err := session.Query(ctx, sel)
		if err != nil {
			logger.Warn("Mapping failed", zap.String(logg.Selector, sel), zap.Error(err))
			results.Set(sel, entity.MappingResult{
				Error:    err.Error(),
				Elements: []entity.ElementSummary{},
			})

			continue
		}

		results.Set(sel, summarize(snapshots))
	}

	return results
}

func summarize(snapshots []entity.ElementSnapshot) entity.MappingResult {
	limit := len(snapshots)
	if limit > entity.MappingSampleSize {
		limit = entity.MappingSampleSize
	}

	elements := make([]entity.ElementSummary, 0, limit)

	for _, snap := range snapshots[:limit] {
		attrs := snap.Attributes
		if attrs == nil {
			attrs = []entity.Attribute{}
		}

		elements = append(elements, entity.ElementSummary{
			TagName:     snap.TagName,
			ID:          snap.ID,
			ClassName:   snap.ClassName,
			Text:        selector.Truncate(strings.TrimSpace(snap.Text), entity.SummaryTextLimit),
			BoundingBox: snap.BoundingBox,
			Attributes:  attrs,
		})
	}

	return entity.MappingResult{
		Count:    len(snapshots),
		Elements: elements,
		HasMore:  len(snapshots) > entity.MappingSampleSize,
	}
}

func readAttribute(snap entity.ElementSnapshot, attr string) any {
	switch attr {
	case "textContent":
		return strings.TrimSpace(snap.Text)
	case "innerHTML":
		return snap.InnerHTML
	case "outerHTML":
		return snap.OuterHTML
	default:
		if v, ok := snap.Attribute(attr); ok {
			return v
		}

		return nil
	}
}

func extractionKey(e entity.Extraction) string {
	if e.Name != "" {
		return e.Name
	}

	return e.Selector
}
