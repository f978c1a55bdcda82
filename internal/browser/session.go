package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"pagepilot/internal/entity"
	"pagepilot/pkg/apperr"
	"pagepilot/pkg/logg"
	"pagepilot/pkg/tracing"
)

const (
	sessionName   = "BrowserSession"
	sessionTracer = "browser.session"
)

// Session is one browser, one context and one page owned by a single run.
type Session struct {
	logger  *zap.Logger
	tracer  trace.Tracer
	timeout time.Duration

	browser        playwright.Browser
	browserContext playwright.BrowserContext
	page           playwright.Page

	mu        sync.Mutex
	closed    bool
	handlers  []func(entity.ElementDescriptor)
	reporting bool

	closeOnce sync.Once
	closeErr  error
}

func launchSession(pw *playwright.Playwright, settings entity.SessionSettings, logger *zap.Logger) (*Session, error) {
	const op = "launchSession"

	s := &Session{
		logger:  logger.With(zap.String(logg.Layer, sessionName), zap.String(logg.Engine, string(entity.EngineBrowser))),
		tracer:  otel.Tracer(sessionTracer),
		timeout: settings.Timeout,
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(settings.Headless),
		SlowMo:   playwright.Float(float64(settings.SlowMo.Milliseconds())),
	})
	if err != nil {
		return nil, apperr.Wrap(op, apperr.CodeBrowserNotReady, err, map[string]any{
			apperr.MetaReason: "browser_launch_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}
	s.browser = browser

	contextOptions := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  settings.Viewport.Width,
			Height: settings.Viewport.Height,
		},
		AcceptDownloads: playwright.Bool(true),
	}

	if settings.RecordVideo && settings.VideoDir != "" {
		contextOptions.RecordVideo = &playwright.RecordVideo{Dir: settings.VideoDir}
	}

	browserContext, err := browser.NewContext(contextOptions)
	if err != nil {
		_ = s.Close(context.Background())

		return nil, apperr.Wrap(op, apperr.CodeBrowserNotReady, err, map[string]any{
			apperr.MetaReason: "context_create_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}
	s.browserContext = browserContext

	page, err := browserContext.NewPage()
	if err != nil {
		_ = s.Close(context.Background())

		return nil, apperr.Wrap(op, apperr.CodeBrowserNotReady, err, map[string]any{
			apperr.MetaReason: "page_create_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}
	s.page = page

	if s.timeout > 0 {
		page.SetDefaultTimeout(float64(s.timeout.Milliseconds()))
		page.SetDefaultNavigationTimeout(float64(s.timeout.Milliseconds()))
	}

	return s, nil
}

func (s *Session) Goto(ctx context.Context, url string) (err error) {
	const op = "Goto"
	logger := s.logger.With(zap.String(logg.Operation, op), zap.String(logg.URL, url))

	_, step := tracing.StartSpan(ctx, s.tracer, logger, op, attribute.String("url", url))
	defer func() {
		step.End(err)
	}()

	page, err := s.activePage(op)
	if err != nil {
		return err
	}

	step.AddEvent("navigating to URL")

	_, err = page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
	})
	if err != nil {
		code := apperr.CodeActionFailed
		if errors.Is(err, playwright.ErrTimeout) {
			code = apperr.CodeTimeout
		}

		return apperr.Wrap(op, code, err, map[string]any{
			apperr.MetaReason: "goto_failed",
			apperr.MetaStage:  apperr.StageNavigation,
			apperr.MetaURL:    url,
		})
	}

	step.AddEvent("navigation completed")

	return nil
}

// Click resolves selector strictly: more than one match fails instead of
// clicking the first.
func (s *Session) Click(ctx context.Context, selector string) (err error) {
	const op = "Click"
	logger := s.logger.With(zap.String(logg.Operation, op), zap.String(logg.Selector, selector))

	_, step := tracing.StartSpan(ctx, s.tracer, logger, op, attribute.String("selector", selector))
	defer func() {
		step.End(err)
	}()

	page, err := s.activePage(op)
	if err != nil {
		return err
	}

	if err := page.Locator(selector).Click(); err != nil {
		return interactionError(op, selector, "click_failed", err)
	}

	step.AddEvent("click completed")

	return nil
}

func (s *Session) Fill(ctx context.Context, selector, value string) (err error) {
	const op = "Fill"
	logger := s.logger.With(zap.String(logg.Operation, op), zap.String(logg.Selector, selector))

	_, step := tracing.StartSpan(ctx, s.tracer, logger, op, attribute.String("selector", selector))
	defer func() {
		step.End(err)
	}()

	page, err := s.activePage(op)
	if err != nil {
		return err
	}

	if err := page.Locator(selector).Fill(value); err != nil {
		return interactionError(op, selector, "fill_failed", err)
	}

	return nil
}

func (s *Session) SelectOption(ctx context.Context, selector, value string) (err error) {
	const op = "SelectOption"
	logger := s.logger.With(zap.String(logg.Operation, op), zap.String(logg.Selector, selector))

	_, step := tracing.StartSpan(ctx, s.tracer, logger, op, attribute.String("selector", selector))
	defer func() {
		step.End(err)
	}()

	page, err := s.activePage(op)
	if err != nil {
		return err
	}

	selected, err := page.Locator(selector).SelectOption(playwright.SelectOptionValues{
		ValuesOrLabels: playwright.StringSlice(value),
	})
	if err != nil {
		return interactionError(op, selector, "select_failed", err)
	}

	if len(selected) == 0 {
		return apperr.Wrap(op, apperr.CodeNotFound, fmt.Errorf("no option %q in %s", value, selector), map[string]any{
			apperr.MetaReason:   "option_not_found",
			apperr.MetaStage:    apperr.StageInteraction,
			apperr.MetaSelector: selector,
		})
	}

	return nil
}

func (s *Session) WaitForSelector(ctx context.Context, selector string, state entity.SelectorState, timeout time.Duration) (err error) {
	const op = "WaitForSelector"
	logger := s.logger.With(zap.String(logg.Operation, op), zap.String(logg.Selector, selector))

	_, step := tracing.StartSpan(ctx, s.tracer, logger, op,
		attribute.String("selector", selector),
		attribute.String("state", string(state)))
	defer func() {
		step.End(err)
	}()

	page, err := s.activePage(op)
	if err != nil {
		return err
	}

	_, err = page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		State:   waitState(state),
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		code := apperr.CodeActionFailed
		if errors.Is(err, playwright.ErrTimeout) {
			code = apperr.CodeTimeout
		}

		return apperr.Wrap(op, code, err, map[string]any{
			apperr.MetaReason:   "wait_selector_failed",
			apperr.MetaStage:    apperr.StageInteraction,
			apperr.MetaSelector: selector,
		})
	}

	return nil
}

func (s *Session) Screenshot(ctx context.Context, path string) (err error) {
	const op = "Screenshot"
	logger := s.logger.With(zap.String(logg.Operation, op), zap.String(logg.Artifact, path))

	_, step := tracing.StartSpan(ctx, s.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	page, err := s.activePage(op)
	if err != nil {
		return err
	}

	_, err = page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
		Type:     playwright.ScreenshotTypePng,
	})
	if err != nil {
		return apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaReason: "screenshot_failed",
			apperr.MetaStage:  apperr.StageScreenshot,
		})
	}

	return nil
}

func (s *Session) Query(ctx context.Context, selector string) (snapshots []entity.ElementSnapshot, err error) {
	const op = "Query"
	logger := s.logger.With(zap.String(logg.Operation, op), zap.String(logg.Selector, selector))

	_, step := tracing.StartSpan(ctx, s.tracer, logger, op, attribute.String("selector", selector))
	defer func() {
		step.End(err)
	}()

	page, err := s.activePage(op)
	if err != nil {
		return nil, err
	}

	result, err := page.Locator(selector).EvaluateAll(snapshotScript())
	if err != nil {
		return nil, apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaReason:   "evaluate_failed",
			apperr.MetaStage:    apperr.StageExtraction,
			apperr.MetaSelector: selector,
		})
	}

	items, ok := result.([]interface{})
	if !ok {
		return nil, apperr.WrapErrorWithReason(op, apperr.CodeInternal, "unexpected_result_type")
	}

	snapshots = make([]entity.ElementSnapshot, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]interface{}); ok {
			snapshots = append(snapshots, decodeSnapshot(m))
		}
	}

	return snapshots, nil
}

func (s *Session) Describe(ctx context.Context, selector string) (descriptors []entity.ElementDescriptor, err error) {
	const op = "Describe"
	logger := s.logger.With(zap.String(logg.Operation, op), zap.String(logg.Selector, selector))

	_, step := tracing.StartSpan(ctx, s.tracer, logger, op, attribute.String("selector", selector))
	defer func() {
		step.End(err)
	}()

	page, err := s.activePage(op)
	if err != nil {
		return nil, err
	}

	result, err := page.Locator(selector).EvaluateAll(describeScript())
	if err != nil {
		return nil, apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaReason:   "evaluate_failed",
			apperr.MetaStage:    apperr.StageExtraction,
			apperr.MetaSelector: selector,
		})
	}

	items, ok := result.([]interface{})
	if !ok {
		return nil, apperr.WrapErrorWithReason(op, apperr.CodeInternal, "unexpected_result_type")
	}

	descriptors = make([]entity.ElementDescriptor, 0, len(items))
	for _, item := range items {
		if d, ok := decodeDescriptor(item); ok {
			descriptors = append(descriptors, d)
		}
	}

	return descriptors, nil
}

// OnElementSelected registers handler for descriptors sent by the in-page
// reporter. The binding and the reporter are installed on first use; the
// reporter is an init script, so every later navigation gets it too.
func (s *Session) OnElementSelected(ctx context.Context, handler func(entity.ElementDescriptor)) (err error) {
	const op = "OnElementSelected"
	logger := s.logger.With(zap.String(logg.Operation, op))

	_, step := tracing.StartSpan(ctx, s.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.page == nil {
		return closedError(op)
	}

	s.handlers = append(s.handlers, handler)

	if s.reporting {
		return nil
	}

	err = s.browserContext.ExposeBinding(bindingName, func(_ *playwright.BindingSource, args ...interface{}) interface{} {
		if len(args) == 0 {
			return nil
		}

		descriptor, ok := parseSelectionMessage(args[0])
		if !ok {
			s.logger.Debug("Ignoring reporter message", zap.Any("message", args[0]))

			return nil
		}

		s.dispatch(descriptor)

		return nil
	})
	if err != nil {
		return apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaReason: "expose_binding_failed",
			apperr.MetaStage:  apperr.StageSelection,
		})
	}

	script := reporterScript()

	if err := s.browserContext.AddInitScript(playwright.Script{Content: &script}); err != nil {
		return apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaReason: "init_script_failed",
			apperr.MetaStage:  apperr.StageSelection,
		})
	}

	if _, err := s.page.Evaluate(script); err != nil {
		logger.Warn("Reporter not installed on current document, it will be on next navigation", zap.Error(err))
	}

	s.reporting = true
	logger.Info("Element reporter installed")

	return nil
}

// Close releases the page, context and browser once. It is safe on a
// session whose launch failed part way.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		const op = "Close"
		logger := s.logger.With(zap.String(logg.Operation, op))

		_, step := tracing.StartSpan(ctx, s.tracer, logger, op)

		s.mu.Lock()
		s.closed = true
		s.handlers = nil
		s.mu.Unlock()

		if s.browserContext != nil {
			if err := s.browserContext.Close(); err != nil {
				logger.Warn("Failed to close context", zap.Error(err))
			}
		}

		if s.browser != nil {
			if err := s.browser.Close(); err != nil {
				s.closeErr = apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
					apperr.MetaReason: "browser_close_failed",
					apperr.MetaStage:  apperr.StageBrowser,
				})
			}
		}

		step.End(s.closeErr)
		logger.Debug("Browser session closed")
	})

	return s.closeErr
}

func (s *Session) activePage(op string) (playwright.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.page == nil || s.page.IsClosed() {
		return nil, closedError(op)
	}

	return s.page, nil
}

func (s *Session) dispatch(descriptor entity.ElementDescriptor) {
	s.mu.Lock()
	handlers := append([]func(entity.ElementDescriptor){}, s.handlers...)
	s.mu.Unlock()

	for _, h := range handlers {
		h(descriptor)
	}
}

func waitState(state entity.SelectorState) *playwright.WaitForSelectorState {
	switch state {
	case entity.SelectorStateAttached:
		return playwright.WaitForSelectorStateAttached
	case entity.SelectorStateHidden:
		return playwright.WaitForSelectorStateHidden
	case entity.SelectorStateDetached:
		return playwright.WaitForSelectorStateDetached
	default:
		return playwright.WaitForSelectorStateVisible
	}
}

// parseSelectionMessage accepts the reporter payload as decoded by the
// driver and keeps only elementSelected messages.
func parseSelectionMessage(raw interface{}) (entity.ElementDescriptor, bool) {
	var msg entity.SelectionMessage

	switch v := raw.(type) {
	case string:
		if err := json.Unmarshal([]byte(v), &msg); err != nil {
			return entity.ElementDescriptor{}, false
		}
	case map[string]interface{}:
		data, err := json.Marshal(v)
		if err != nil {
			return entity.ElementDescriptor{}, false
		}

		if err := json.Unmarshal(data, &msg); err != nil {
			return entity.ElementDescriptor{}, false
		}
	default:
		return entity.ElementDescriptor{}, false
	}

	if msg.Type != entity.MessageElementSelected {
		return entity.ElementDescriptor{}, false
	}

	if msg.Element.Attributes == nil {
		msg.Element.Attributes = map[string]string{}
	}

	return msg.Element, true
}

func decodeDescriptor(item interface{}) (entity.ElementDescriptor, bool) {
	m, ok := item.(map[string]interface{})
	if !ok {
		return entity.ElementDescriptor{}, false
	}

	d := entity.ElementDescriptor{
		TagName:       getString(m, "tagName"),
		ID:            getString(m, "id"),
		Classes:       getString(m, "classes"),
		Text:          getString(m, "text"),
		CSSSelector:   getString(m, "cssSelector"),
		XPathSelector: getString(m, "xpathSelector"),
		Attributes:    make(map[string]string),
	}

	if attrs, ok := m["attributes"].(map[string]interface{}); ok {
		for k, v := range attrs {
			if str, ok := v.(string); ok {
				d.Attributes[k] = str
			}
		}
	}

	return d, true
}

func decodeSnapshot(m map[string]interface{}) entity.ElementSnapshot {
	snap := entity.ElementSnapshot{
		TagName:   strings.ToUpper(getString(m, "tagName")),
		ID:        getString(m, "id"),
		ClassName: getString(m, "className"),
		Text:      getString(m, "text"),
		InnerHTML: getString(m, "innerHTML"),
		OuterHTML: getString(m, "outerHTML"),
	}

	if attrs, ok := m["attributes"].([]interface{}); ok {
		for _, a := range attrs {
			if am, ok := a.(map[string]interface{}); ok {
				snap.Attributes = append(snap.Attributes, entity.Attribute{
					Name:  getString(am, "name"),
					Value: getString(am, "value"),
				})
			}
		}
	}

	if box, ok := m["boundingBox"].(map[string]interface{}); ok {
		snap.BoundingBox = &entity.BoundingBox{
			X:      getFloat(box, "x"),
			Y:      getFloat(box, "y"),
			Width:  getFloat(box, "width"),
			Height: getFloat(box, "height"),
		}
	}

	return snap
}

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}

	return ""
}

func getFloat(m map[string]interface{}, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}
