// Package staticpage implements a session over plain HTTP. Pages are fetched
// and parsed without running scripts; interactions mutate the parsed DOM and
// links and GET forms are followed with new requests.
package staticpage

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"pagepilot/internal/entity"
	"pagepilot/internal/selector"
	"pagepilot/pkg/apperr"
	"pagepilot/pkg/logg"
	"pagepilot/pkg/tracing"
)

const (
	sessionName   = "StaticSession"
	sessionTracer = "staticpage.session"
	userAgent     = "pagepilot/1.0 (+static)"
)

type Session struct {
	client  *http.Client
	logger  *zap.Logger
	tracer  trace.Tracer
	timeout time.Duration

	mu      sync.Mutex
	current *url.URL
	doc     *html.Node
	closed  bool

	closeOnce sync.Once
}

// New returns a session with no page loaded. A nil client uses
// http.DefaultClient.
func New(client *http.Client, settings entity.SessionSettings, logger *zap.Logger) *Session {
	if client == nil {
		client = http.DefaultClient
	}

	return &Session{
		client:  client,
		logger:  logger.With(zap.String(logg.Layer, sessionName), zap.String(logg.Engine, string(entity.EngineStatic))),
		tracer:  otel.Tracer(sessionTracer),
		timeout: settings.Timeout,
	}
}

func (s *Session) Goto(ctx context.Context, rawURL string) (err error) {
	const op = "Goto"
	logger := s.logger.With(zap.String(logg.Operation, op), zap.String(logg.URL, rawURL))

	ctx, step := tracing.StartSpan(ctx, s.tracer, logger, op, attribute.String("url", rawURL))
	defer func() {
		step.End(err)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return closedError(op)
	}

	target, err := s.resolveURL(rawURL)
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInvalidArgument, err, map[string]any{
			apperr.MetaReason: "invalid_url",
			apperr.MetaStage:  apperr.StageNavigation,
			apperr.MetaURL:    rawURL,
		})
	}

	return s.load(ctx, target)
}

// load fetches target and replaces the current document. Callers hold mu.
func (s *Session) load(ctx context.Context, target *url.URL) error {
	const op = "load"

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInvalidArgument, err, map[string]any{
			apperr.MetaReason: "build_request_failed",
			apperr.MetaStage:  apperr.StageNavigation,
			apperr.MetaURL:    target.String(),
		})
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.client.Do(req)
	if err != nil {
		code := apperr.CodeActionFailed
		if ctx.Err() == context.DeadlineExceeded {
			code = apperr.CodeTimeout
		}

		return apperr.Wrap(op, code, err, map[string]any{
			apperr.MetaReason: "goto_failed",
			apperr.MetaStage:  apperr.StageNavigation,
			apperr.MetaURL:    target.String(),
		})
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return apperr.Wrap(op, apperr.CodeActionFailed, fmt.Errorf("GET %s: %s", target, resp.Status), map[string]any{
			apperr.MetaReason: "bad_status",
			apperr.MetaStage:  apperr.StageNavigation,
			apperr.MetaURL:    target.String(),
		})
	}

	doc, err := htmlquery.Parse(resp.Body)
	if err != nil {
		return apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaReason: "parse_failed",
			apperr.MetaStage:  apperr.StageNavigation,
			apperr.MetaURL:    target.String(),
		})
	}

	s.current = resp.Request.URL
	s.doc = doc

	s.logger.Info("Page loaded", zap.String(logg.URL, s.current.String()), zap.Int("status", resp.StatusCode))

	return nil
}

// Click follows links and submits GET forms. Other elements have no
// behavior without scripts and fail as unsupported.
func (s *Session) Click(ctx context.Context, sel string) (err error) {
	const op = "Click"
	logger := s.logger.With(zap.String(logg.Operation, op), zap.String(logg.Selector, sel))

	ctx, step := tracing.StartSpan(ctx, s.tracer, logger, op, attribute.String("selector", sel))
	defer func() {
		step.End(err)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	node, err := s.resolveOne(op, sel)
	if err != nil {
		return err
	}

	switch {
	case node.Data == "a" && selector.Attr(node, "href") != "":
		target, err := s.resolveURL(selector.Attr(node, "href"))
		if err != nil {
			return apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
				apperr.MetaReason:   "invalid_href",
				apperr.MetaStage:    apperr.StageInteraction,
				apperr.MetaSelector: sel,
			})
		}

		return s.load(ctx, target)
	case isSubmitControl(node):
		form := closest(node, "form")
		if form == nil {
			return nil
		}

		target, err := s.formTarget(form, node)
		if err != nil {
			return apperr.Wrap(op, apperr.CodeUnsupported, err, map[string]any{
				apperr.MetaReason:   "form_not_submittable",
				apperr.MetaStage:    apperr.StageInteraction,
				apperr.MetaSelector: sel,
				apperr.MetaEngine:   string(entity.EngineStatic),
			})
		}

		return s.load(ctx, target)
	default:
		return apperr.UnsupportedError(op+" on <"+node.Data+">", string(entity.EngineStatic))
	}
}

func (s *Session) Fill(ctx context.Context, sel, value string) (err error) {
	const op = "Fill"
	logger := s.logger.With(zap.String(logg.Operation, op), zap.String(logg.Selector, sel))

	_, step := tracing.StartSpan(ctx, s.tracer, logger, op, attribute.String("selector", sel))
	defer func() {
		step.End(err)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	node, err := s.resolveOne(op, sel)
	if err != nil {
		return err
	}

	switch node.Data {
	case "input":
		setAttr(node, "value", value)
	case "textarea":
		for c := node.FirstChild; c != nil; c = node.FirstChild {
			node.RemoveChild(c)
		}

		node.AppendChild(&html.Node{Type: html.TextNode, Data: value})
	default:
		return apperr.Wrap(op, apperr.CodeActionFailed, fmt.Errorf("element <%s> is not an input or textarea", node.Data), map[string]any{
			apperr.MetaReason:   "not_fillable",
			apperr.MetaStage:    apperr.StageInteraction,
			apperr.MetaSelector: sel,
		})
	}

	return nil
}

// SelectOption marks the option whose value or label equals value as the
// only selected option of the control.
func (s *Session) SelectOption(ctx context.Context, sel, value string) (err error) {
	const op = "SelectOption"
	logger := s.logger.With(zap.String(logg.Operation, op), zap.String(logg.Selector, sel))

	_, step := tracing.StartSpan(ctx, s.tracer, logger, op, attribute.String("selector", sel))
	defer func() {
		step.End(err)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	node, err := s.resolveOne(op, sel)
	if err != nil {
		return err
	}

	if node.Data != "select" {
		return apperr.Wrap(op, apperr.CodeActionFailed, fmt.Errorf("element <%s> is not a select", node.Data), map[string]any{
			apperr.MetaReason:   "not_selectable",
			apperr.MetaStage:    apperr.StageInteraction,
			apperr.MetaSelector: sel,
		})
	}

	options := htmlquery.Find(node, ".//option")

	var chosen *html.Node
	for _, option := range options {
		if optionValue(option) == value || strings.TrimSpace(selector.TextContent(option)) == value {
			chosen = option

			break
		}
	}

	if chosen == nil {
		return apperr.Wrap(op, apperr.CodeNotFound, fmt.Errorf("no option %q in %s", value, sel), map[string]any{
			apperr.MetaReason:   "option_not_found",
			apperr.MetaStage:    apperr.StageInteraction,
			apperr.MetaSelector: sel,
		})
	}

	for _, option := range options {
		removeAttr(option, "selected")
	}

	setAttr(chosen, "selected", "selected")

	return nil
}

// WaitForSelector checks the condition once against the loaded document.
// A static page never changes by itself, so an unmet condition fails as a
// timeout right away. Visibility cannot be computed and is treated as
// presence.
func (s *Session) WaitForSelector(ctx context.Context, sel string, state entity.SelectorState, _ time.Duration) (err error) {
	const op = "WaitForSelector"
	logger := s.logger.With(zap.String(logg.Operation, op), zap.String(logg.Selector, sel))

	_, step := tracing.StartSpan(ctx, s.tracer, logger, op, attribute.String("selector", sel), attribute.String("state", string(state)))
	defer func() {
		step.End(err)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	nodes, err := s.match(op, sel)
	if err != nil {
		return err
	}

	present := len(nodes) > 0

	var met bool

	switch state {
	case entity.SelectorStateHidden, entity.SelectorStateDetached:
		met = !present
	default:
		met = present
	}

	if !met {
		return apperr.Wrap(op, apperr.CodeTimeout, fmt.Errorf("selector %q never reached state %q", sel, state), map[string]any{
			apperr.MetaReason:   "static_condition_unmet",
			apperr.MetaSelector: sel,
			apperr.MetaEngine:   string(entity.EngineStatic),
		})
	}

	return nil
}

func (s *Session) Screenshot(context.Context, string) error {
	return apperr.UnsupportedError("Screenshot", string(entity.EngineStatic))
}

func (s *Session) Query(_ context.Context, sel string) ([]entity.ElementSnapshot, error) {
	const op = "Query"

	s.mu.Lock()
	defer s.mu.Unlock()

	nodes, err := s.match(op, sel)
	if err != nil {
		return nil, err
	}

	snapshots := make([]entity.ElementSnapshot, 0, len(nodes))
	for _, n := range nodes {
		snapshots = append(snapshots, snapshot(n))
	}

	return snapshots, nil
}

func (s *Session) Describe(_ context.Context, sel string) ([]entity.ElementDescriptor, error) {
	const op = "Describe"

	s.mu.Lock()
	defer s.mu.Unlock()

	nodes, err := s.match(op, sel)
	if err != nil {
		return nil, err
	}

	descriptors := make([]entity.ElementDescriptor, 0, len(nodes))
	for _, n := range nodes {
		descriptors = append(descriptors, selector.Describe(n))
	}

	return descriptors, nil
}

func (s *Session) OnElementSelected(context.Context, func(entity.ElementDescriptor)) error {
	return apperr.UnsupportedError("OnElementSelected", string(entity.EngineStatic))
}

func (s *Session) Close(context.Context) error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.closed = true
		s.doc = nil
		s.logger.Debug("Session closed")
	})

	return nil
}

func (s *Session) ready(op string) error {
	if s.closed {
		return closedError(op)
	}

	if s.doc == nil {
		return apperr.Wrap(op, apperr.CodeBrowserNotReady, fmt.Errorf("no page loaded"), map[string]any{
			apperr.MetaReason: "no_page_loaded",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	return nil
}

// match evaluates sel as XPath when it starts with "/", "(" or "xpath=",
// otherwise as CSS. Callers hold mu.
func (s *Session) match(op, sel string) ([]*html.Node, error) {
	if err := s.ready(op); err != nil {
		return nil, err
	}

	if expr, ok := xpathExpr(sel); ok {
		nodes, err := htmlquery.QueryAll(s.doc, expr)
		if err != nil {
			return nil, invalidSelector(op, sel, err)
		}

		return elementsOnly(nodes), nil
	}

	compiled, err := cascadia.Compile(sel)
	if err != nil {
		return nil, invalidSelector(op, sel, err)
	}

	return goquery.NewDocumentFromNode(s.doc).FindMatcher(compiled).Nodes, nil
}

func (s *Session) resolveOne(op, sel string) (*html.Node, error) {
	nodes, err := s.match(op, sel)
	if err != nil {
		return nil, err
	}

	switch len(nodes) {
	case 0:
		return nil, apperr.Wrap(op, apperr.CodeNotFound, fmt.Errorf("no element matches %q", sel), map[string]any{
			apperr.MetaReason:   "element_not_found",
			apperr.MetaStage:    apperr.StageInteraction,
			apperr.MetaSelector: sel,
		})
	case 1:
		return nodes[0], nil
	default:
		return nil, apperr.Wrap(op, apperr.CodeAmbiguous, fmt.Errorf("selector %q matches %d elements", sel, len(nodes)), map[string]any{
			apperr.MetaReason:   "ambiguous_selector",
			apperr.MetaStage:    apperr.StageInteraction,
			apperr.MetaSelector: sel,
		})
	}
}

func (s *Session) resolveURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}

	if s.current != nil {
		u = s.current.ResolveReference(u)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported url %q", raw)
	}

	return u, nil
}

// formTarget builds the URL a GET form submits to, including the name and
// value of the clicked submitter.
func (s *Session) formTarget(form, submitter *html.Node) (*url.URL, error) {
	method := strings.ToLower(selector.Attr(form, "method"))
	if method != "" && method != "get" {
		return nil, fmt.Errorf("form method %q needs a browser", method)
	}

	action := selector.Attr(form, "action")
	if action == "" {
		action = s.current.String()
	}

	target, err := s.resolveURL(action)
	if err != nil {
		return nil, err
	}

	values := url.Values{}

	for _, field := range htmlquery.Find(form, ".//input|.//textarea|.//select") {
		name := selector.Attr(field, "name")
		if name == "" || hasAttr(field, "disabled") {
			continue
		}

		switch field.Data {
		case "textarea":
			values.Add(name, selector.TextContent(field))
		case "select":
			if v, ok := selectedValue(field); ok {
				values.Add(name, v)
			}
		default:
			switch strings.ToLower(selector.Attr(field, "type")) {
			case "submit", "button", "reset", "image", "file":
				continue
			case "checkbox", "radio":
				if !hasAttr(field, "checked") {
					continue
				}

				v := selector.Attr(field, "value")
				if v == "" {
					v = "on"
				}

				values.Add(name, v)
			default:
				values.Add(name, selector.Attr(field, "value"))
			}
		}
	}

	if name := selector.Attr(submitter, "name"); name != "" {
		values.Add(name, selector.Attr(submitter, "value"))
	}

	target.RawQuery = values.Encode()

	return target, nil
}

func snapshot(n *html.Node) entity.ElementSnapshot {
	attrs := make([]entity.Attribute, 0, len(n.Attr))
	for _, a := range n.Attr {
		attrs = append(attrs, entity.Attribute{Name: a.Key, Value: a.Val})
	}

	var inner bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&inner, c)
	}

	var outer bytes.Buffer
	_ = html.Render(&outer, n)

	return entity.ElementSnapshot{
		TagName:    strings.ToUpper(n.Data),
		ID:         selector.Attr(n, "id"),
		ClassName:  selector.Attr(n, "class"),
		Text:       selector.TextContent(n),
		InnerHTML:  inner.String(),
		OuterHTML:  outer.String(),
		Attributes: attrs,
	}
}

func xpathExpr(sel string) (string, bool) {
	switch {
	case strings.HasPrefix(sel, "xpath="):
		return strings.TrimPrefix(sel, "xpath="), true
	case strings.HasPrefix(sel, "/"), strings.HasPrefix(sel, "("):
		return sel, true
	default:
		return "", false
	}
}

func elementsOnly(nodes []*html.Node) []*html.Node {
	out := nodes[:0]
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			out = append(out, n)
		}
	}

	return out
}

func isSubmitControl(n *html.Node) bool {
	kind := strings.ToLower(selector.Attr(n, "type"))

	switch n.Data {
	case "button":
		return kind == "" || kind == "submit"
	case "input":
		return kind == "submit" || kind == "image"
	default:
		return false
	}
}

func closest(n *html.Node, tag string) *html.Node {
	for cur := n.Parent; cur != nil; cur = cur.Parent {
		if cur.Type == html.ElementNode && cur.Data == tag {
			return cur
		}
	}

	return nil
}

func optionValue(option *html.Node) string {
	if v, ok := attrValue(option, "value"); ok {
		return v
	}

	return strings.TrimSpace(selector.TextContent(option))
}

func selectedValue(sel *html.Node) (string, bool) {
	options := htmlquery.Find(sel, ".//option")
	if len(options) == 0 {
		return "", false
	}

	for _, option := range options {
		if hasAttr(option, "selected") {
			return optionValue(option), true
		}
	}

	return optionValue(options[0]), true
}

func attrValue(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}

	return "", false
}

func hasAttr(n *html.Node, name string) bool {
	_, ok := attrValue(n, name)

	return ok
}

func setAttr(n *html.Node, name, value string) {
	for i := range n.Attr {
		if n.Attr[i].Key == name {
			n.Attr[i].Val = value

			return
		}
	}

	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}

func removeAttr(n *html.Node, name string) {
	attrs := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Key != name {
			attrs = append(attrs, a)
		}
	}

	n.Attr = attrs
}

func invalidSelector(op, sel string, err error) error {
	return apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
		apperr.MetaReason:   "invalid_selector",
		apperr.MetaStage:    apperr.StageInteraction,
		apperr.MetaSelector: sel,
	})
}

func closedError(op string) error {
	return apperr.Wrap(op, apperr.CodeBrowserNotReady, fmt.Errorf("session is closed"), map[string]any{
		apperr.MetaReason: "session_closed",
		apperr.MetaStage:  apperr.StageBrowser,
	})
}
