package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"pagepilot/internal/config"
	"pagepilot/internal/entity"
	"pagepilot/internal/staticpage"
	"pagepilot/pkg/apperr"
)

func testConfig() *config.Config {
	return &config.Config{BrowserConfig: &config.BrowserConfig{Install: false}}
}

func TestParseSelectionMessage(t *testing.T) {
	element := map[string]interface{}{
		"tagName":       "button",
		"id":            "go",
		"classes":       "btn primary",
		"text":          "Go",
		"cssSelector":   "#go",
		"xpathSelector": `//*[@id="go"]`,
		"attributes":    map[string]interface{}{"type": "submit"},
	}

	t.Run("map payload", func(t *testing.T) {
		d, ok := parseSelectionMessage(map[string]interface{}{"type": "elementSelected", "element": element})
		require.True(t, ok)
		assert.Equal(t, entity.ElementDescriptor{
			TagName:       "button",
			ID:            "go",
			Classes:       "btn primary",
			Text:          "Go",
			CSSSelector:   "#go",
			XPathSelector: `//*[@id="go"]`,
			Attributes:    map[string]string{"type": "submit"},
		}, d)
	})

	t.Run("json string payload", func(t *testing.T) {
		d, ok := parseSelectionMessage(`{"type":"elementSelected","element":{"tagName":"a","cssSelector":"a.x"}}`)
		require.True(t, ok)
		assert.Equal(t, "a.x", d.CSSSelector)
		assert.NotNil(t, d.Attributes)
	})

	t.Run("other types are ignored", func(t *testing.T) {
		_, ok := parseSelectionMessage(map[string]interface{}{"type": "hover", "element": element})
		assert.False(t, ok)

		_, ok = parseSelectionMessage(42)
		assert.False(t, ok)

		_, ok = parseSelectionMessage("not json")
		assert.False(t, ok)
	})
}

func TestDecodeSnapshot(t *testing.T) {
	snap := decodeSnapshot(map[string]interface{}{
		"tagName":   "li",
		"id":        "",
		"className": "row",
		"text":      " item ",
		"attributes": []interface{}{
			map[string]interface{}{"name": "class", "value": "row"},
			map[string]interface{}{"name": "data-id", "value": "7"},
		},
		"boundingBox": map[string]interface{}{"x": 1.5, "y": 2.0, "width": 100.0, "height": 20.0},
	})

	assert.Equal(t, "LI", snap.TagName)
	assert.Equal(t, " item ", snap.Text)
	require.NotNil(t, snap.BoundingBox)
	assert.Equal(t, entity.BoundingBox{X: 1.5, Y: 2, Width: 100, Height: 20}, *snap.BoundingBox)

	v, ok := snap.Attribute("data-id")
	assert.True(t, ok)
	assert.Equal(t, "7", v)
}

func TestInteractionErrorCodes(t *testing.T) {
	strict := errors.New(`locator.click: Error: strict mode violation: locator("p") resolved to 3 elements`)
	timeout := fmt.Errorf("locator.click: %w", playwright.ErrTimeout)

	assert.Equal(t, apperr.CodeAmbiguous, apperr.CodeOf(interactionError("Click", "p", "click_failed", strict)))
	assert.Equal(t, apperr.CodeTimeout, apperr.CodeOf(interactionError("Click", "p", "click_failed", timeout)))
	assert.Equal(t, apperr.CodeActionFailed, apperr.CodeOf(interactionError("Click", "p", "click_failed", errors.New("detached"))))
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	s := &Session{logger: zap.NewNop(), tracer: otel.Tracer(sessionTracer)}
	ctx := context.Background()

	assert.NoError(t, s.Close(ctx))
	assert.NoError(t, s.Close(ctx))

	err := s.Goto(ctx, "https://example.com")
	assert.Equal(t, apperr.CodeBrowserNotReady, apperr.CodeOf(err))

	err = s.OnElementSelected(ctx, func(entity.ElementDescriptor) {})
	assert.Equal(t, apperr.CodeBrowserNotReady, apperr.CodeOf(err))
}

func TestLauncherOpensStaticWithoutDriver(t *testing.T) {
	l := NewLauncher(Params{Config: testConfig(), Logger: zap.NewNop()})
	ctx := context.Background()

	session, err := l.Open(ctx, entity.SessionSettings{Engine: entity.EngineStatic})
	require.NoError(t, err)

	tracked, ok := session.(*trackedSession)
	require.True(t, ok)
	assert.IsType(t, &staticpage.Session{}, tracked.Session)
	assert.Nil(t, l.playwright)

	assert.NoError(t, session.Close(ctx))
	assert.NoError(t, session.Close(ctx))
	assert.NoError(t, l.Stop(ctx))
}

func TestLauncherRejectsUnknownEngine(t *testing.T) {
	l := NewLauncher(Params{Config: testConfig(), Logger: zap.NewNop()})

	_, err := l.Open(context.Background(), entity.SessionSettings{Engine: "webkit-remote"})
	assert.Equal(t, apperr.CodeInvalidArgument, apperr.CodeOf(err))
}

func TestScriptsCarryProtocolNames(t *testing.T) {
	reporter := reporterScript()

	assert.Contains(t, reporter, bindingName)
	assert.Contains(t, reporter, "elementSelected")
	assert.Contains(t, reporter, "postMessage(msg, '*')")
	assert.Contains(t, reporter, markerClass)
	assert.NotContains(t, reporter, "{{")
	assert.True(t, strings.HasPrefix(strings.TrimSpace(describeScript()), "(elements) =>"))
}

const synthesizerFixture = `<!doctype html>
<html>
<body>
	<header id="main"><h1>Catalog</h1></header>
	<nav>
		<span class="badge">one</span>
		<span class="badge unique-tag pagepilot-highlight">two</span>
	</nav>
	<section>
		<div class="item">A</div>
		<div class="item">B</div>
		<div class="item">C</div>
	</section>
	<ul>
		<li>first</li>
		<li>second</li>
		<li>third</li>
	</ul>
	<article>
		<p>lead</p><p>  body text that is certainly longer than thirty characters  </p>
	</article>
	<div><div><div><div><div><em>deep</em></div></div></div></div></div>
	<form>
		<input name="q" type="search" placeholder="Search" data-track="x" value="go">
	</form>
</body>
</html>`

// openPage launches headless Chromium with the fixture loaded. It skips when
// the playwright driver or browser is not installed.
func openPage(t *testing.T) *Session {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}

	ctx := context.Background()
	l := NewLauncher(Params{Config: testConfig(), Logger: zap.NewNop()})
	t.Cleanup(func() { _ = l.Stop(ctx) })

	session, err := l.Open(ctx, entity.SessionSettings{
		Engine:   entity.EngineBrowser,
		Headless: true,
		Timeout:  10 * time.Second,
		Viewport: entity.Viewport{Width: 1280, Height: 720},
	})
	if apperr.HasCode(err, apperr.CodeBrowserNotReady) {
		t.Skipf("playwright driver not available: %v", err)
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close(ctx) })

	tracked, ok := session.(*trackedSession)
	require.True(t, ok)

	s, ok := tracked.Session.(*Session)
	require.True(t, ok)
	require.NoError(t, s.page.SetContent(synthesizerFixture))

	return s
}

func TestDescribeScriptInBrowser(t *testing.T) {
	s := openPage(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		locator string
		css     string
		xpath   string
	}{
		{"id", "header", "#main", `//*[@id="main"]`},
		{"document unique class", "nav > span.unique-tag", ".unique-tag", "/html[1]/body[1]/nav[1]/span[2]"},
		{"shared class falls back to tag and classes", "section > div:nth-of-type(2)", "div.item", "/html[1]/body[1]/section[1]/div[2]"},
		{"classless sibling gets nth-child", "ul > li:nth-of-type(2)", "body > ul > li:nth-child(2)", "/html[1]/body[1]/ul[1]/li[2]"},
		{"third list item", "ul > li:nth-of-type(3)", "body > ul > li:nth-child(3)", "/html[1]/body[1]/ul[1]/li[3]"},
		{"path stops at three levels", "em", "div > div > em", "/html[1]/body[1]/div[1]/div[1]/div[1]/div[1]/div[1]/em[1]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			descriptors, err := s.Describe(ctx, tt.locator)
			require.NoError(t, err)
			require.Len(t, descriptors, 1)

			assert.Equal(t, tt.css, descriptors[0].CSSSelector)
			assert.Equal(t, tt.xpath, descriptors[0].XPathSelector)
			assert.LessOrEqual(t, len(strings.Split(descriptors[0].CSSSelector, " > ")), 3)
		})
	}

	t.Run("marker class and attributes", func(t *testing.T) {
		descriptors, err := s.Describe(ctx, "nav > span.unique-tag")
		require.NoError(t, err)
		require.Len(t, descriptors, 1)
		assert.Equal(t, "badge unique-tag", descriptors[0].Classes)
		assert.Empty(t, descriptors[0].Attributes)

		descriptors, err = s.Describe(ctx, "input")
		require.NoError(t, err)
		require.Len(t, descriptors, 1)
		assert.Equal(t, map[string]string{
			"name":        "q",
			"type":        "search",
			"placeholder": "Search",
			"value":       "go",
		}, descriptors[0].Attributes)
	})

	t.Run("text is trimmed and truncated", func(t *testing.T) {
		descriptors, err := s.Describe(ctx, "article > p:nth-of-type(2)")
		require.NoError(t, err)
		require.Len(t, descriptors, 1)
		assert.Equal(t, "body text that is certainly lo...", descriptors[0].Text)
	})
}

func TestReporterSendsClickedElement(t *testing.T) {
	s := openPage(t)
	ctx := context.Background()

	selected := make(chan entity.ElementDescriptor, 4)
	require.NoError(t, s.OnElementSelected(ctx, func(d entity.ElementDescriptor) {
		selected <- d
	}))

	for i := 0; i < 2; i++ {
		require.NoError(t, s.page.Click("ul > li:nth-of-type(3)"))

		select {
		case d := <-selected:
			assert.Equal(t, "li", d.TagName)
			assert.Equal(t, "body > ul > li:nth-child(3)", d.CSSSelector)
			assert.Equal(t, "/html[1]/body[1]/ul[1]/li[3]", d.XPathSelector)
			assert.NotContains(t, d.Classes, markerClass)
		case <-time.After(5 * time.Second):
			t.Fatalf("click %d was not reported", i+1)
		}
	}
}
