package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagepilot/internal/entity"
	"pagepilot/pkg/apperr"
)

func TestResolveSettings(t *testing.T) {
	cfg := testConfig().BrowserConfig

	t.Run("defaults", func(t *testing.T) {
		settings, err := resolveSettings(cfg, "/tmp/videos", nil)
		require.NoError(t, err)

		assert.Equal(t, entity.SessionSettings{
			Engine:   entity.EngineBrowser,
			Headless: true,
			Timeout:  30 * time.Second,
			Viewport: entity.Viewport{Width: 1280, Height: 720},
			VideoDir: "/tmp/videos",
		}, settings)
	})

	t.Run("overrides", func(t *testing.T) {
		headless, slowMo, timeout, video := false, 250, 5000, true

		settings, err := resolveSettings(cfg, "", &entity.SessionOptions{
			Headless:    &headless,
			SlowMo:      &slowMo,
			Timeout:     &timeout,
			Viewport:    &entity.Viewport{Width: 800, Height: 600},
			RecordVideo: &video,
			Engine:      entity.EngineStatic,
		})
		require.NoError(t, err)

		assert.False(t, settings.Headless)
		assert.Equal(t, 250*time.Millisecond, settings.SlowMo)
		assert.Equal(t, 5*time.Second, settings.Timeout)
		assert.Equal(t, entity.Viewport{Width: 800, Height: 600}, settings.Viewport)
		assert.True(t, settings.RecordVideo)
		assert.Equal(t, entity.EngineStatic, settings.Engine)
	})

	invalid := map[string]*entity.SessionOptions{
		"options.slowMo":   {SlowMo: ptr(-1)},
		"options.timeout":  {Timeout: ptr(0)},
		"options.viewport": {Viewport: &entity.Viewport{Width: 0, Height: 600}},
		"options.engine":   {Engine: "lynx"},
	}

	for field, opts := range invalid {
		t.Run(field, func(t *testing.T) {
			_, err := resolveSettings(cfg, "", opts)
			require.Error(t, err)

			var appErr *apperr.Error
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, field, appErr.Metadata[apperr.MetaField])
		})
	}
}

func TestValidateURL(t *testing.T) {
	for _, raw := range []string{"https://example.com", "http://localhost:8080/a?b=c", "file:///tmp/page.html"} {
		assert.NoError(t, validateURL("test", "url", raw), raw)
	}

	for _, raw := range []string{"", "   ", "example.com", "ftp://example.com", "://"} {
		assert.Equal(t, apperr.CodeInvalidArgument, apperr.CodeOf(validateURL("test", "url", raw)), raw)
	}
}

func TestCheckEngineURL(t *testing.T) {
	assert.NoError(t, checkEngineURL("test", entity.EngineBrowser, "url", "file:///tmp/page.html"))
	assert.NoError(t, checkEngineURL("test", entity.EngineStatic, "url", "https://example.com"))

	err := checkEngineURL("test", entity.EngineStatic, "url", "file:///tmp/page.html")

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.CodeInvalidArgument, appErr.Code)
	assert.Equal(t, "url", appErr.Metadata[apperr.MetaField])
	assert.Contains(t, err.Error(), "http and https")

	err = validateURL("test", "url", "ftp://example.com")
	assert.Contains(t, err.Error(), "http, https or file")
}

func TestValidateActions(t *testing.T) {
	require.NoError(t, validateActions("test", entity.Actions{
		entity.NavigateAction{URL: "https://example.com/next"},
		entity.WaitForSelectorAction{Selector: "#ready", State: entity.SelectorStateHidden},
		entity.UnknownAction{Type: "scroll"},
	}))

	err := validateActions("test", entity.Actions{
		entity.ClickAction{Selector: "#ok"},
		entity.WaitForSelectorAction{Selector: "#ready", State: "gone"},
	})

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "actions[1].state", appErr.Metadata[apperr.MetaField])

	err = validateActions("test", entity.Actions{entity.NavigateAction{}})
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "actions[0].url", appErr.Metadata[apperr.MetaField])
}

func ptr[T any](v T) *T {
	return &v
}
