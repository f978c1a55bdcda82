package script

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagepilot/internal/entity"
	"pagepilot/pkg/apperr"
)

func writeScript(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestLoad_YAMLRun(t *testing.T) {
	t.Setenv("PAGEPILOT_TEST_QUERY", "gophers")

	path := writeScript(t, "search.yaml", `
url: https://example.com
options:
  headless: false
  viewport: {width: 800, height: 600}
actions:
  - type: fill
    selector: "#q"
    value: ${PAGEPILOT_TEST_QUERY}
  - type: click
    selector: button[type=submit]
  - type: waitForSelector
    selector: .results
    state: visible
  - type: hover
    selector: .menu
  - type: extract
    selector: .results li
    multiple: true
    saveAs: hits
`)

	s, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, KindRun, s.Kind)
	require.NotNil(t, s.Run)

	assert.Equal(t, "https://example.com", s.Run.URL)
	require.NotNil(t, s.Run.Options)
	require.NotNil(t, s.Run.Options.Headless)
	assert.False(t, *s.Run.Options.Headless)
	assert.Equal(t, &entity.Viewport{Width: 800, Height: 600}, s.Run.Options.Viewport)

	require.Len(t, s.Run.Actions, 5)
	assert.Equal(t, entity.FillAction{Selector: "#q", Value: "gophers"}, s.Run.Actions[0])
	assert.Equal(t, entity.ClickAction{Selector: "button[type=submit]"}, s.Run.Actions[1])
	assert.Equal(t, entity.ActionKind("hover"), s.Run.Actions[3].Kind())
	assert.IsType(t, entity.UnknownAction{}, s.Run.Actions[3])
	assert.Equal(t, entity.ExtractAction{Selector: ".results li", Multiple: true, SaveAs: "hits"}, s.Run.Actions[4])
}

func TestLoad_JSONExtract(t *testing.T) {
	path := writeScript(t, "extract.json", `{
		"kind": "extract",
		"url": "https://example.com/post",
		"extractions": [{"name": "title", "selector": "h1"}]
	}`)

	s, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, KindExtract, s.Kind)
	assert.Nil(t, s.Run)
	assert.Equal(t, []entity.Extraction{{Name: "title", Selector: "h1"}}, s.Extract.Extractions)
}

func TestLoad_YAMLMap(t *testing.T) {
	path := writeScript(t, "map.yml", "kind: map\nurl: https://example.com\nselectors: [a, p]\n")

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "p"}, s.Map.Selectors)
}

func TestLoad_Errors(t *testing.T) {
	tests := map[string]string{
		"script.txt":   "url: https://example.com",
		"empty.yaml":   "",
		"broken.yaml":  "url: [unclosed",
		"kind.json":    `{"kind": "crawl", "url": "https://example.com"}`,
		"actions.json": `{"url": "https://example.com", "actions": {"type": "click"}}`,
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeScript(t, name, content))
			require.Error(t, err)
			assert.Equal(t, apperr.CodeInvalidArgument, apperr.CodeOf(err))
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Equal(t, apperr.CodeInvalidArgument, apperr.CodeOf(err))
}
