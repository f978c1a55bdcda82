package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pagepilot/internal/artifact"
	"pagepilot/internal/config"
	"pagepilot/internal/entity"
	"pagepilot/internal/usecase"
	"pagepilot/pkg/apperr"
)

type fakeAutomation struct {
	runErr    error
	lastRun   entity.RunRequest
	artifacts []entity.Artifact
}

func (f *fakeAutomation) Run(_ context.Context, req entity.RunRequest) (*entity.RunResult, error) {
	f.lastRun = req
	if f.runErr != nil {
		return nil, f.runErr
	}

	results := entity.NewOrderedMap[any]()
	results.Set("title", "Example")

	return &entity.RunResult{
		Success:         true,
		URL:             req.URL,
		ActionsExecuted: len(req.Actions),
		Results:         results,
		Screenshot:      "/screenshots/run_1.png",
		ResultFile:      "/results/run_1.json",
	}, nil
}

func (f *fakeAutomation) Map(_ context.Context, req entity.MapRequest) (*entity.MapResult, error) {
	return &entity.MapResult{Success: true, URL: req.URL, MappingResults: entity.NewOrderedMap[entity.MappingResult]()}, nil
}

func (f *fakeAutomation) Extract(_ context.Context, req entity.ExtractRequest) (*entity.ExtractResult, error) {
	return &entity.ExtractResult{Success: true, URL: req.URL, ExtractionResults: entity.NewOrderedMap[any]()}, nil
}

func (f *fakeAutomation) Describe(_ context.Context, req entity.DescribeRequest) (*entity.DescribeResult, error) {
	return &entity.DescribeResult{Success: true, URL: req.URL, Elements: []entity.ElementDescriptor{}}, nil
}

func (f *fakeAutomation) ListArtifacts(kind entity.ArtifactKind) ([]entity.Artifact, error) {
	if kind == entity.ArtifactResults {
		return f.artifacts, nil
	}

	return []entity.Artifact{}, nil
}

type fakeSelection struct {
	updates chan entity.ElementDescriptor
}

func unknown(id string) error {
	return apperr.Wrap("Get", apperr.CodeNotFound, errors.New("selection session "+id+" not found"), map[string]any{
		apperr.MetaStage: apperr.StageSelection,
	})
}

func (f *fakeSelection) Start(_ context.Context, req entity.SelectionRequest) (*entity.SelectionSession, error) {
	return &entity.SelectionSession{ID: "sel-1", URL: req.URL}, nil
}

func (f *fakeSelection) Get(id string) (*entity.SelectionState, error) {
	if id != "sel-1" {
		return nil, unknown(id)
	}

	return &entity.SelectionState{
		Session:  entity.SelectionSession{ID: id},
		Elements: []entity.ElementDescriptor{{TagName: "a", CSSSelector: "#home"}},
	}, nil
}

func (f *fakeSelection) Stop(_ context.Context, id string) error {
	if id != "sel-1" {
		return unknown(id)
	}

	return nil
}

func (f *fakeSelection) Subscribe(id string) (<-chan entity.ElementDescriptor, func(), error) {
	if id != "sel-1" {
		return nil, nil, unknown(id)
	}

	return f.updates, func() {}, nil
}

func (f *fakeSelection) Shutdown(context.Context) error {
	return nil
}

type serverFixture struct {
	server     *Server
	automation *fakeAutomation
	selection  *fakeSelection
	store      *artifact.Store
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	store, err := artifact.New(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	f := &serverFixture{
		automation: &fakeAutomation{},
		selection:  &fakeSelection{updates: make(chan entity.ElementDescriptor, 1)},
		store:      store,
	}

	f.server = NewServer(Params{
		Config: &config.Config{ServerConfig: &config.ServerConfig{Addr: "127.0.0.1:0"}},
		Logger: zap.NewNop(),
		Usecase: &usecase.Service{
			Automation: f.automation,
			Selection:  f.selection,
		},
		Store: store,
	})

	return f
}

func (f *serverFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)

	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	return body
}

func TestRun(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/run",
		`{"url":"https://example.com","actions":[{"type":"click","selector":"#go"},{"type":"hover"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(2), body["actionsExecuted"])
	assert.Equal(t, map[string]any{"title": "Example"}, body["results"])
	assert.Equal(t, "/results/run_1.json", body["resultFile"])

	require.Len(t, f.automation.lastRun.Actions, 2)
	assert.Equal(t, entity.ClickAction{Selector: "#go"}, f.automation.lastRun.Actions[0])
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name   string
		runErr error
		body   string
		status int
	}{
		{
			name:   "malformed body",
			body:   `{"url":`,
			status: http.StatusBadRequest,
		},
		{
			name:   "validation error",
			runErr: apperr.InvalidReqError("Run", "url", errors.New("url is required")),
			body:   `{}`,
			status: http.StatusBadRequest,
		},
		{
			name:   "action failure",
			runErr: apperr.Wrap("action 0 (click)", apperr.CodeInternal, apperr.WrapErrorWithReason("Click", apperr.CodeNotFound, "element_not_found"), nil),
			body:   `{"url":"https://example.com","actions":[]}`,
			status: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServerFixture(t)
			f.automation.runErr = tt.runErr

			rec := f.do(t, http.MethodPost, "/api/run", tt.body)
			require.Equal(t, tt.status, rec.Code)

			body := decodeBody(t, rec)
			assert.Equal(t, true, body["error"])
			assert.NotEmpty(t, body["message"])
		})
	}
}

func TestListArtifacts(t *testing.T) {
	f := newServerFixture(t)
	f.automation.artifacts = []entity.Artifact{{Name: "run_1.json", URL: "/results/run_1.json", Size: 2}}

	rec := f.do(t, http.MethodGet, "/api/results", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Results []entity.Artifact `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Results, 1)
	assert.Equal(t, "/results/run_1.json", body.Results[0].URL)

	rec = f.do(t, http.MethodGet, "/api/screenshots", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"screenshots":[]}`, rec.Body.String())
}

func TestArtifactFiles(t *testing.T) {
	f := newServerFixture(t)

	path := filepath.Join(f.store.Dir(entity.ArtifactResults), "run_1.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"url":"https://example.com"}`), 0o644))

	rec := f.do(t, http.MethodGet, "/results/run_1.json", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"url":"https://example.com"}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/screenshots/missing.png", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSelections(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/selections", `{"url":"https://example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"session":{"id":"sel-1","url":"https://example.com","startedAt":"0001-01-01T00:00:00Z"}}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/selections/sel-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "#home", decodeBody(t, rec)["elements"].([]any)[0].(map[string]any)["cssSelector"])

	rec = f.do(t, http.MethodGet, "/api/selections/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["error"])

	rec = f.do(t, http.MethodDelete, "/api/selections/sel-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/selections/nope/stream", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSelectionStream(t *testing.T) {
	f := newServerFixture(t)

	ts := httptest.NewServer(f.server.Router())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/selections/sel-1/stream"

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	defer resp.Body.Close()

	f.selection.updates <- entity.ElementDescriptor{TagName: "button", CSSSelector: "#buy"}

	var msg entity.SelectionMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, entity.MessageElementSelected, msg.Type)
	assert.Equal(t, "#buy", msg.Element.CSSSelector)

	close(f.selection.updates)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestOperationalEndpoints(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	rec = f.do(t, http.MethodOptions, "/api/run", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStartAndShutdown(t *testing.T) {
	f := newServerFixture(t)
	f.server.config.ShutdownTimeout = time.Second

	require.NoError(t, f.server.Start(context.Background()))
	require.NoError(t, f.server.Shutdown(context.Background()))
}
