package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pagepilot/internal/artifact"
	"pagepilot/internal/config"
	"pagepilot/internal/entity"
	"pagepilot/internal/ports"
)

// MockSession mocks ports.Session.
type MockSession struct {
	mock.Mock
}

func (m *MockSession) Goto(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *MockSession) Click(ctx context.Context, selector string) error {
	return m.Called(ctx, selector).Error(0)
}

func (m *MockSession) Fill(ctx context.Context, selector string, value string) error {
	return m.Called(ctx, selector, value).Error(0)
}

func (m *MockSession) SelectOption(ctx context.Context, selector string, value string) error {
	return m.Called(ctx, selector, value).Error(0)
}

func (m *MockSession) WaitForSelector(ctx context.Context, selector string, state entity.SelectorState, timeout time.Duration) error {
	return m.Called(ctx, selector, state, timeout).Error(0)
}

func (m *MockSession) Screenshot(ctx context.Context, path string) error {
	return m.Called(ctx, path).Error(0)
}

func (m *MockSession) Query(ctx context.Context, selector string) ([]entity.ElementSnapshot, error) {
	args := m.Called(ctx, selector)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]entity.ElementSnapshot), args.Error(1)
}

func (m *MockSession) Describe(ctx context.Context, selector string) ([]entity.ElementDescriptor, error) {
	args := m.Called(ctx, selector)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]entity.ElementDescriptor), args.Error(1)
}

func (m *MockSession) OnElementSelected(ctx context.Context, handler func(entity.ElementDescriptor)) error {
	return m.Called(ctx, handler).Error(0)
}

func (m *MockSession) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// MockSessionFactory mocks ports.SessionFactory.
type MockSessionFactory struct {
	mock.Mock
}

func (m *MockSessionFactory) Open(ctx context.Context, settings entity.SessionSettings) (ports.Session, error) {
	args := m.Called(ctx, settings)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(ports.Session), args.Error(1)
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []entity.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event entity.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return p.err
}

func (p *recordingPublisher) Events() []entity.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]entity.Event{}, p.events...)
}

func testConfig() *config.Config {
	return &config.Config{
		BrowserConfig: &config.BrowserConfig{
			Headless:       true,
			Timeout:        30000,
			ViewportWidth:  1280,
			ViewportHeight: 720,
			Engine:         string(entity.EngineBrowser),
		},
		RunConfig: &config.RunConfig{MaxConcurrent: 2},
	}
}

func testStore(t *testing.T) *artifact.Store {
	t.Helper()

	store, err := artifact.New(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	return store
}

func snapshots(tag string, texts ...string) []entity.ElementSnapshot {
	out := make([]entity.ElementSnapshot, 0, len(texts))
	for _, text := range texts {
		out = append(out, entity.ElementSnapshot{
			TagName:    tag,
			Text:       text,
			Attributes: []entity.Attribute{{Name: "data-text", Value: text}},
		})
	}

	return out
}
