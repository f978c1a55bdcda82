package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"pagepilot/internal/config"
	"pagepilot/internal/entity"
	"pagepilot/internal/metrics"
	"pagepilot/internal/ports"
	"pagepilot/pkg/apperr"
	"pagepilot/pkg/logg"
	"pagepilot/pkg/tracing"
)

const (
	selectionName   = "SelectionService"
	selectionTracer = "usecase.selection"

	subscriberBuffer = 32
)

// SelectionService keeps interactive selection sessions: a headed browser
// page with the element reporter installed, plus every element the user
// picked in it.
type SelectionService struct {
	config   *config.Config
	logger   *zap.Logger
	tracer   trace.Tracer
	sessions ports.SessionFactory
	store    ports.ArtifactStore
	events   ports.EventPublisher

	mu      sync.Mutex
	entries map[string]*selectionEntry
}

type selectionEntry struct {
	info    entity.SelectionSession
	session ports.Session

	mu          sync.Mutex
	elements    []entity.ElementDescriptor
	subscribers map[int]chan entity.ElementDescriptor
	nextSub     int
	stopped     bool
}

type SelectionParams struct {
	fx.In

	Config   *config.Config
	Logger   *zap.Logger
	Sessions ports.SessionFactory
	Store    ports.ArtifactStore
	Events   ports.EventPublisher
}

func NewSelectionService(params SelectionParams) *SelectionService {
	return &SelectionService{
		config:   params.Config,
		logger:   params.Logger.With(zap.String(logg.Layer, selectionName)),
		tracer:   otel.Tracer(selectionTracer),
		sessions: params.Sessions,
		store:    params.Store,
		events:   params.Events,
		entries:  make(map[string]*selectionEntry),
	}
}

// Start opens a page for interactive selection. The browser is headed
// unless the request asks otherwise.
func (s *SelectionService) Start(ctx context.Context, req entity.SelectionRequest) (info *entity.SelectionSession, err error) {
	const op = "Start"
	logger := s.logger.With(zap.String(logg.Operation, op), zap.String(logg.URL, req.URL))

	ctx, step := tracing.StartSpan(ctx, s.tracer, logger, op, attribute.String("url", req.URL))
	defer func() {
		step.End(err)
	}()

	if err := validateURL(op, "url", req.URL); err != nil {
		return nil, err
	}

	opts := entity.SessionOptions{}
	if req.Options != nil {
		opts = *req.Options
	}

	if opts.Headless == nil {
		headless := false
		opts.Headless = &headless
	}

	settings, err := resolveSettings(s.config.BrowserConfig, s.store.Dir(entity.ArtifactVideos), &opts)
	if err != nil {
		return nil, err
	}

	if settings.Engine != entity.EngineBrowser {
		return nil, apperr.InvalidReqError(op, "options.engine", fmt.Errorf("interactive selection needs the %q engine", entity.EngineBrowser))
	}

	// The session outlives the request that started it.
	sessionCtx := context.WithoutCancel(ctx)

	session, err := s.sessions.Open(sessionCtx, settings)
	if err != nil {
		return nil, err
	}

	entry := &selectionEntry{
		info: entity.SelectionSession{
			ID:        uuid.NewString(),
			URL:       req.URL,
			StartedAt: time.Now().UTC(),
		},
		session:     session,
		subscribers: make(map[int]chan entity.ElementDescriptor),
	}

	if err := session.OnElementSelected(sessionCtx, func(d entity.ElementDescriptor) {
		s.receive(entry, d)
	}); err != nil {
		_ = session.Close(sessionCtx)

		return nil, err
	}

	if err := session.Goto(sessionCtx, req.URL); err != nil {
		_ = session.Close(sessionCtx)

		return nil, err
	}

	s.mu.Lock()
	s.entries[entry.info.ID] = entry
	s.mu.Unlock()

	logger.Info("Selection session started", zap.String(logg.SessionID, entry.info.ID))

	started := entry.info

	return &started, nil
}

func (s *SelectionService) Get(id string) (*entity.SelectionState, error) {
	entry, err := s.entry("Get", id)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	return &entity.SelectionState{
		Session:  entry.info,
		Elements: append([]entity.ElementDescriptor{}, entry.elements...),
	}, nil
}

// Stop closes the session and ends every subscription to it.
func (s *SelectionService) Stop(ctx context.Context, id string) (err error) {
	const op = "Stop"
	logger := s.logger.With(zap.String(logg.Operation, op), zap.String(logg.SessionID, id))

	ctx, step := tracing.StartSpan(ctx, s.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	s.mu.Lock()
	entry, ok := s.entries[id]
	delete(s.entries, id)
	s.mu.Unlock()

	if !ok {
		return unknownSelection(op, id)
	}

	entry.mu.Lock()
	entry.stopped = true
	for sub, ch := range entry.subscribers {
		close(ch)
		delete(entry.subscribers, sub)
	}
	entry.mu.Unlock()

	if err := entry.session.Close(ctx); err != nil {
		return err
	}

	logger.Info("Selection session stopped", zap.Int("elements", len(entry.elements)))

	return nil
}

// Subscribe returns a channel receiving every element selected from now on.
// The returned function ends the subscription; it is safe to call after
// Stop.
func (s *SelectionService) Subscribe(id string) (<-chan entity.ElementDescriptor, func(), error) {
	entry, err := s.entry("Subscribe", id)
	if err != nil {
		return nil, nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.stopped {
		return nil, nil, unknownSelection("Subscribe", id)
	}

	sub := entry.nextSub
	entry.nextSub++

	ch := make(chan entity.ElementDescriptor, subscriberBuffer)
	entry.subscribers[sub] = ch

	cancel := func() {
		entry.mu.Lock()
		defer entry.mu.Unlock()

		if ch, ok := entry.subscribers[sub]; ok {
			close(ch)
			delete(entry.subscribers, sub)
		}
	}

	return ch, cancel, nil
}

// Shutdown stops every open selection session.
func (s *SelectionService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		if err := s.Stop(ctx, id); err != nil {
			s.logger.Warn("Failed to stop selection session", zap.String(logg.SessionID, id), zap.Error(err))
		}
	}

	return nil
}

// receive appends d to the entry and fans it out. Slow subscribers miss
// elements rather than block the page binding.
func (s *SelectionService) receive(entry *selectionEntry, d entity.ElementDescriptor) {
	entry.mu.Lock()
	if entry.stopped {
		entry.mu.Unlock()

		return
	}

	entry.elements = append(entry.elements, d)

	for _, ch := range entry.subscribers {
		select {
		case ch <- d:
		default:
			s.logger.Warn("Subscriber is full, dropping element", zap.String(logg.SessionID, entry.info.ID))
		}
	}
	entry.mu.Unlock()

	metrics.ElementSelected()
	s.logger.Info("Element selected",
		zap.String(logg.SessionID, entry.info.ID),
		zap.String(logg.Selector, d.CSSSelector))

	event := entity.Event{
		Type:      entity.EventElementSelected,
		ID:        entry.info.ID,
		URL:       entry.info.URL,
		Timestamp: time.Now().UTC(),
		Payload:   d,
	}

	if err := s.events.Publish(context.Background(), event); err != nil {
		s.logger.Warn("Failed to publish selection event", zap.Error(err))
	}
}

func (s *SelectionService) entry(op, id string) (*selectionEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return nil, unknownSelection(op, id)
	}

	return entry, nil
}

func unknownSelection(op, id string) error {
	return apperr.Wrap(op, apperr.CodeNotFound, fmt.Errorf("selection session %q not found", id), map[string]any{
		apperr.MetaReason:    "unknown_selection_session",
		apperr.MetaStage:     apperr.StageSelection,
		apperr.MetaSessionID: id,
	})
}
