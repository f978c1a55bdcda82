package ports

import (
	"context"
	"time"

	"pagepilot/internal/entity"
)

// Session is one live page owned by exactly one run. Implementations must make
// Close idempotent.
type Session interface {
	Goto(ctx context.Context, url string) error
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector string, value string) error
	SelectOption(ctx context.Context, selector string, value string) error
	WaitForSelector(ctx context.Context, selector string, state entity.SelectorState, timeout time.Duration) error
	Screenshot(ctx context.Context, path string) error
	Query(ctx context.Context, selector string) ([]entity.ElementSnapshot, error)
	Describe(ctx context.Context, selector string) ([]entity.ElementDescriptor, error)
	OnElementSelected(ctx context.Context, handler func(entity.ElementDescriptor)) error
	Close(ctx context.Context) error
}

type SessionFactory interface {
	Open(ctx context.Context, settings entity.SessionSettings) (Session, error)
}

type ArtifactStore interface {
	NewScreenshot(name string) (path string, url string, err error)
	SaveResult(name string, pageURL string, payload *entity.OrderedMap[any]) (url string, err error)
	List(kind entity.ArtifactKind) ([]entity.Artifact, error)
	Dir(kind entity.ArtifactKind) string
}

type EventPublisher interface {
	Publish(ctx context.Context, event entity.Event) error
}
