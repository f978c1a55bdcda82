package adapters

import (
	"context"

	"pagepilot/internal/entity"
)

type AutomationService interface {
	Run(ctx context.Context, req entity.RunRequest) (*entity.RunResult, error)
	Map(ctx context.Context, req entity.MapRequest) (*entity.MapResult, error)
	Extract(ctx context.Context, req entity.ExtractRequest) (*entity.ExtractResult, error)
	Describe(ctx context.Context, req entity.DescribeRequest) (*entity.DescribeResult, error)
	ListArtifacts(kind entity.ArtifactKind) ([]entity.Artifact, error)
}

type SelectionService interface {
	Start(ctx context.Context, req entity.SelectionRequest) (*entity.SelectionSession, error)
	Get(id string) (*entity.SelectionState, error)
	Stop(ctx context.Context, id string) error
	Subscribe(id string) (<-chan entity.ElementDescriptor, func(), error)
	Shutdown(ctx context.Context) error
}
