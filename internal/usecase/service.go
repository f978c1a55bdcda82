package usecase

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"pagepilot/internal/config"
	"pagepilot/internal/ports"
	"pagepilot/internal/usecase/adapters"
)

type Service struct {
	Automation adapters.AutomationService
	Selection  adapters.SelectionService
}

type Params struct {
	fx.In

	Logger   *zap.Logger
	Config   *config.Config
	Sessions ports.SessionFactory
	Store    ports.ArtifactStore
	Events   ports.EventPublisher
}

func NewUsecase(params Params) *Service {
	factory := newServiceFactory(params)

	return &Service{
		Automation: factory.CreateAutomationService(),
		Selection:  factory.CreateSelectionService(),
	}
}
