package usecase

import (
	"pagepilot/internal/usecase/adapters"
)

type serviceFactory struct {
	deps Params
}

func newServiceFactory(deps Params) *serviceFactory {
	return &serviceFactory{
		deps: deps,
	}
}

func (f *serviceFactory) CreateAutomationService() adapters.AutomationService {
	return NewOrchestrator(OrchestratorParams{
		Config:   f.deps.Config,
		Logger:   f.deps.Logger,
		Sessions: f.deps.Sessions,
		Store:    f.deps.Store,
		Events:   f.deps.Events,
	})
}

func (f *serviceFactory) CreateSelectionService() adapters.SelectionService {
	return NewSelectionService(SelectionParams{
		Config:   f.deps.Config,
		Logger:   f.deps.Logger,
		Sessions: f.deps.Sessions,
		Store:    f.deps.Store,
		Events:   f.deps.Events,
	})
}
