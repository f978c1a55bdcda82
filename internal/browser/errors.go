package browser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/playwright-community/playwright-go"

	"pagepilot/internal/entity"
	"pagepilot/pkg/apperr"
)

func errUnknownEngine(engine entity.Engine) error {
	return fmt.Errorf("unknown engine %q, expected %q or %q", engine, entity.EngineBrowser, entity.EngineStatic)
}

// interactionError classifies a Playwright failure on a locator: strict mode
// violations are ambiguous selectors, timeouts stay timeouts.
func interactionError(op, selector, reason string, err error) error {
	code := apperr.CodeActionFailed

	switch {
	case errors.Is(err, playwright.ErrTimeout):
		code = apperr.CodeTimeout
	case strings.Contains(err.Error(), "strict mode violation"):
		code = apperr.CodeAmbiguous
	}

	return apperr.Wrap(op, code, err, map[string]any{
		apperr.MetaReason:   reason,
		apperr.MetaStage:    apperr.StageInteraction,
		apperr.MetaSelector: selector,
	})
}

func closedError(op string) error {
	return apperr.Wrap(op, apperr.CodeBrowserNotReady, errors.New("session is closed"), map[string]any{
		apperr.MetaReason: "session_closed",
		apperr.MetaStage:  apperr.StageBrowser,
	})
}
