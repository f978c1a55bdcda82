package usecase

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"pagepilot/internal/config"
	"pagepilot/internal/entity"
	"pagepilot/pkg/apperr"
)

// resolveSettings applies per-request options on top of the configured
// browser defaults.
func resolveSettings(cfg *config.BrowserConfig, videoDir string, opts *entity.SessionOptions) (entity.SessionSettings, error) {
	const op = "resolveSettings"

	settings := entity.SessionSettings{
		Engine:      entity.Engine(cfg.Engine),
		Headless:    cfg.Headless,
		SlowMo:      time.Duration(cfg.SlowMo) * time.Millisecond,
		Timeout:     time.Duration(cfg.Timeout) * time.Millisecond,
		Viewport:    entity.Viewport{Width: cfg.ViewportWidth, Height: cfg.ViewportHeight},
		RecordVideo: cfg.RecordVideo,
		VideoDir:    videoDir,
	}

	if opts != nil {
		if opts.Engine != "" {
			settings.Engine = opts.Engine
		}

		if opts.Headless != nil {
			settings.Headless = *opts.Headless
		}

		if opts.SlowMo != nil {
			if *opts.SlowMo < 0 {
				return settings, apperr.InvalidReqError(op, "options.slowMo", errors.New("slowMo must not be negative"))
			}

			settings.SlowMo = time.Duration(*opts.SlowMo) * time.Millisecond
		}

		if opts.Timeout != nil {
			if *opts.Timeout <= 0 {
				return settings, apperr.InvalidReqError(op, "options.timeout", errors.New("timeout must be positive"))
			}

			settings.Timeout = time.Duration(*opts.Timeout) * time.Millisecond
		}

		if opts.Viewport != nil {
			if opts.Viewport.Width <= 0 || opts.Viewport.Height <= 0 {
				return settings, apperr.InvalidReqError(op, "options.viewport", errors.New("viewport width and height must be positive"))
			}

			settings.Viewport = *opts.Viewport
		}

		if opts.RecordVideo != nil {
			settings.RecordVideo = *opts.RecordVideo
		}
	}

	switch settings.Engine {
	case entity.EngineBrowser, entity.EngineStatic:
	case "":
		settings.Engine = entity.EngineBrowser
	default:
		return settings, apperr.InvalidReqError(op, "options.engine", fmt.Errorf("unknown engine %q", settings.Engine))
	}

	return settings, nil
}

func validateURL(op, field, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return apperr.InvalidReqError(op, field, fmt.Errorf("%s is required", field))
	}

	u, err := url.Parse(raw)
	if err != nil {
		return apperr.InvalidReqError(op, field, fmt.Errorf("%s is not a valid URL: %w", field, err))
	}

	if u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "file" {
		return apperr.InvalidReqError(op, field, fmt.Errorf("%s must be an absolute http, https or file URL", field))
	}

	return nil
}

// checkEngineURL rejects URLs the chosen engine cannot load. The static
// engine fetches over HTTP only.
func checkEngineURL(op string, engine entity.Engine, field, raw string) error {
	if engine != entity.EngineStatic {
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "http" || u.Scheme == "https" {
		return nil
	}

	return apperr.InvalidReqError(op, field, fmt.Errorf("the %q engine only loads http and https URLs, got %q", engine, u.Scheme))
}

func checkEngineActions(op string, engine entity.Engine, actions entity.Actions) error {
	for i, action := range actions {
		if a, ok := action.(entity.NavigateAction); ok {
			if err := checkEngineURL(op, engine, fmt.Sprintf("actions[%d].url", i), a.URL); err != nil {
				return err
			}
		}
	}

	return nil
}

// validateActions checks the fields every known action needs before any
// session is opened. Unknown actions pass untouched.
func validateActions(op string, actions entity.Actions) error {
	for i, action := range actions {
		field := fmt.Sprintf("actions[%d]", i)

		var err error

		switch a := action.(type) {
		case entity.NavigateAction:
			err = validateURL(op, field+".url", a.URL)
		case entity.ClickAction:
			err = requireSelector(op, field, a.Selector)
		case entity.FillAction:
			err = requireSelector(op, field, a.Selector)
		case entity.SelectAction:
			err = requireSelector(op, field, a.Selector)
		case entity.WaitAction:
			if a.Milliseconds < 0 {
				err = apperr.InvalidReqError(op, field+".milliseconds", errors.New("milliseconds must not be negative"))
			}
		case entity.WaitForSelectorAction:
			err = requireSelector(op, field, a.Selector)
			if err == nil && a.State != "" && !a.State.Valid() {
				err = apperr.InvalidReqError(op, field+".state", fmt.Errorf("unknown state %q", a.State))
			}
		case entity.ExtractAction:
			err = requireSelector(op, field, a.Selector)
		}

		if err != nil {
			return err
		}
	}

	return nil
}

func requireSelector(op, field, selector string) error {
	if strings.TrimSpace(selector) == "" {
		return apperr.InvalidReqError(op, field+".selector", fmt.Errorf("%s.selector is required", field))
	}

	return nil
}
