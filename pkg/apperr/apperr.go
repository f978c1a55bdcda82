package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	MetaReason    = "reason"
	MetaStage     = "stage"
	MetaField     = "field"
	MetaRunID     = "run_id"
	MetaSessionID = "session_id"
	MetaAction    = "action"
	MetaIndex     = "index"
	MetaSelector  = "selector"
	MetaURL       = "url"
	MetaEngine    = "engine"

	StageValidation  = "validation"
	StageBrowser     = "browser"
	StageNavigation  = "navigation"
	StageInteraction = "interaction"
	StageExtraction  = "extraction"
	StageScreenshot  = "screenshot"
	StageArtifact    = "artifact"
	StageSelection   = "selection"

	CodeInternal        = "internal"
	CodeInvalidArgument = "invalid_argument"
	CodeNotFound        = "not_found"
	CodeAmbiguous       = "ambiguous"
	CodeUnavailable     = "unavailable"
	CodeTimeout         = "timeout"
	CodeBrowserNotReady = "browser_not_ready"
	CodeActionFailed    = "action_failed"
	CodeUnsupported     = "unsupported"
)

type Error struct {
	Op       string
	Code     string
	Err      error
	Metadata map[string]any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}

	return e.Op
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Wrap(op, code string, err error, metadata map[string]any) error {
	if metadata == nil {
		metadata = make(map[string]any)
	}

	return &Error{
		Op:       op,
		Code:     code,
		Err:      err,
		Metadata: metadata,
	}
}

func WrapErrorWithReason(op, code, reason string) error {
	return Wrap(op, code, errors.New(reason), map[string]any{
		MetaReason: reason,
	})
}

func InvalidReqError(op, field string, err error) error {
	return Wrap(op, CodeInvalidArgument, err, map[string]any{
		MetaField:  field,
		MetaReason: "invalid_request",
	})
}

func UnsupportedError(op, engine string) error {
	return Wrap(op, CodeUnsupported, fmt.Errorf("%s is not supported by the %s engine", op, engine), map[string]any{
		MetaReason: "unsupported_operation",
		MetaEngine: engine,
	})
}

// CodeOf returns the code of the outermost *Error in the chain whose code is
// more specific than internal, or CodeInternal.
func CodeOf(err error) string {
	for err != nil {
		var appErr *Error
		if !errors.As(err, &appErr) {
			break
		}

		if appErr.Code != "" && appErr.Code != CodeInternal {
			return appErr.Code
		}

		err = appErr.Err
	}

	return CodeInternal
}

// HasCode reports whether any *Error in the chain carries code.
func HasCode(err error, code string) bool {
	for err != nil {
		var appErr *Error
		if !errors.As(err, &appErr) {
			return false
		}

		if appErr.Code == code {
			return true
		}

		err = appErr.Err
	}

	return false
}

// HTTPStatus maps the code of err to the status returned by the API.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeNotFound:
		if HasStage(err, StageSelection) {
			return http.StatusNotFound
		}

		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// HasStage reports whether any *Error in the chain was tagged with stage.
func HasStage(err error, stage string) bool {
	for err != nil {
		var appErr *Error
		if !errors.As(err, &appErr) {
			return false
		}

		if appErr.Metadata[MetaStage] == stage {
			return true
		}

		err = appErr.Err
	}

	return false
}
