package entity

import (
	"encoding/json"
	"fmt"
	"strings"
)

type ActionKind string

const (
	ActionTypeNavigate        ActionKind = "navigate"
	ActionTypeClick           ActionKind = "click"
	ActionTypeFill            ActionKind = "fill"
	ActionTypeSelect          ActionKind = "select"
	ActionTypeWait            ActionKind = "wait"
	ActionTypeWaitForSelector ActionKind = "waitForSelector"
	ActionTypeScreenshot      ActionKind = "screenshot"
	ActionTypeExtract         ActionKind = "extract"
)

// Action is one step of a scripted run. The set of implementations is closed:
// anything the decoder does not recognise becomes an UnknownAction.
type Action interface {
	Kind() ActionKind
	isAction()
}

type NavigateAction struct {
	URL string `json:"url"`
}

type ClickAction struct {
	Selector string `json:"selector"`
}

type FillAction struct {
	Selector string `json:"selector"`
	Value    string `json:"value"`
}

type SelectAction struct {
	Selector string `json:"selector"`
	Value    string `json:"value"`
}

type WaitAction struct {
	Milliseconds int `json:"milliseconds"`
}

type WaitForSelectorAction struct {
	Selector string        `json:"selector"`
	State    SelectorState `json:"state,omitempty"`
	Timeout  int           `json:"timeout,omitempty"`
}

type ScreenshotAction struct {
	Name   string `json:"name,omitempty"`
	SaveAs string `json:"saveAs,omitempty"`
}

type ExtractAction struct {
	Selector  string `json:"selector"`
	Attribute string `json:"attribute,omitempty"`
	Multiple  bool   `json:"multiple,omitempty"`
	SaveAs    string `json:"saveAs,omitempty"`
}

// UnknownAction keeps an unrecognised step verbatim so newer scripts still
// run on older executors.
type UnknownAction struct {
	Type string
	Raw  json.RawMessage
}

func (NavigateAction) Kind() ActionKind        { return ActionTypeNavigate }
func (ClickAction) Kind() ActionKind           { return ActionTypeClick }
func (FillAction) Kind() ActionKind            { return ActionTypeFill }
func (SelectAction) Kind() ActionKind          { return ActionTypeSelect }
func (WaitAction) Kind() ActionKind            { return ActionTypeWait }
func (WaitForSelectorAction) Kind() ActionKind { return ActionTypeWaitForSelector }
func (ScreenshotAction) Kind() ActionKind      { return ActionTypeScreenshot }
func (ExtractAction) Kind() ActionKind         { return ActionTypeExtract }
func (a UnknownAction) Kind() ActionKind       { return ActionKind(a.Type) }

func (NavigateAction) isAction()        {}
func (ClickAction) isAction()           {}
func (FillAction) isAction()            {}
func (SelectAction) isAction()          {}
func (WaitAction) isAction()            {}
func (WaitForSelectorAction) isAction() {}
func (ScreenshotAction) isAction()      {}
func (ExtractAction) isAction()         {}
func (UnknownAction) isAction()         {}

// EffectiveState returns the wait state, defaulting to visible.
func (a WaitForSelectorAction) EffectiveState() SelectorState {
	if a.State == "" {
		return SelectorStateVisible
	}

	return a.State
}

// EffectiveTimeout returns the timeout in milliseconds, defaulting to 30s.
func (a WaitForSelectorAction) EffectiveTimeout() int {
	if a.Timeout <= 0 {
		return DefaultWaitForSelectorTimeout
	}

	return a.Timeout
}

func (a ExtractAction) Extraction() Extraction {
	return Extraction{
		Selector:  a.Selector,
		Attribute: a.Attribute,
		Multiple:  a.Multiple,
	}.Normalized()
}

// Actions decodes a JSON array of `{"type": ..., ...}` objects into concrete
// Action values.
type Actions []Action

func (as *Actions) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}

	if raws == nil {
		*as = nil

		return nil
	}

	out := make(Actions, 0, len(raws))

	for i, raw := range raws {
		action, err := DecodeAction(raw)
		if err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}

		out = append(out, action)
	}

	*as = out

	return nil
}

func DecodeAction(raw json.RawMessage) (Action, error) {
	var head struct {
		Type string `json:"type"`
	}

	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, err
	}

	switch normalizeKind(head.Type) {
	case "navigate":
		return decodeInto[NavigateAction](raw)
	case "click":
		return decodeInto[ClickAction](raw)
	case "fill":
		return decodeInto[FillAction](raw)
	case "select":
		return decodeInto[SelectAction](raw)
	case "wait":
		var a struct {
			Milliseconds *int `json:"milliseconds"`
			Duration     *int `json:"duration"`
		}

		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, err
		}

		switch {
		case a.Milliseconds != nil:
			return WaitAction{Milliseconds: *a.Milliseconds}, nil
		case a.Duration != nil:
			return WaitAction{Milliseconds: *a.Duration}, nil
		default:
			return WaitAction{}, nil
		}
	case "waitforselector":
		var a struct {
			Selector  string        `json:"selector"`
			State     SelectorState `json:"state"`
			Timeout   *int          `json:"timeout"`
			TimeoutMs *int          `json:"timeoutMs"`
		}

		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, err
		}

		action := WaitForSelectorAction{Selector: a.Selector, State: a.State}

		switch {
		case a.Timeout != nil:
			action.Timeout = *a.Timeout
		case a.TimeoutMs != nil:
			action.Timeout = *a.TimeoutMs
		}

		return action, nil
	case "screenshot":
		return decodeInto[ScreenshotAction](raw)
	case "extract":
		return decodeInto[ExtractAction](raw)
	default:
		return UnknownAction{Type: head.Type, Raw: append(json.RawMessage(nil), raw...)}, nil
	}
}

func decodeInto[T Action](raw json.RawMessage) (Action, error) {
	var action T
	if err := json.Unmarshal(raw, &action); err != nil {
		return nil, err
	}

	return action, nil
}

func normalizeKind(kind string) string {
	kind = strings.ToLower(strings.TrimSpace(kind))
	kind = strings.ReplaceAll(kind, "_", "")

	return strings.ReplaceAll(kind, "-", "")
}

func (a NavigateAction) MarshalJSON() ([]byte, error) {
	type plain NavigateAction

	return json.Marshal(struct {
		Type ActionKind `json:"type"`
		plain
	}{a.Kind(), plain(a)})
}

func (a ClickAction) MarshalJSON() ([]byte, error) {
	type plain ClickAction

	return json.Marshal(struct {
		Type ActionKind `json:"type"`
		plain
	}{a.Kind(), plain(a)})
}

func (a FillAction) MarshalJSON() ([]byte, error) {
	type plain FillAction

	return json.Marshal(struct {
		Type ActionKind `json:"type"`
		plain
	}{a.Kind(), plain(a)})
}

func (a SelectAction) MarshalJSON() ([]byte, error) {
	type plain SelectAction

	return json.Marshal(struct {
		Type ActionKind `json:"type"`
		plain
	}{a.Kind(), plain(a)})
}

func (a WaitAction) MarshalJSON() ([]byte, error) {
	type plain WaitAction

	return json.Marshal(struct {
		Type ActionKind `json:"type"`
		plain
	}{a.Kind(), plain(a)})
}

func (a WaitForSelectorAction) MarshalJSON() ([]byte, error) {
	type plain WaitForSelectorAction

	return json.Marshal(struct {
		Type ActionKind `json:"type"`
		plain
	}{a.Kind(), plain(a)})
}

func (a ScreenshotAction) MarshalJSON() ([]byte, error) {
	type plain ScreenshotAction

	return json.Marshal(struct {
		Type ActionKind `json:"type"`
		plain
	}{a.Kind(), plain(a)})
}

func (a ExtractAction) MarshalJSON() ([]byte, error) {
	type plain ExtractAction

	return json.Marshal(struct {
		Type ActionKind `json:"type"`
		plain
	}{a.Kind(), plain(a)})
}

func (a UnknownAction) MarshalJSON() ([]byte, error) {
	if len(a.Raw) > 0 {
		return a.Raw, nil
	}

	return json.Marshal(map[string]string{"type": a.Type})
}
