package entity

import (
	"time"
)

const (
	DefaultWaitForSelectorTimeout = 30000
	DefaultExtractAttribute       = "textContent"

	MappingSampleSize = 5
	SummaryTextLimit  = 50
)

type Engine string

const (
	EngineBrowser Engine = "browser"
	EngineStatic  Engine = "static"
)

type SelectorState string

const (
	SelectorStateVisible  SelectorState = "visible"
	SelectorStateAttached SelectorState = "attached"
	SelectorStateHidden   SelectorState = "hidden"
	SelectorStateDetached SelectorState = "detached"
)

func (s SelectorState) Valid() bool {
	switch s {
	case SelectorStateVisible, SelectorStateAttached, SelectorStateHidden, SelectorStateDetached:
		return true
	default:
		return false
	}
}

type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// SessionOptions is the per-request override of the configured session
// defaults. Nil fields keep the default.
type SessionOptions struct {
	Headless    *bool     `json:"headless,omitempty"`
	SlowMo      *int      `json:"slowMo,omitempty"`
	Timeout     *int      `json:"timeout,omitempty"`
	Viewport    *Viewport `json:"viewport,omitempty"`
	RecordVideo *bool     `json:"recordVideo,omitempty"`
	Engine      Engine    `json:"engine,omitempty"`
}

// SessionSettings are the fully resolved options a session is opened with.
type SessionSettings struct {
	Engine      Engine
	Headless    bool
	SlowMo      time.Duration
	Timeout     time.Duration
	Viewport    Viewport
	RecordVideo bool
	VideoDir    string
}

type Extraction struct {
	Name      string `json:"name,omitempty"`
	Selector  string `json:"selector"`
	Attribute string `json:"attribute,omitempty"`
	Multiple  bool   `json:"multiple,omitempty"`
}

func (e Extraction) Normalized() Extraction {
	if e.Attribute == "" {
		e.Attribute = DefaultExtractAttribute
	}

	return e
}

type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type Attribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ElementSnapshot is everything a session reports about one matched element.
// Extraction and mapping derive their values from it.
type ElementSnapshot struct {
	TagName     string
	ID          string
	ClassName   string
	Text        string
	InnerHTML   string
	OuterHTML   string
	Attributes  []Attribute
	BoundingBox *BoundingBox
}

func (s ElementSnapshot) Attribute(name string) (string, bool) {
	for _, attr := range s.Attributes {
		if attr.Name == name {
			return attr.Value, true
		}
	}

	return "", false
}

type ElementSummary struct {
	TagName     string       `json:"tagName"`
	ID          string       `json:"id"`
	ClassName   string       `json:"className"`
	Text        string       `json:"text"`
	BoundingBox *BoundingBox `json:"boundingBox"`
	Attributes  []Attribute  `json:"attributes"`
}

type MappingResult struct {
	Error    string           `json:"error,omitempty"`
	Count    int              `json:"count"`
	Elements []ElementSummary `json:"elements"`
	HasMore  bool             `json:"hasMore"`
}

// ExtractionError is stored in place of a value when one extraction fails.
type ExtractionError struct {
	Error string `json:"error"`
}

type ResultBag = OrderedMap[any]

type ArtifactKind string

const (
	ArtifactScreenshots ArtifactKind = "screenshots"
	ArtifactResults     ArtifactKind = "results"
	ArtifactVideos      ArtifactKind = "videos"
)

type Artifact struct {
	Name    string    `json:"name"`
	URL     string    `json:"url"`
	Size    int64     `json:"size"`
	Created time.Time `json:"created"`
}

type RunRequest struct {
	URL     string          `json:"url"`
	Actions Actions         `json:"actions"`
	Options *SessionOptions `json:"options,omitempty"`
}

type RunResult struct {
	Success         bool       `json:"success"`
	URL             string     `json:"url"`
	ActionsExecuted int        `json:"actionsExecuted"`
	Results         *ResultBag `json:"results"`
	Screenshot      string     `json:"screenshot"`
	ResultFile      string     `json:"resultFile"`
}

type MapRequest struct {
	URL       string          `json:"url"`
	Selectors []string        `json:"selectors"`
	Options   *SessionOptions `json:"options,omitempty"`
}

type MapResult struct {
	Success        bool                       `json:"success"`
	URL            string                     `json:"url"`
	MappingResults *OrderedMap[MappingResult] `json:"mappingResults"`
	Screenshot     string                     `json:"screenshot"`
	ResultFile     string                     `json:"resultFile"`
}

type ExtractRequest struct {
	URL         string          `json:"url"`
	Extractions []Extraction    `json:"extractions"`
	Options     *SessionOptions `json:"options,omitempty"`
}

type ExtractResult struct {
	Success           bool             `json:"success"`
	URL               string           `json:"url"`
	ExtractionResults *OrderedMap[any] `json:"extractionResults"`
	Screenshot        string           `json:"screenshot"`
	ResultFile        string           `json:"resultFile"`
}

type DescribeRequest struct {
	URL      string          `json:"url"`
	Selector string          `json:"selector"`
	Options  *SessionOptions `json:"options,omitempty"`
}

type DescribeResult struct {
	Success  bool                `json:"success"`
	URL      string              `json:"url"`
	Elements []ElementDescriptor `json:"elements"`
}

type EventType string

const (
	EventRunCompleted     EventType = "run.completed"
	EventMapCompleted     EventType = "map.completed"
	EventExtractCompleted EventType = "extract.completed"
	EventElementSelected  EventType = "selection.element"
)

type Event struct {
	Type      EventType `json:"type"`
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}
