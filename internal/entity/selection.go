package entity

import "time"

const MessageElementSelected = "elementSelected"

// ElementDescriptor is what the in-page reporter sends for a picked element.
type ElementDescriptor struct {
	TagName       string            `json:"tagName"`
	ID            string            `json:"id"`
	Classes       string            `json:"classes"`
	Text          string            `json:"text"`
	CSSSelector   string            `json:"cssSelector"`
	XPathSelector string            `json:"xpathSelector"`
	Attributes    map[string]string `json:"attributes"`
}

type SelectionMessage struct {
	Type    string            `json:"type"`
	Element ElementDescriptor `json:"element"`
}

type SelectionSession struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	StartedAt time.Time `json:"startedAt"`
}

type SelectionState struct {
	Session  SelectionSession    `json:"session"`
	Elements []ElementDescriptor `json:"elements"`
}

type SelectionRequest struct {
	URL     string          `json:"url"`
	Options *SessionOptions `json:"options,omitempty"`
}
