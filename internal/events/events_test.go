package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pagepilot/internal/entity"
)

func TestSubject(t *testing.T) {
	assert.Equal(t, "pagepilot.run.completed", Subject("pagepilot", entity.EventRunCompleted))
	assert.Equal(t, "selection.element", Subject("", entity.EventElementSelected))
}

func TestEncode(t *testing.T) {
	event := entity.Event{
		Type:      entity.EventMapCompleted,
		ID:        "abc",
		URL:       "https://example.com",
		Timestamp: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Payload:   map[string]string{"resultFile": "/results/map_1.json"},
	}

	data, err := Encode(event)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type": "map.completed",
		"id": "abc",
		"url": "https://example.com",
		"timestamp": "2024-01-02T03:04:05Z",
		"payload": {"resultFile": "/results/map_1.json"}
	}`, string(data))
}

func TestNopPublisher(t *testing.T) {
	p := NewNopPublisher(zap.NewNop())

	assert.NoError(t, p.Publish(context.Background(), entity.Event{Type: entity.EventRunCompleted}))
	assert.NoError(t, p.Close())
}
