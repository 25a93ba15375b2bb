package progress

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ronnygunawan/opencopilot/pkg/utils"
)

func TestEventJSONShape(t *testing.T) {
	event := Event{
		Type:      EventPhaseChanged,
		StepID:    "s1",
		Phase:     "building",
		Attempt:   2,
		Message:   "retrying",
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "phase_changed", decoded["type"])
	assert.Equal(t, "s1", decoded["step_id"])
	assert.Equal(t, "building", decoded["phase"])
	assert.Equal(t, float64(2), decoded["attempt"])
}

func TestNopSink(t *testing.T) {
	var sink Sink = NopSink{}
	// Publishing to the nop sink must be safe with any event.
	sink.Publish(Event{Type: EventStepStarted})
}

func TestHub_PublishWithoutSubscribers(t *testing.T) {
	hub := NewHub(utils.NewTestLogger())
	assert.Equal(t, 0, hub.SubscriberCount())
	// No subscribers, publishing is a no-op.
	hub.Publish(Event{Type: EventStepCompleted, StepID: "s1"})
}
