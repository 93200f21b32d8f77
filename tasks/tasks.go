package tasks

import (
	"encoding/json"

	"github.com/drewmudry/visium-api/models"
)

// ---
// CHANNEL DEFINITIONS
// ---
const (
	// ChannelTaskStatus receives one message per task status transition.
	ChannelTaskStatus = "video_task_status"
)

// ---
// EVENT PAYLOADS
// ---

// StatusEvent is the payload published on ChannelTaskStatus.
type StatusEvent struct {
	TaskID   string        `json:"task_id"`
	Status   models.Status `json:"status"`
	Message  string        `json:"message"`
	VideoURL *string       `json:"video_url"`
}

// NewStatusEvent builds the event for a task snapshot.
func NewStatusEvent(t models.Task) StatusEvent {
	return StatusEvent{
		TaskID:   t.ID,
		Status:   t.Status,
		Message:  t.Message,
		VideoURL: t.VideoURL,
	}
}

// ---
// HELPER FUNCTIONS
// ---

// Marshal creates a JSON payload for an event.
func Marshal(payload interface{}) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
