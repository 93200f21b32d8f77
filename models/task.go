package models

import "time"

// Status is the lifecycle state of a video task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRendering Status = "rendering"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transitions are expected.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Task is one prompt-to-video job.
type Task struct {
	ID        string    `json:"task_id"`
	Status    Status    `json:"status"`
	Message   string    `json:"message"`
	VideoURL  *string   `json:"video_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a copy that shares no memory with t.
func (t Task) Clone() Task {
	if t.VideoURL != nil {
		url := *t.VideoURL
		t.VideoURL = &url
	}
	return t
}
