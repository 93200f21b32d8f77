package models

// VideoRequest is the body of POST /video/create.
type VideoRequest struct {
	Prompt string `json:"prompt" binding:"required,min=10,max=600"`
}

// TaskCreationResponse is returned once a task has been accepted.
type TaskCreationResponse struct {
	Message   string `json:"message"`
	TaskID    string `json:"task_id"`
	StatusURL string `json:"status_url"`
}

// TaskStatusResponse is the polling view of a task.
type TaskStatusResponse struct {
	Status   Status  `json:"status"`
	Message  string  `json:"message"`
	VideoURL *string `json:"video_url"`
}

// StatusResponse builds the polling view of t.
func (t Task) StatusResponse() TaskStatusResponse {
	c := t.Clone()
	return TaskStatusResponse{
		Status:   c.Status,
		Message:  c.Message,
		VideoURL: c.VideoURL,
	}
}
