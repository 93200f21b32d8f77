// Package client talks to the video service over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/drewmudry/visium-api/models"
)

// ErrNotFound is returned when the server does not know a task.
var ErrNotFound = errors.New("task not found")

// APIError is any other non-success response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// CreateVideo submits prompt and returns the accepted task.
func (c *Client) CreateVideo(ctx context.Context, prompt string) (models.TaskCreationResponse, error) {
	var out models.TaskCreationResponse
	body, err := json.Marshal(models.VideoRequest{Prompt: prompt})
	if err != nil {
		return out, err
	}
	err = c.do(ctx, http.MethodPost, "/video/create", bytes.NewReader(body), http.StatusAccepted, &out)
	return out, err
}

// Status fetches the current state of a task.
func (c *Client) Status(ctx context.Context, taskID string) (models.TaskStatusResponse, error) {
	var out models.TaskStatusResponse
	err := c.do(ctx, http.MethodGet, "/video/status/"+url.PathEscape(taskID), nil, http.StatusOK, &out)
	return out, err
}

// Wait polls until the task reaches a terminal state or ctx is done.
func (c *Client) Wait(ctx context.Context, taskID string, interval time.Duration, onUpdate func(models.TaskStatusResponse)) (models.TaskStatusResponse, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last models.TaskStatusResponse
	for {
		status, err := c.Status(ctx, taskID)
		if err != nil {
			return last, err
		}
		if onUpdate != nil && (status.Status != last.Status || status.Message != last.Message) {
			onUpdate(status)
		}
		last = status
		if status.Status.Terminal() {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
		}
	}
}

// URL resolves a server-relative path such as a video_url.
func (c *Client) URL(path string) string {
	return c.BaseURL + path
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, want int, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != want {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
