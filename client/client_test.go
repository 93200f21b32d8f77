package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/drewmudry/visium-api/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateVideo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/video/create", r.URL.Path)
		var req models.VideoRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Show a blue circle transforming into a red square.", req.Prompt)

		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(models.TaskCreationResponse{
			Message: "Video generation task started.", TaskID: "t1", StatusURL: "/video/status/t1",
		})
	}))
	defer srv.Close()

	resp, err := New(srv.URL+"/").CreateVideo(context.Background(), "Show a blue circle transforming into a red square.")
	require.NoError(t, err)
	assert.Equal(t, "t1", resp.TaskID)
}

func TestCreateVideoValidationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"prompt too short"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).CreateVideo(context.Background(), "short")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "prompt too short", apiErr.Message)
}

func TestStatusNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := New(srv.URL).Status(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestWaitPollsUntilTerminal(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		resp := models.TaskStatusResponse{Status: models.StatusRendering, Message: "Video rendering in progress."}
		if n >= 3 {
			url := "/static/videos/t1.mp4"
			resp = models.TaskStatusResponse{Status: models.StatusCompleted, Message: "done", VideoURL: &url}
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	var updates []models.Status
	c := New(srv.URL)
	got, err := c.Wait(context.Background(), "t1", time.Millisecond, func(s models.TaskStatusResponse) {
		updates = append(updates, s.Status)
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	require.NotNil(t, got.VideoURL)
	assert.Equal(t, srv.URL+"/static/videos/t1.mp4", c.URL(*got.VideoURL))
	assert.Equal(t, []models.Status{models.StatusRendering, models.StatusCompleted}, updates)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestWaitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(models.TaskStatusResponse{Status: models.StatusPending})
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := New(srv.URL).Wait(ctx, "t1", 10*time.Millisecond, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
