package videos

import (
	"net/http"

	"github.com/drewmudry/visium-api/models"
	"github.com/drewmudry/visium-api/tasks"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Submitter accepts a prompt and starts the background work for it.
type Submitter interface {
	Submit(prompt string) (models.Task, error)
}

type Handler struct {
	Tasks     tasks.Registry
	Submitter Submitter
	Logger    *zap.Logger
}

func NewHandler(registry tasks.Registry, submitter Submitter, logger *zap.Logger) *Handler {
	return &Handler{Tasks: registry, Submitter: submitter, Logger: logger}
}

// RegisterRoutes mounts the /video group on r.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	videoRoutes := r.Group("/video")
	{
		videoRoutes.POST("/create", h.CreateVideo)
		videoRoutes.GET("/status/:task_id", h.GetVideoStatus)
	}
}

func (h *Handler) CreateVideo(c *gin.Context) {
	var req models.VideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := h.Submitter.Submit(req.Prompt)
	if err != nil {
		h.Logger.Error("submit video task", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start video generation task"})
		return
	}

	c.JSON(http.StatusAccepted, models.TaskCreationResponse{
		Message:   "Video generation task started.",
		TaskID:    task.ID,
		StatusURL: "/video/status/" + task.ID,
	})
}

func (h *Handler) GetVideoStatus(c *gin.Context) {
	task, ok := h.Tasks.Get(c.Param("task_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task ID not found."})
		return
	}
	c.JSON(http.StatusOK, task.StatusResponse())
}
