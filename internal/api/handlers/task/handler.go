package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-crawler/internal/api/respond"
	"github.com/aliskhannn/image-crawler/internal/model"
	"github.com/aliskhannn/image-crawler/internal/publisher"
	tasksvc "github.com/aliskhannn/image-crawler/internal/service/task"
)

// service defines the interface for submitting crawl tasks.
type service interface {
	Submit(task model.ImageTask) (model.ImageTask, error)
}

// Handler provides HTTP handlers for task submission.
type Handler struct {
	service service
}

// NewHandler creates a new Handler with the given service.
func NewHandler(s service) *Handler {
	return &Handler{service: s}
}

// SubmitRequest is the body accepted by Submit.
type SubmitRequest struct {
	URL        string `json:"url"`
	Identifier string `json:"identifier"`
	Source     string `json:"source"`
}

// Submit queues an image for crawling and responds with the accepted task.
func (h *Handler) Submit(c *ginext.Context) {
	var req SubmitRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		zlog.Logger.Err(err).Msg("failed to decode task request")
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("invalid request body"))
		return
	}

	task, err := h.service.Submit(model.ImageTask{
		URL:        req.URL,
		Identifier: req.Identifier,
		Source:     req.Source,
	})
	if err != nil {
		switch {
		case errors.Is(err, tasksvc.ErrMissingURL):
			respond.Fail(c, http.StatusBadRequest, err)
		case errors.Is(err, publisher.ErrBufferFull):
			zlog.Logger.Warn().Str("url", req.URL).Msg("publish buffer full, rejecting task")
			respond.Fail(c, http.StatusServiceUnavailable, fmt.Errorf("queue is full, try again later"))
		default:
			zlog.Logger.Err(err).Msg("failed to submit task")
			respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to submit task"))
		}
		return
	}

	respond.Accepted(c, task)
}
