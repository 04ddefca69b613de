package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/report-revision-api/internal/dto"
	"github.com/noah-isme/report-revision-api/internal/middleware"
	"github.com/noah-isme/report-revision-api/internal/models"
	"github.com/noah-isme/report-revision-api/pkg/response"
)

type threadService interface {
	AddComment(ctx context.Context, instanceID, code string, req dto.AddCommentRequest, author string) (*models.CommentThread, error)
	List(ctx context.Context, instanceID, code string) ([]models.CommentThread, error)
	SetStatus(ctx context.Context, instanceID, id string, status models.ThreadStatus, actor string) (*models.CommentThread, error)
}

// ThreadHandler exposes comment thread endpoints.
type ThreadHandler struct {
	service threadService
}

// NewThreadHandler constructs the handler.
func NewThreadHandler(service threadService) *ThreadHandler {
	return &ThreadHandler{service: service}
}

// AddComment godoc
// @Summary Comment on a section field
// @Description Appends to threadId when given, otherwise opens a new thread anchored at jsonPath.
// @Tags Threads
// @Accept json
// @Produce json
// @Param id path string true "Instance ID"
// @Param code path string true "Section code"
// @Param payload body dto.AddCommentRequest true "Comment payload"
// @Success 201 {object} response.Envelope
// @Router /instances/{id}/sections/{code}/comments [post]
func (h *ThreadHandler) AddComment(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.AddCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid comment payload"))
		return
	}
	thread, err := h.service.AddComment(c.Request.Context(), c.Param("id"), c.Param("code"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, thread)
}

// List godoc
// @Summary List comment threads of a section
// @Tags Threads
// @Produce json
// @Param id path string true "Instance ID"
// @Param code path string true "Section code"
// @Success 200 {object} response.Envelope
// @Router /instances/{id}/sections/{code}/threads [get]
func (h *ThreadHandler) List(c *gin.Context) {
	threads, err := h.service.List(c.Request.Context(), c.Param("id"), c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "count", len(threads))
	response.JSON(c, http.StatusOK, threads, middleware.ExtractMeta(c))
}

// SetStatus godoc
// @Summary Resolve or reopen a thread
// @Tags Threads
// @Accept json
// @Produce json
// @Param id path string true "Instance ID"
// @Param threadId path string true "Thread ID"
// @Param payload body dto.SetThreadStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Router /instances/{id}/threads/{threadId}/status [put]
func (h *ThreadHandler) SetStatus(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.SetThreadStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid status payload"))
		return
	}
	thread, err := h.service.SetStatus(c.Request.Context(), c.Param("id"), c.Param("threadId"), req.Status, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, thread, middleware.ExtractMeta(c))
}
