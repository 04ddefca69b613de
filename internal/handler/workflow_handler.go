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

type workflowService interface {
	Apply(ctx context.Context, instanceID string, req dto.WorkflowActionRequest, actor string) (*dto.WorkflowResult, error)
	Events(ctx context.Context, instanceID string) ([]models.WorkflowEvent, error)
}

// WorkflowHandler exposes the document state machine.
type WorkflowHandler struct {
	service workflowService
	exports historyExporter
}

// NewWorkflowHandler constructs the handler.
func NewWorkflowHandler(service workflowService, exports historyExporter) *WorkflowHandler {
	return &WorkflowHandler{service: service, exports: exports}
}

// Apply godoc
// @Summary Apply a workflow action
// @Description submit, technical_approve, consolidate, publishing_approve, reject or section_approve.
// @Tags Workflow
// @Accept json
// @Produce json
// @Param id path string true "Instance ID"
// @Param payload body dto.WorkflowActionRequest true "Workflow action"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /instances/{id}/workflow [post]
func (h *WorkflowHandler) Apply(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.WorkflowActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid workflow payload"))
		return
	}
	result, err := h.service.Apply(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, middleware.ExtractMeta(c))
}

// Events godoc
// @Summary List workflow events
// @Tags Workflow
// @Produce json
// @Param id path string true "Instance ID"
// @Success 200 {object} response.Envelope
// @Router /instances/{id}/workflow/events [get]
func (h *WorkflowHandler) Events(c *gin.Context) {
	events, err := h.service.Events(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "count", len(events))
	response.JSON(c, http.StatusOK, events, middleware.ExtractMeta(c))
}

// ExportEvents godoc
// @Summary Export the workflow event log
// @Tags Workflow
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Instance ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Router /instances/{id}/workflow/events/export [get]
func (h *WorkflowHandler) ExportEvents(c *gin.Context) {
	result, err := h.exports.ExportEvents(c.Request.Context(), c.Param("id"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	writeExport(c, result)
}
