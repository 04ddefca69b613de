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

type suggestionService interface {
	Submit(ctx context.Context, instanceID, code string, req dto.SubmitSuggestionRequest, author string) (*models.Suggestion, error)
	List(ctx context.Context, instanceID, code string) ([]models.Suggestion, error)
	Get(ctx context.Context, instanceID, id string) (*models.Suggestion, error)
	Preview(ctx context.Context, instanceID, id string) (*dto.SuggestionPreview, error)
	Decide(ctx context.Context, instanceID, id string, action models.SuggestionAction, decider string) (*models.Suggestion, error)
}

// SuggestionHandler exposes the suggestion review endpoints.
type SuggestionHandler struct {
	service suggestionService
}

// NewSuggestionHandler constructs the handler.
func NewSuggestionHandler(service suggestionService) *SuggestionHandler {
	return &SuggestionHandler{service: service}
}

// Submit godoc
// @Summary Submit a suggestion
// @Tags Suggestions
// @Accept json
// @Produce json
// @Param id path string true "Instance ID"
// @Param code path string true "Section code"
// @Param payload body dto.SubmitSuggestionRequest true "Suggestion payload"
// @Success 201 {object} response.Envelope
// @Failure 423 {object} response.Envelope
// @Router /instances/{id}/sections/{code}/suggestions [post]
func (h *SuggestionHandler) Submit(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.SubmitSuggestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid suggestion payload"))
		return
	}
	suggestion, err := h.service.Submit(c.Request.Context(), c.Param("id"), c.Param("code"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, suggestion)
}

// List godoc
// @Summary List suggestions of a section
// @Tags Suggestions
// @Produce json
// @Param id path string true "Instance ID"
// @Param code path string true "Section code"
// @Success 200 {object} response.Envelope
// @Router /instances/{id}/sections/{code}/suggestions [get]
func (h *SuggestionHandler) List(c *gin.Context) {
	suggestions, err := h.service.List(c.Request.Context(), c.Param("id"), c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "count", len(suggestions))
	response.JSON(c, http.StatusOK, suggestions, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Get a suggestion
// @Tags Suggestions
// @Produce json
// @Param id path string true "Instance ID"
// @Param suggestionId path string true "Suggestion ID"
// @Success 200 {object} response.Envelope
// @Router /instances/{id}/suggestions/{suggestionId} [get]
func (h *SuggestionHandler) Get(c *gin.Context) {
	suggestion, err := h.service.Get(c.Request.Context(), c.Param("id"), c.Param("suggestionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, suggestion, middleware.ExtractMeta(c))
}

// Preview godoc
// @Summary Preview a suggestion against current content
// @Tags Suggestions
// @Produce json
// @Param id path string true "Instance ID"
// @Param suggestionId path string true "Suggestion ID"
// @Success 200 {object} response.Envelope
// @Router /instances/{id}/suggestions/{suggestionId}/preview [get]
func (h *SuggestionHandler) Preview(c *gin.Context) {
	preview, err := h.service.Preview(c.Request.Context(), c.Param("id"), c.Param("suggestionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, preview, middleware.ExtractMeta(c))
}

// Decide godoc
// @Summary Accept or reject a suggestion
// @Tags Suggestions
// @Accept json
// @Produce json
// @Param id path string true "Instance ID"
// @Param suggestionId path string true "Suggestion ID"
// @Param payload body dto.DecideSuggestionRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /instances/{id}/suggestions/{suggestionId}/decision [post]
func (h *SuggestionHandler) Decide(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.DecideSuggestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid decision payload"))
		return
	}
	suggestion, err := h.service.Decide(c.Request.Context(), c.Param("id"), c.Param("suggestionId"), req.Action, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, suggestion, middleware.ExtractMeta(c))
}
