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

type instanceService interface {
	OpenCycle(ctx context.Context, req dto.OpenCycleRequest, actor string) (*models.DocumentInstance, error)
	Get(ctx context.Context, id string) (*models.DocumentInstance, error)
}

// InstanceHandler exposes reporting cycle endpoints.
type InstanceHandler struct {
	service instanceService
}

// NewInstanceHandler constructs the handler.
func NewInstanceHandler(service instanceService) *InstanceHandler {
	return &InstanceHandler{service: service}
}

// Create godoc
// @Summary Open a reporting cycle
// @Description Creates a draft document instance with every catalog section at version 1.
// @Tags Instances
// @Accept json
// @Produce json
// @Param payload body dto.OpenCycleRequest true "Cycle payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /instances [post]
func (h *InstanceHandler) Create(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.OpenCycleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid cycle payload"))
		return
	}
	instance, err := h.service.OpenCycle(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, instance)
}

// Get godoc
// @Summary Get a document instance
// @Tags Instances
// @Produce json
// @Param id path string true "Instance ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /instances/{id} [get]
func (h *InstanceHandler) Get(c *gin.Context) {
	instance, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, instance, middleware.ExtractMeta(c))
}
