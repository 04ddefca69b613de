package handler

import (
	"context"
	"fmt"
	"iter"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/report-revision-api/internal/dto"
	"github.com/noah-isme/report-revision-api/internal/middleware"
	"github.com/noah-isme/report-revision-api/internal/models"
	"github.com/noah-isme/report-revision-api/internal/service"
	"github.com/noah-isme/report-revision-api/pkg/response"
)

type sectionService interface {
	GetSection(ctx context.Context, instanceID, code string) (*dto.SectionSnapshot, error)
	ListSections(ctx context.Context, instanceID string) ([]models.Section, error)
	SaveSection(ctx context.Context, instanceID, code string, content models.Content, baseVersion int, author string) (*models.AppendResult, error)
}

type revisionReader interface {
	ListRevisions(ctx context.Context, instanceID, code string, rng models.RevisionRange) (iter.Seq2[models.Revision, error], error)
	GetRevision(ctx context.Context, instanceID, code string, version int) (*models.Revision, error)
	DiffRevisions(ctx context.Context, instanceID, code string, from, to int) (*dto.RevisionDiff, error)
}

type historyExporter interface {
	ExportRevisions(ctx context.Context, instanceID, code, format string) (*service.ExportResult, error)
	ExportEvents(ctx context.Context, instanceID, format string) (*service.ExportResult, error)
}

// SectionHandler exposes section content and history endpoints.
type SectionHandler struct {
	sections  sectionService
	revisions revisionReader
	exports   historyExporter
}

// NewSectionHandler constructs the handler.
func NewSectionHandler(sections sectionService, revisions revisionReader, exports historyExporter) *SectionHandler {
	return &SectionHandler{sections: sections, revisions: revisions, exports: exports}
}

// List godoc
// @Summary List sections of an instance
// @Tags Sections
// @Produce json
// @Param id path string true "Instance ID"
// @Success 200 {object} response.Envelope
// @Router /instances/{id}/sections [get]
func (h *SectionHandler) List(c *gin.Context) {
	sections, err := h.sections.ListSections(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "count", len(sections))
	response.JSON(c, http.StatusOK, sections, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Get current section content
// @Description Content and version are always returned together; send the version back as baseVersion when saving.
// @Tags Sections
// @Produce json
// @Param id path string true "Instance ID"
// @Param code path string true "Section code"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /instances/{id}/sections/{code} [get]
func (h *SectionHandler) Get(c *gin.Context) {
	snapshot, err := h.sections.GetSection(c.Request.Context(), c.Param("id"), c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("ETag", fmt.Sprintf("\"%d\"", snapshot.Version))
	response.JSON(c, http.StatusOK, snapshot, middleware.ExtractMeta(c))
}

// Save godoc
// @Summary Save section content
// @Description Stores the content as the next version when baseVersion is still current. A stale base fails with VERSION_CONFLICT and nothing is merged.
// @Tags Sections
// @Accept json
// @Produce json
// @Param id path string true "Instance ID"
// @Param code path string true "Section code"
// @Param payload body dto.SaveSectionRequest true "Section payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 423 {object} response.Envelope
// @Router /instances/{id}/sections/{code} [put]
func (h *SectionHandler) Save(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.SaveSectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid section payload"))
		return
	}
	result, err := h.sections.SaveSection(c.Request.Context(), c.Param("id"), c.Param("code"), req.Content, req.BaseVersion, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.SaveSectionResult{
		SectionSnapshot: dto.NewSectionSnapshot(result.Section),
		Revision:        result.Revision,
	}, middleware.ExtractMeta(c))
}

// Revisions godoc
// @Summary List section revisions
// @Tags Sections
// @Produce json
// @Param id path string true "Instance ID"
// @Param code path string true "Section code"
// @Param from query int false "Lowest version (inclusive)"
// @Param to query int false "Highest version (inclusive)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /instances/{id}/sections/{code}/revisions [get]
func (h *SectionHandler) Revisions(c *gin.Context) {
	var query dto.RevisionQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, bindError(err, "from and to must be integers"))
		return
	}
	seq, err := h.revisions.ListRevisions(c.Request.Context(), c.Param("id"), c.Param("code"), models.RevisionRange{From: query.From, To: query.To})
	if err != nil {
		response.Error(c, err)
		return
	}
	revisions, err := service.CollectRevisions(seq)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "count", len(revisions))
	response.JSON(c, http.StatusOK, revisions, middleware.ExtractMeta(c))
}

// Revision godoc
// @Summary Get one section revision
// @Tags Sections
// @Produce json
// @Param id path string true "Instance ID"
// @Param code path string true "Section code"
// @Param version path int true "Version"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /instances/{id}/sections/{code}/revisions/{version} [get]
func (h *SectionHandler) Revision(c *gin.Context) {
	version, err := pathVersion(c, "version")
	if err != nil {
		response.Error(c, err)
		return
	}
	rev, err := h.revisions.GetRevision(c.Request.Context(), c.Param("id"), c.Param("code"), version)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rev, middleware.ExtractMeta(c))
}

// Diff godoc
// @Summary Diff two section revisions
// @Tags Sections
// @Produce json
// @Param id path string true "Instance ID"
// @Param code path string true "Section code"
// @Param from query int true "Base version"
// @Param to query int true "Target version"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /instances/{id}/sections/{code}/diff [get]
func (h *SectionHandler) Diff(c *gin.Context) {
	var query dto.RevisionQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, bindError(err, "from and to must be integers"))
		return
	}
	diff, err := h.revisions.DiffRevisions(c.Request.Context(), c.Param("id"), c.Param("code"), query.From, query.To)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, diff, middleware.ExtractMeta(c))
}

// Export godoc
// @Summary Export section history
// @Tags Sections
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Instance ID"
// @Param code path string true "Section code"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Router /instances/{id}/sections/{code}/revisions/export [get]
func (h *SectionHandler) Export(c *gin.Context) {
	result, err := h.exports.ExportRevisions(c.Request.Context(), c.Param("id"), c.Param("code"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	writeExport(c, result)
}

func writeExport(c *gin.Context, result *service.ExportResult) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", result.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, result.ContentType, result.Payload)
}
