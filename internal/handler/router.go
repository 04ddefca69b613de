package handler

import (
	"github.com/gin-gonic/gin"
)

// Handlers groups the API handlers mounted by RegisterRoutes.
type Handlers struct {
	Instances   *InstanceHandler
	Sections    *SectionHandler
	Suggestions *SuggestionHandler
	Threads     *ThreadHandler
	Workflow    *WorkflowHandler
}

// RegisterRoutes mounts the revision API under group. Callers attach the
// actor middleware to group.
func RegisterRoutes(group *gin.RouterGroup, h Handlers) {
	instances := group.Group("/instances")
	instances.POST("", h.Instances.Create)
	instances.GET("/:id", h.Instances.Get)

	instance := instances.Group("/:id")
	instance.GET("/sections", h.Sections.List)

	section := instance.Group("/sections/:code")
	section.GET("", h.Sections.Get)
	section.PUT("", h.Sections.Save)
	section.GET("/revisions", h.Sections.Revisions)
	section.GET("/revisions/export", h.Sections.Export)
	section.GET("/revisions/:version", h.Sections.Revision)
	section.GET("/diff", h.Sections.Diff)
	section.POST("/suggestions", h.Suggestions.Submit)
	section.GET("/suggestions", h.Suggestions.List)
	section.POST("/comments", h.Threads.AddComment)
	section.GET("/threads", h.Threads.List)

	instance.GET("/suggestions/:suggestionId", h.Suggestions.Get)
	instance.GET("/suggestions/:suggestionId/preview", h.Suggestions.Preview)
	instance.POST("/suggestions/:suggestionId/decision", h.Suggestions.Decide)

	instance.PUT("/threads/:threadId/status", h.Threads.SetStatus)

	instance.POST("/workflow", h.Workflow.Apply)
	instance.GET("/workflow/events", h.Workflow.Events)
	instance.GET("/workflow/events/export", h.Workflow.ExportEvents)
}

// RegisterSystemRoutes mounts health, readiness and metrics endpoints.
func RegisterSystemRoutes(r gin.IRoutes, metrics *MetricsHandler, prometheus bool) {
	r.GET("/health", metrics.Health)
	r.GET("/ready", metrics.Ready)
	if prometheus {
		r.GET("/metrics", metrics.Prometheus)
		r.GET("/metrics/summary", metrics.Summary)
	}
}
