package service

import (
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/report-revision-api/pkg/config"
)

// Stores is one consistent set of persistence backends. Postgres and memory
// repositories both satisfy these.
type Stores struct {
	Instances   instanceStore
	Sections    sectionStore
	Suggestions suggestionStore
	Threads     threadStore
}

// Services bundles the engine components wired over one set of stores.
type Services struct {
	Versions    *VersionStore
	Instances   *InstanceService
	Sections    *SectionService
	Suggestions *SuggestionService
	Threads     *ThreadService
	Workflow    *WorkflowService
	Exports     *ExportService
}

// NewServices wires every component. cache and metrics may be nil.
func NewServices(stores Stores, cfg *config.Config, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *Services {
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := validator.New()

	versions := NewVersionStore(stores.Sections, logger.Named("versions"),
		WithSectionCache(cache),
		WithVersionStoreMetrics(metrics))
	sections := NewSectionService(stores.Instances, versions, metrics, logger.Named("sections"))

	workflowOpts := []WorkflowServiceOption{WithTransitionAttempts(cfg.Workflow.TransitionAttempts)}
	if cfg.Workflow.RequireSectionApprovals {
		workflowOpts = append(workflowOpts, WithReadinessEvaluator(NewSectionApprovalGate(stores.Sections, stores.Instances)))
	}
	workflow := NewWorkflowService(stores.Instances, versions, metrics, logger.Named("workflow"), workflowOpts...)

	return &Services{
		Versions:    versions,
		Instances:   NewInstanceService(stores.Instances, cfg.Sections.Catalog, validate, logger.Named("instances")),
		Sections:    sections,
		Suggestions: NewSuggestionService(stores.Suggestions, stores.Instances, versions, validate, metrics, logger.Named("suggestions")),
		Threads: NewThreadService(stores.Threads, stores.Instances, versions, validate, metrics, logger.Named("threads"),
			WithReopenOnReply(cfg.Comments.ReopenOnReply)),
		Workflow: workflow,
		Exports:  NewExportService(versions, workflow, logger.Named("exports"), nil, nil),
	}
}
