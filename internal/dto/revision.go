package dto

import (
	"time"

	"github.com/noah-isme/report-revision-api/internal/models"
)

// OpenCycleRequest opens a new document instance for a reporting cycle.
type OpenCycleRequest struct {
	Cycle        string `json:"cycle" binding:"required" validate:"required"`
	VersionLabel string `json:"versionLabel" binding:"required" validate:"required"`
}

// SaveSectionRequest is a direct edit. BaseVersion is the version the client read.
type SaveSectionRequest struct {
	Content     models.Content `json:"content" binding:"required" validate:"required"`
	BaseVersion int            `json:"baseVersion" binding:"required,min=1" validate:"required,min=1"`
}

// SubmitSuggestionRequest proposes a patch for review.
type SubmitSuggestionRequest struct {
	BaseVersion int          `json:"baseVersion" binding:"required,min=1" validate:"required,min=1"`
	Patch       models.Patch `json:"patch" binding:"required" validate:"required,min=1"`
	Rationale   string       `json:"rationale" validate:"max=4000"`
}

// DecideSuggestionRequest carries a reviewer decision.
type DecideSuggestionRequest struct {
	Action models.SuggestionAction `json:"action" binding:"required" validate:"required,oneof=accept reject"`
}

// AddCommentRequest appends to ThreadID or, when empty, opens a thread at JSONPath.
type AddCommentRequest struct {
	ThreadID string `json:"threadId"`
	JSONPath string `json:"jsonPath" validate:"required_without=ThreadID"`
	Body     string `json:"body" binding:"required" validate:"required,max=8000"`
}

// SetThreadStatusRequest toggles thread resolution.
type SetThreadStatusRequest struct {
	Status models.ThreadStatus `json:"status" binding:"required" validate:"required,oneof=open resolved"`
}

// WorkflowActionRequest applies a workflow action to an instance.
type WorkflowActionRequest struct {
	Action      models.WorkflowAction `json:"action" binding:"required" validate:"required"`
	SectionCode string                `json:"sectionCode"`
	Comment     string                `json:"comment" validate:"max=4000"`
}

// RevisionQuery bounds a history listing; zero means unbounded.
type RevisionQuery struct {
	From int `form:"from"`
	To   int `form:"to"`
}

// SectionSnapshot is the read contract: content always travels with its version.
type SectionSnapshot struct {
	Section models.Section `json:"section"`
	Content models.Content `json:"content"`
	Version int            `json:"version"`
}

// NewSectionSnapshot builds the read contract for a section.
func NewSectionSnapshot(section models.Section) SectionSnapshot {
	return SectionSnapshot{Section: section, Content: section.Content, Version: section.CurrentVersion}
}

// SaveSectionResult is the snapshot after an accepted save plus the revision it created.
type SaveSectionResult struct {
	SectionSnapshot
	Revision models.Revision `json:"revision"`
}

// RevisionDiff is the key-level difference between two stored revisions.
type RevisionDiff struct {
	SectionCode string       `json:"sectionCode"`
	From        int          `json:"from"`
	To          int          `json:"to"`
	Patch       models.Patch `json:"patch"`
	ChangedKeys []string     `json:"changedKeys"`
}

// SuggestionPreview shows what accepting a suggestion would do right now.
type SuggestionPreview struct {
	Suggestion     models.Suggestion `json:"suggestion"`
	CurrentVersion int               `json:"currentVersion"`
	Stale          bool              `json:"stale"`
	Effective      models.Patch      `json:"effective"`
	ChangedKeys    []string          `json:"changedKeys"`
	Merged         models.Content    `json:"merged"`
}

// WorkflowResult is the outcome of an applied workflow action.
type WorkflowResult struct {
	Instance models.DocumentInstance `json:"instance"`
	Event    models.WorkflowEvent    `json:"event"`
}

// SystemMetrics summarises process-level counters.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cacheHitRatio"`
	CacheHits                uint64    `json:"cacheHits"`
	CacheMisses              uint64    `json:"cacheMisses"`
	RequestsTotal            uint64    `json:"requestsTotal"`
	AverageRequestDurationMs float64   `json:"averageRequestDurationMs"`
	SectionSaves             uint64    `json:"sectionSaves"`
	VersionConflicts         uint64    `json:"versionConflicts"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generatedAt"`
}
