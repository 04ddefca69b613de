package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/report-revision-api/internal/dto"
	"github.com/noah-isme/report-revision-api/internal/models"
	"github.com/noah-isme/report-revision-api/internal/repository"
	"github.com/noah-isme/report-revision-api/pkg/config"
)

type testEngine struct {
	store   *repository.MemoryStore
	metrics *MetricsService
	*Services
}

type engineOption func(*config.Config)

func withReopenOnReply(reopen bool) engineOption {
	return func(cfg *config.Config) { cfg.Comments.ReopenOnReply = reopen }
}

func withSectionApprovals() engineOption {
	return func(cfg *config.Config) { cfg.Workflow.RequireSectionApprovals = true }
}

func newTestEngine(t *testing.T, opts ...engineOption) *testEngine {
	t.Helper()
	cfg := &config.Config{
		Sections: config.SectionsConfig{Catalog: []string{"exec-summary", "findings"}},
		Comments: config.CommentsConfig{ReopenOnReply: true},
		Workflow: config.WorkflowConfig{TransitionAttempts: 3},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	store := repository.NewMemoryStore()
	metrics := NewMetricsService()
	stores := Stores{
		Instances:   store.Instances(),
		Sections:    store.Sections(),
		Suggestions: store.Suggestions(),
		Threads:     store.Threads(),
	}
	return &testEngine{store: store, metrics: metrics, Services: NewServices(stores, cfg, nil, metrics, zap.NewNop())}
}

func (e *testEngine) openCycle(t *testing.T) *models.DocumentInstance {
	t.Helper()
	instance, err := e.Instances.OpenCycle(context.Background(), dto.OpenCycleRequest{Cycle: "2026", VersionLabel: "v1"}, "coordinator")
	require.NoError(t, err)
	return instance
}

func (e *testEngine) save(t *testing.T, instanceID, code string, content models.Content, base int, author string) *models.AppendResult {
	t.Helper()
	result, err := e.Sections.SaveSection(context.Background(), instanceID, code, content, base, author)
	require.NoError(t, err)
	return result
}

func (e *testEngine) apply(t *testing.T, instanceID string, action models.WorkflowAction) *dto.WorkflowResult {
	t.Helper()
	result, err := e.Workflow.Apply(context.Background(), instanceID, dto.WorkflowActionRequest{Action: action}, "coordinator")
	require.NoError(t, err)
	return result
}
