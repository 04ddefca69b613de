package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/report-revision-api/internal/dto"
	"github.com/noah-isme/report-revision-api/internal/models"
	"github.com/noah-isme/report-revision-api/internal/repository"
	appErrors "github.com/noah-isme/report-revision-api/pkg/errors"
)

var allStates = []models.WorkflowState{
	models.WorkflowDraft,
	models.WorkflowSubmitted,
	models.WorkflowTechnicalApproved,
	models.WorkflowConsolidated,
	models.WorkflowPublishingApproved,
}

var transitionActions = []models.WorkflowAction{
	models.ActionSubmit,
	models.ActionTechnicalApprove,
	models.ActionConsolidate,
	models.ActionPublishingApprove,
	models.ActionReject,
}

// pathTo lists the actions that move a fresh draft into state.
func pathTo(state models.WorkflowState) []models.WorkflowAction {
	forward := []models.WorkflowAction{models.ActionSubmit, models.ActionTechnicalApprove, models.ActionConsolidate, models.ActionPublishingApprove}
	for i, s := range allStates {
		if s == state {
			return forward[:i]
		}
	}
	return nil
}

func TestNextStateTable(t *testing.T) {
	valid := map[models.WorkflowAction]map[models.WorkflowState]models.WorkflowState{
		models.ActionSubmit:            {models.WorkflowDraft: models.WorkflowSubmitted},
		models.ActionTechnicalApprove:  {models.WorkflowSubmitted: models.WorkflowTechnicalApproved},
		models.ActionConsolidate:       {models.WorkflowTechnicalApproved: models.WorkflowConsolidated},
		models.ActionPublishingApprove: {models.WorkflowConsolidated: models.WorkflowPublishingApproved},
		models.ActionReject: {
			models.WorkflowSubmitted:          models.WorkflowDraft,
			models.WorkflowTechnicalApproved:  models.WorkflowDraft,
			models.WorkflowConsolidated:       models.WorkflowDraft,
			models.WorkflowPublishingApproved: models.WorkflowDraft,
		},
	}
	for _, action := range append(transitionActions, models.ActionSectionApprove) {
		for _, state := range allStates {
			got, ok := NextState(action, state)
			want, wantOK := valid[action][state]
			require.Equal(t, wantOK, ok, "%s from %s", action, state)
			require.Equal(t, want, got, "%s from %s", action, state)
		}
	}
}

func TestWorkflowInvalidPairsLeaveStateAndLog(t *testing.T) {
	for _, state := range allStates {
		for _, action := range transitionActions {
			if _, ok := NextState(action, state); ok {
				continue
			}
			t.Run(string(action)+"_from_"+string(state), func(t *testing.T) {
				engine := newTestEngine(t)
				instance := engine.openCycle(t)
				for _, step := range pathTo(state) {
					engine.apply(t, instance.ID, step)
				}
				before, err := engine.Workflow.Events(context.Background(), instance.ID)
				require.NoError(t, err)

				_, err = engine.Workflow.Apply(context.Background(), instance.ID, dto.WorkflowActionRequest{Action: action}, "coordinator")
				require.ErrorIs(t, err, appErrors.ErrInvalidTransition)

				after, err := engine.Workflow.Events(context.Background(), instance.ID)
				require.NoError(t, err)
				require.Equal(t, before, after)
				current, err := engine.Instances.Get(context.Background(), instance.ID)
				require.NoError(t, err)
				require.Equal(t, state, current.Status)
			})
		}
	}
}

func TestWorkflowRejectFromSubmittedUnlocksSections(t *testing.T) {
	engine := newTestEngine(t)
	instance := engine.openCycle(t)
	ctx := context.Background()

	engine.apply(t, instance.ID, models.ActionSubmit)
	_, err := engine.Sections.SaveSection(ctx, instance.ID, "findings", models.Content{"a": 1}, 1, "alice")
	require.ErrorIs(t, err, appErrors.ErrSectionLocked)

	result, err := engine.Workflow.Apply(ctx, instance.ID, dto.WorkflowActionRequest{Action: models.ActionReject, Comment: " needs sources "}, "lead")
	require.NoError(t, err)
	require.Equal(t, models.WorkflowDraft, result.Instance.Status)
	require.Equal(t, models.WorkflowSubmitted, result.Event.FromState)
	require.Equal(t, models.WorkflowDraft, result.Event.ToState)
	require.Equal(t, "lead", result.Event.Actor)
	require.Equal(t, "needs sources", *result.Event.Comment)

	engine.save(t, instance.ID, "findings", models.Content{"a": 1}, 1, "alice")

	events, err := engine.Workflow.Events(ctx, instance.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, models.ActionSubmit, events[0].Action)
	require.Equal(t, models.ActionReject, events[1].Action)
}

func TestWorkflowConsolidatedLocksEditsButNotComments(t *testing.T) {
	engine := newTestEngine(t)
	instance := engine.openCycle(t)
	ctx := context.Background()
	for _, step := range pathTo(models.WorkflowConsolidated) {
		engine.apply(t, instance.ID, step)
	}

	_, err := engine.Sections.SaveSection(ctx, instance.ID, "findings", models.Content{"a": 1}, 1, "alice")
	require.ErrorIs(t, err, appErrors.ErrSectionLocked)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "consolidated", appErr.Details["state"])

	thread, err := engine.Threads.AddComment(ctx, instance.ID, "findings", dto.AddCommentRequest{JSONPath: "summary", Body: "late note"}, "alice")
	require.NoError(t, err)
	require.Equal(t, models.ThreadOpen, thread.Status)

	snapshot, err := engine.Sections.GetSection(ctx, instance.ID, "findings")
	require.NoError(t, err)
	require.True(t, snapshot.Section.Locked)
}

func TestWorkflowPublishingFreezesAndRejectKeepsFreeze(t *testing.T) {
	engine := newTestEngine(t)
	instance := engine.openCycle(t)
	ctx := context.Background()
	for _, step := range pathTo(models.WorkflowPublishingApproved) {
		engine.apply(t, instance.ID, step)
	}

	published, err := engine.Instances.Get(ctx, instance.ID)
	require.NoError(t, err)
	require.Equal(t, models.WorkflowPublishingApproved, published.Status)
	require.True(t, published.IsPublic)
	require.NotNil(t, published.FrozenAt)
	frozenAt := *published.FrozenAt

	rejected := engine.apply(t, instance.ID, models.ActionReject)
	require.Equal(t, models.WorkflowDraft, rejected.Instance.Status)
	require.False(t, rejected.Instance.IsPublic)
	require.NotNil(t, rejected.Instance.FrozenAt)
	require.True(t, frozenAt.Equal(*rejected.Instance.FrozenAt))
}

func TestWorkflowSectionApproveRecordsAnnotation(t *testing.T) {
	engine := newTestEngine(t)
	instance := engine.openCycle(t)
	ctx := context.Background()

	_, err := engine.Workflow.Apply(ctx, instance.ID, dto.WorkflowActionRequest{Action: models.ActionSectionApprove}, "lead")
	require.ErrorIs(t, err, appErrors.ErrValidation)
	_, err = engine.Workflow.Apply(ctx, instance.ID, dto.WorkflowActionRequest{Action: models.ActionSectionApprove, SectionCode: "appendix"}, "lead")
	require.ErrorIs(t, err, appErrors.ErrNotFound)

	result, err := engine.Workflow.Apply(ctx, instance.ID, dto.WorkflowActionRequest{Action: models.ActionSectionApprove, SectionCode: "findings"}, "lead")
	require.NoError(t, err)
	require.Equal(t, models.WorkflowDraft, result.Event.FromState)
	require.Equal(t, models.WorkflowDraft, result.Event.ToState)
	require.Equal(t, "findings", *result.Event.SectionCode)
	require.Equal(t, models.WorkflowDraft, result.Instance.Status)
}

func TestWorkflowUnknownActionIsValidationError(t *testing.T) {
	engine := newTestEngine(t)
	instance := engine.openCycle(t)
	_, err := engine.Workflow.Apply(context.Background(), instance.ID, dto.WorkflowActionRequest{Action: "archive"}, "lead")
	require.ErrorIs(t, err, appErrors.ErrValidation)
	_, err = engine.Workflow.Apply(context.Background(), "missing", dto.WorkflowActionRequest{Action: models.ActionSubmit}, "lead")
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestWorkflowSectionApprovalGate(t *testing.T) {
	engine := newTestEngine(t, withSectionApprovals())
	instance := engine.openCycle(t)
	ctx := context.Background()

	approve := func(code string) {
		_, err := engine.Workflow.Apply(ctx, instance.ID, dto.WorkflowActionRequest{Action: models.ActionSectionApprove, SectionCode: code}, "lead")
		require.NoError(t, err)
	}

	// Approvals recorded before the submit do not count.
	approve("findings")
	engine.apply(t, instance.ID, models.ActionSubmit)
	engine.apply(t, instance.ID, models.ActionTechnicalApprove)

	_, err := engine.Workflow.Apply(ctx, instance.ID, dto.WorkflowActionRequest{Action: models.ActionConsolidate}, "lead")
	require.ErrorIs(t, err, appErrors.ErrNotReady)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	reason, _ := appErr.Details["reason"].(string)
	require.True(t, strings.Contains(reason, "exec-summary"), reason)
	require.True(t, strings.Contains(reason, "findings"), reason)

	approve("findings")
	_, err = engine.Workflow.Apply(ctx, instance.ID, dto.WorkflowActionRequest{Action: models.ActionConsolidate}, "lead")
	require.ErrorIs(t, err, appErrors.ErrNotReady)

	approve("exec-summary")
	result := engine.apply(t, instance.ID, models.ActionConsolidate)
	require.Equal(t, models.WorkflowConsolidated, result.Instance.Status)
}

func TestWorkflowReadinessFuncGate(t *testing.T) {
	engine := newTestEngine(t)
	instance := engine.openCycle(t)
	ready := false
	svc := NewWorkflowService(engine.store.Instances(), engine.Versions, nil, nil,
		WithReadinessEvaluator(ReadinessFunc(func(_ context.Context, _ *models.DocumentInstance, action models.WorkflowAction) (bool, string, error) {
			return ready, "waiting on " + string(action), nil
		})))
	ctx := context.Background()

	for _, step := range pathTo(models.WorkflowTechnicalApproved) {
		_, err := svc.Apply(ctx, instance.ID, dto.WorkflowActionRequest{Action: step}, "lead")
		require.NoError(t, err)
	}
	_, err := svc.Apply(ctx, instance.ID, dto.WorkflowActionRequest{Action: models.ActionConsolidate}, "lead")
	require.ErrorIs(t, err, appErrors.ErrNotReady)

	ready = true
	_, err = svc.Apply(ctx, instance.ID, dto.WorkflowActionRequest{Action: models.ActionConsolidate}, "lead")
	require.NoError(t, err)
}

type contendedInstanceStore struct {
	instanceStore
	transitions int
}

func (s *contendedInstanceStore) Transition(context.Context, models.TransitionParams) (*models.DocumentInstance, error) {
	s.transitions++
	return nil, repository.ErrStaleState
}

func TestWorkflowGivesUpAfterBoundedRetries(t *testing.T) {
	engine := newTestEngine(t)
	instance := engine.openCycle(t)
	store := &contendedInstanceStore{instanceStore: engine.store.Instances()}
	svc := NewWorkflowService(store, engine.Versions, nil, nil, WithTransitionAttempts(4))

	_, err := svc.Apply(context.Background(), instance.ID, dto.WorkflowActionRequest{Action: models.ActionSubmit}, "lead")
	require.ErrorIs(t, err, appErrors.ErrInvalidTransition)
	require.Equal(t, 4, store.transitions)

	events, err := engine.Workflow.Events(context.Background(), instance.ID)
	require.NoError(t, err)
	require.Empty(t, events)
}
