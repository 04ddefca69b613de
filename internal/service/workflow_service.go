package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/report-revision-api/internal/dto"
	"github.com/noah-isme/report-revision-api/internal/models"
	"github.com/noah-isme/report-revision-api/internal/repository"
	appErrors "github.com/noah-isme/report-revision-api/pkg/errors"
)

type instanceStore interface {
	instanceReader
	Create(ctx context.Context, instance *models.DocumentInstance, sections []models.Section, revisions []models.Revision) error
	Transition(ctx context.Context, params models.TransitionParams) (*models.DocumentInstance, error)
	AppendEvent(ctx context.Context, event models.WorkflowEvent) error
	ListEvents(ctx context.Context, instanceID string) ([]models.WorkflowEvent, error)
}

type transition struct {
	from []models.WorkflowState
	to   models.WorkflowState
}

var workflowTransitions = map[models.WorkflowAction]transition{
	models.ActionSubmit:            {from: []models.WorkflowState{models.WorkflowDraft}, to: models.WorkflowSubmitted},
	models.ActionTechnicalApprove:  {from: []models.WorkflowState{models.WorkflowSubmitted}, to: models.WorkflowTechnicalApproved},
	models.ActionConsolidate:       {from: []models.WorkflowState{models.WorkflowTechnicalApproved}, to: models.WorkflowConsolidated},
	models.ActionPublishingApprove: {from: []models.WorkflowState{models.WorkflowConsolidated}, to: models.WorkflowPublishingApproved},
	models.ActionReject: {
		from: []models.WorkflowState{models.WorkflowSubmitted, models.WorkflowTechnicalApproved, models.WorkflowConsolidated, models.WorkflowPublishingApproved},
		to:   models.WorkflowDraft,
	},
}

// NextState reports the target of action from state, if the pair is valid.
// section_approve is an annotation and never has a target.
func NextState(action models.WorkflowAction, state models.WorkflowState) (models.WorkflowState, bool) {
	t, ok := workflowTransitions[action]
	if !ok {
		return "", false
	}
	for _, from := range t.from {
		if from == state {
			return t.to, true
		}
	}
	return "", false
}

func gatedAction(action models.WorkflowAction) bool {
	return action == models.ActionConsolidate || action == models.ActionPublishingApprove
}

// WorkflowService is the document state machine.
type WorkflowService struct {
	repo      instanceStore
	versions  *VersionStore
	readiness ReadinessEvaluator
	attempts  int
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// WorkflowServiceOption configures the service.
type WorkflowServiceOption func(*WorkflowService)

// WithReadinessEvaluator gates consolidate and publishing_approve.
func WithReadinessEvaluator(evaluator ReadinessEvaluator) WorkflowServiceOption {
	return func(s *WorkflowService) {
		if evaluator != nil {
			s.readiness = evaluator
		}
	}
}

// WithTransitionAttempts bounds how often a transition is re-evaluated after
// losing a race on the instance state.
func WithTransitionAttempts(attempts int) WorkflowServiceOption {
	return func(s *WorkflowService) {
		if attempts > 0 {
			s.attempts = attempts
		}
	}
}

// NewWorkflowService constructs the service.
func NewWorkflowService(repo instanceStore, versions *VersionStore, metrics *MetricsService, logger *zap.Logger, opts ...WorkflowServiceOption) *WorkflowService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &WorkflowService{
		repo:      repo,
		versions:  versions,
		readiness: AlwaysReady{},
		attempts:  3,
		metrics:   metrics,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Apply runs a workflow action. Invalid (action, state) pairs fail with
// INVALID_TRANSITION and leave both state and event log untouched.
func (s *WorkflowService) Apply(ctx context.Context, instanceID string, req dto.WorkflowActionRequest, actor string) (*dto.WorkflowResult, error) {
	action := models.WorkflowAction(strings.TrimSpace(string(req.Action)))
	if action == models.ActionSectionApprove {
		return s.approveSection(ctx, instanceID, req, actor)
	}
	if _, known := workflowTransitions[action]; !known {
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "unknown workflow action"), map[string]interface{}{
			"action": string(action),
		})
	}

	var lastState models.WorkflowState
	for attempt := 0; attempt < s.attempts; attempt++ {
		instance, err := loadInstance(ctx, s.repo, instanceID)
		if err != nil {
			return nil, err
		}
		lastState = instance.Status

		target, ok := NextState(action, instance.Status)
		if !ok {
			s.metrics.RecordWorkflowTransition(string(action), "invalid")
			return nil, invalidTransition(action, instance.Status)
		}

		if gatedAction(action) {
			ready, reason, err := s.readiness.Ready(ctx, instance, action)
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to evaluate readiness")
			}
			if !ready {
				s.metrics.RecordWorkflowTransition(string(action), "not_ready")
				return nil, appErrors.WithDetails(appErrors.ErrNotReady, map[string]interface{}{
					"action": string(action),
					"state":  string(instance.Status),
					"reason": reason,
				})
			}
		}

		now := s.now()
		params := models.TransitionParams{
			InstanceID: instanceID,
			From:       instance.Status,
			To:         target,
			IsPublic:   instance.IsPublic,
			Event:      s.newEvent(instanceID, action, instance.Status, target, actor, nil, req.Comment, now),
		}
		switch action {
		case models.ActionPublishingApprove:
			params.IsPublic = true
			params.FreezeAt = &now
		case models.ActionReject:
			params.IsPublic = false
		}

		updated, err := s.repo.Transition(ctx, params)
		if err != nil {
			if errors.Is(err, repository.ErrStaleState) {
				s.logger.Debug("workflow transition lost race",
					zap.String("instance_id", instanceID),
					zap.String("action", string(action)),
					zap.Int("attempt", attempt+1))
				continue
			}
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "document instance not found")
			}
			s.logger.Error("workflow transition failed", zap.String("instance_id", instanceID), zap.Error(err))
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply workflow action")
		}

		s.metrics.RecordWorkflowTransition(string(action), "applied")
		s.logger.Info("workflow transition applied",
			zap.String("instance_id", instanceID),
			zap.String("action", string(action)),
			zap.String("from", string(instance.Status)),
			zap.String("to", string(target)),
			zap.String("actor", actor))
		return &dto.WorkflowResult{Instance: *updated, Event: params.Event}, nil
	}

	s.metrics.RecordWorkflowTransition(string(action), "contended")
	return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrInvalidTransition, "workflow state changed concurrently; reload and retry"), map[string]interface{}{
		"action": string(action),
		"state":  string(lastState),
	})
}

func (s *WorkflowService) approveSection(ctx context.Context, instanceID string, req dto.WorkflowActionRequest, actor string) (*dto.WorkflowResult, error) {
	code := strings.TrimSpace(req.SectionCode)
	if code == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "sectionCode is required for section_approve")
	}
	instance, err := loadInstance(ctx, s.repo, instanceID)
	if err != nil {
		return nil, err
	}
	if _, err := s.versions.GetCurrent(ctx, instanceID, code); err != nil {
		return nil, err
	}

	event := s.newEvent(instanceID, models.ActionSectionApprove, instance.Status, instance.Status, actor, &code, req.Comment, s.now())
	if err := s.repo.AppendEvent(ctx, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record section approval")
	}
	s.metrics.RecordWorkflowTransition(string(models.ActionSectionApprove), "applied")
	s.logger.Info("section approved", zap.String("instance_id", instanceID), zap.String("section_code", code), zap.String("actor", actor))
	return &dto.WorkflowResult{Instance: *instance, Event: event}, nil
}

// Events returns the instance's workflow log in recording order.
func (s *WorkflowService) Events(ctx context.Context, instanceID string) ([]models.WorkflowEvent, error) {
	if _, err := loadInstance(ctx, s.repo, instanceID); err != nil {
		return nil, err
	}
	events, err := s.repo.ListEvents(ctx, instanceID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list workflow events")
	}
	return events, nil
}

func (s *WorkflowService) newEvent(instanceID string, action models.WorkflowAction, from, to models.WorkflowState, actor string, sectionCode *string, comment string, at time.Time) models.WorkflowEvent {
	event := models.WorkflowEvent{
		ID:          uuid.NewString(),
		InstanceID:  instanceID,
		Action:      action,
		FromState:   from,
		ToState:     to,
		Actor:       actor,
		SectionCode: sectionCode,
		CreatedAt:   at,
	}
	if trimmed := strings.TrimSpace(comment); trimmed != "" {
		event.Comment = &trimmed
	}
	return event
}

func invalidTransition(action models.WorkflowAction, state models.WorkflowState) error {
	return appErrors.WithDetails(appErrors.ErrInvalidTransition, map[string]interface{}{
		"action": string(action),
		"state":  string(state),
	})
}
