package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/report-revision-api/internal/dto"
	"github.com/noah-isme/report-revision-api/internal/models"
	appErrors "github.com/noah-isme/report-revision-api/pkg/errors"
	"github.com/noah-isme/report-revision-api/pkg/patch"
)

type suggestionStore interface {
	Create(ctx context.Context, suggestion *models.Suggestion) error
	GetByID(ctx context.Context, id string) (*models.Suggestion, error)
	ListBySection(ctx context.Context, instanceID, code string) ([]models.Suggestion, error)
	MarkDecided(ctx context.Context, params models.DecideSuggestionParams) (*models.Suggestion, error)
}

// SuggestionService manages proposed patches and their review decisions.
type SuggestionService struct {
	repo      suggestionStore
	instances instanceReader
	versions  *VersionStore
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	locks     *keyedMutex
	now       func() time.Time
}

// NewSuggestionService constructs the service.
func NewSuggestionService(repo suggestionStore, instances instanceReader, versions *VersionStore, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *SuggestionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SuggestionService{
		repo:      repo,
		instances: instances,
		versions:  versions,
		validator: validate,
		metrics:   metrics,
		logger:    logger,
		locks:     newKeyedMutex(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Submit stores a pending suggestion. The base version is recorded but not
// checked; staleness only matters when the suggestion is decided.
func (s *SuggestionService) Submit(ctx context.Context, instanceID, code string, req dto.SubmitSuggestionRequest, author string) (*models.Suggestion, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid suggestion payload")
	}

	instance, err := loadInstance(ctx, s.instances, instanceID)
	if err != nil {
		return nil, err
	}
	if !instance.SectionsEditable() {
		return nil, lockedError(instance, code)
	}
	if _, err := s.versions.GetCurrent(ctx, instanceID, code); err != nil {
		return nil, err
	}

	suggestion := &models.Suggestion{
		ID:          uuid.NewString(),
		InstanceID:  instanceID,
		SectionCode: code,
		BaseVersion: req.BaseVersion,
		Patch:       req.Patch,
		Rationale:   req.Rationale,
		Author:      author,
		Status:      models.SuggestionPending,
		CreatedAt:   s.now(),
	}
	if err := s.repo.Create(ctx, suggestion); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store suggestion")
	}
	s.logger.Info("suggestion submitted",
		zap.String("suggestion_id", suggestion.ID),
		zap.String("section_code", code),
		zap.Int("base_version", req.BaseVersion),
		zap.String("author", author))
	return suggestion, nil
}

// Decide accepts or rejects a pending suggestion. Acceptance applies the patch
// on top of the latest content, not the suggestion's base version. The new
// revision and the decision are stored in one atomic write, so a suggestion
// decided concurrently by another process is never applied twice.
func (s *SuggestionService) Decide(ctx context.Context, instanceID, id string, action models.SuggestionAction, decider string) (*models.Suggestion, error) {
	if action != models.SuggestionActionAccept && action != models.SuggestionActionReject {
		return nil, appErrors.Clone(appErrors.ErrValidation, "action must be accept or reject")
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	suggestion, err := s.Get(ctx, instanceID, id)
	if err != nil {
		return nil, err
	}
	if suggestion.Status != models.SuggestionPending {
		s.metrics.RecordSuggestionDecision(string(action), "already_decided")
		return nil, alreadyDecided(suggestion)
	}

	params := models.DecideSuggestionParams{ID: id, DecidedBy: decider, DecidedAt: s.now()}
	if action == models.SuggestionActionReject {
		params.Status = models.SuggestionRejected
		return s.reject(ctx, suggestion, params)
	}
	params.Status = models.SuggestionAccepted
	return s.accept(ctx, suggestion, params)
}

func (s *SuggestionService) accept(ctx context.Context, suggestion *models.Suggestion, params models.DecideSuggestionParams) (*models.Suggestion, error) {
	action := string(models.SuggestionActionAccept)
	instance, err := loadInstance(ctx, s.instances, suggestion.InstanceID)
	if err != nil {
		return nil, err
	}
	if !instance.SectionsEditable() {
		return nil, lockedError(instance, suggestion.SectionCode)
	}

	current, err := s.versions.Latest(ctx, suggestion.InstanceID, suggestion.SectionCode)
	if err != nil {
		return nil, err
	}
	merged, err := patch.Apply(current.Content, suggestion.Patch)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply suggestion")
	}
	next := patch.Normalize(merged)
	changes, err := patch.Diff(current.Content, next)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to diff suggestion")
	}

	result, err := s.versions.AppendRevision(ctx, models.AppendRevisionParams{
		InstanceID:      suggestion.InstanceID,
		SectionCode:     suggestion.SectionCode,
		ExpectedVersion: current.CurrentVersion,
		Content:         next,
		ChangedKeys:     patch.ChangedKeys(changes),
		Author:          params.DecidedBy,
		CreatedAt:       params.DecidedAt,
		RevisionID:      uuid.NewString(),
		Decision:        &params,
	})
	if err != nil {
		switch {
		case errors.Is(err, appErrors.ErrVersionConflict):
			s.metrics.RecordSuggestionDecision(action, "stale")
			s.logger.Debug("suggestion accept lost version race", zap.String("suggestion_id", suggestion.ID))
			details := map[string]interface{}{"sectionCode": suggestion.SectionCode, "baseVersion": suggestion.BaseVersion}
			var appErr *appErrors.Error
			if errors.As(err, &appErr) {
				for k, v := range appErr.Details {
					details[k] = v
				}
			}
			return nil, appErrors.WithDetails(appErrors.ErrSuggestionStale, details)
		case errors.Is(err, appErrors.ErrAlreadyDecided):
			s.metrics.RecordSuggestionDecision(action, "already_decided")
			if fresh, getErr := s.Get(ctx, suggestion.InstanceID, suggestion.ID); getErr == nil {
				suggestion = fresh
			}
			return nil, alreadyDecided(suggestion)
		}
		return nil, err
	}

	s.metrics.RecordSuggestionDecision(action, "applied")
	s.logger.Info("suggestion decided",
		zap.String("suggestion_id", suggestion.ID),
		zap.String("status", string(models.SuggestionAccepted)),
		zap.Int("version", result.Revision.Version),
		zap.String("decided_by", params.DecidedBy))
	return result.Suggestion, nil
}

func (s *SuggestionService) reject(ctx context.Context, suggestion *models.Suggestion, params models.DecideSuggestionParams) (*models.Suggestion, error) {
	action := string(models.SuggestionActionReject)
	decided, err := s.repo.MarkDecided(ctx, params)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.RecordSuggestionDecision(action, "already_decided")
			if fresh, getErr := s.Get(ctx, suggestion.InstanceID, suggestion.ID); getErr == nil {
				suggestion = fresh
			}
			return nil, alreadyDecided(suggestion)
		}
		s.logger.Error("record suggestion decision failed", zap.String("suggestion_id", params.ID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record decision")
	}

	s.metrics.RecordSuggestionDecision(action, "applied")
	s.logger.Info("suggestion decided",
		zap.String("suggestion_id", decided.ID),
		zap.String("status", string(decided.Status)),
		zap.String("decided_by", params.DecidedBy))
	return decided, nil
}

// Get returns one suggestion of the instance.
func (s *SuggestionService) Get(ctx context.Context, instanceID, id string) (*models.Suggestion, error) {
	suggestion, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "suggestion not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load suggestion")
	}
	if suggestion.InstanceID != instanceID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "suggestion not found")
	}
	return suggestion, nil
}

// List returns the section's suggestions, pending first, each group by creation time.
func (s *SuggestionService) List(ctx context.Context, instanceID, code string) ([]models.Suggestion, error) {
	if _, err := s.versions.GetCurrent(ctx, instanceID, code); err != nil {
		return nil, err
	}
	suggestions, err := s.repo.ListBySection(ctx, instanceID, code)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list suggestions")
	}
	return suggestions, nil
}

// Preview shows the effective change of accepting the suggestion against the
// current content, and whether the section moved past its base version.
func (s *SuggestionService) Preview(ctx context.Context, instanceID, id string) (*dto.SuggestionPreview, error) {
	suggestion, err := s.Get(ctx, instanceID, id)
	if err != nil {
		return nil, err
	}
	current, err := s.versions.GetCurrent(ctx, instanceID, suggestion.SectionCode)
	if err != nil {
		return nil, err
	}
	merged, err := patch.Apply(current.Content, suggestion.Patch)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply suggestion")
	}
	effective, err := patch.Diff(current.Content, merged)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to diff suggestion")
	}
	return &dto.SuggestionPreview{
		Suggestion:     *suggestion,
		CurrentVersion: current.CurrentVersion,
		Stale:          suggestion.BaseVersion != current.CurrentVersion,
		Effective:      effective,
		ChangedKeys:    patch.ChangedKeys(effective),
		Merged:         merged,
	}, nil
}

func alreadyDecided(suggestion *models.Suggestion) error {
	return appErrors.WithDetails(appErrors.ErrAlreadyDecided, map[string]interface{}{
		"suggestionId": suggestion.ID,
		"status":       string(suggestion.Status),
	})
}
