package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/report-revision-api/internal/dto"
	"github.com/noah-isme/report-revision-api/internal/models"
	appErrors "github.com/noah-isme/report-revision-api/pkg/errors"
)

// InstanceService opens reporting cycles and seeds their section catalog.
type InstanceService struct {
	repo      instanceStore
	catalog   []string
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewInstanceService constructs the service. catalog is the fixed list of
// section codes every instance receives.
func NewInstanceService(repo instanceStore, catalog []string, validate *validator.Validate, logger *zap.Logger) *InstanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstanceService{
		repo:      repo,
		catalog:   append([]string(nil), catalog...),
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// OpenCycle creates a draft instance with every catalog section at version 1.
func (s *InstanceService) OpenCycle(ctx context.Context, req dto.OpenCycleRequest, actor string) (*models.DocumentInstance, error) {
	req.Cycle = strings.TrimSpace(req.Cycle)
	req.VersionLabel = strings.TrimSpace(req.VersionLabel)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cycle and versionLabel are required")
	}
	if len(s.catalog) == 0 {
		return nil, appErrors.Clone(appErrors.ErrInternal, "section catalog is empty")
	}

	now := s.now()
	instance := &models.DocumentInstance{
		ID:           uuid.NewString(),
		Cycle:        req.Cycle,
		VersionLabel: req.VersionLabel,
		Status:       models.WorkflowDraft,
		CreatedBy:    actor,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	sections := make([]models.Section, 0, len(s.catalog))
	revisions := make([]models.Revision, 0, len(s.catalog))
	for _, code := range s.catalog {
		sections = append(sections, models.Section{
			InstanceID:     instance.ID,
			Code:           code,
			Title:          SectionTitle(code),
			Content:        models.Content{},
			CurrentVersion: 1,
			LastEditor:     actor,
			UpdatedAt:      now,
		})
		revisions = append(revisions, models.Revision{
			ID:          uuid.NewString(),
			InstanceID:  instance.ID,
			SectionCode: code,
			Version:     1,
			Content:     models.Content{},
			Author:      actor,
			ChangedKeys: models.StringList{},
			CreatedAt:   now,
		})
	}

	if err := s.repo.Create(ctx, instance, sections, revisions); err != nil {
		s.logger.Error("open cycle failed", zap.String("cycle", req.Cycle), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open reporting cycle")
	}
	s.logger.Info("reporting cycle opened",
		zap.String("instance_id", instance.ID),
		zap.String("cycle", instance.Cycle),
		zap.Int("sections", len(sections)),
		zap.String("actor", actor))
	return instance, nil
}

// Get returns one instance.
func (s *InstanceService) Get(ctx context.Context, id string) (*models.DocumentInstance, error) {
	return loadInstance(ctx, s.repo, id)
}

// SectionTitle turns a section code such as exec-summary into "Exec Summary".
func SectionTitle(code string) string {
	parts := strings.FieldsFunc(code, func(r rune) bool { return r == '-' || r == '_' })
	for i, part := range parts {
		parts[i] = strings.ToUpper(part[:1]) + part[1:]
	}
	return strings.Join(parts, " ")
}
