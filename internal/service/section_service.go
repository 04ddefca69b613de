package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/report-revision-api/internal/dto"
	"github.com/noah-isme/report-revision-api/internal/models"
	appErrors "github.com/noah-isme/report-revision-api/pkg/errors"
	"github.com/noah-isme/report-revision-api/pkg/patch"
)

type instanceReader interface {
	GetByID(ctx context.Context, id string) (*models.DocumentInstance, error)
}

// SectionService is the optimistic-concurrency write path for direct edits.
type SectionService struct {
	instances instanceReader
	versions  *VersionStore
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// NewSectionService constructs the service.
func NewSectionService(instances instanceReader, versions *VersionStore, metrics *MetricsService, logger *zap.Logger) *SectionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SectionService{
		instances: instances,
		versions:  versions,
		metrics:   metrics,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SaveSection stores content as the next version of the section when
// baseVersion is still current. It never merges: a stale base fails with
// VERSION_CONFLICT and the caller must refetch.
func (s *SectionService) SaveSection(ctx context.Context, instanceID, code string, content models.Content, baseVersion int, author string) (*models.AppendResult, error) {
	if content == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "content is required")
	}
	if baseVersion < 1 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "baseVersion must be at least 1")
	}

	instance, err := loadInstance(ctx, s.instances, instanceID)
	if err != nil {
		return nil, err
	}
	if !instance.SectionsEditable() {
		s.metrics.RecordSectionSave("locked")
		s.logger.Debug("save rejected: section locked",
			zap.String("instance_id", instanceID),
			zap.String("section_code", code),
			zap.String("state", string(instance.Status)))
		return nil, lockedError(instance, code)
	}

	current, err := s.versions.Latest(ctx, instanceID, code)
	if err != nil {
		return nil, err
	}
	if current.CurrentVersion != baseVersion {
		s.metrics.RecordSectionSave("conflict")
		return nil, appErrors.WithDetails(appErrors.ErrVersionConflict, map[string]interface{}{
			"sectionCode":     code,
			"expectedVersion": baseVersion,
			"currentVersion":  current.CurrentVersion,
		})
	}

	next := patch.Normalize(content)
	changes, err := patch.Diff(current.Content, next)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "content is not valid structured data")
	}

	result, err := s.versions.AppendRevision(ctx, models.AppendRevisionParams{
		InstanceID:      instanceID,
		SectionCode:     code,
		ExpectedVersion: baseVersion,
		Content:         next,
		ChangedKeys:     patch.ChangedKeys(changes),
		Author:          author,
		CreatedAt:       s.now(),
	})
	if err != nil {
		switch {
		case errors.Is(err, appErrors.ErrVersionConflict):
			s.metrics.RecordSectionSave("conflict")
			s.logger.Debug("save lost version race", zap.String("instance_id", instanceID), zap.String("section_code", code), zap.Int("base_version", baseVersion))
		case errors.Is(err, appErrors.ErrSectionLocked):
			s.metrics.RecordSectionSave("locked")
			s.logger.Debug("save lost race with workflow transition", zap.String("instance_id", instanceID), zap.String("section_code", code))
		default:
			s.metrics.RecordSectionSave("error")
		}
		return nil, err
	}

	s.metrics.RecordSectionSave("accepted")
	s.logger.Info("section saved",
		zap.String("instance_id", instanceID),
		zap.String("section_code", code),
		zap.Int("version", result.Section.CurrentVersion),
		zap.Strings("changed_keys", result.Revision.ChangedKeys),
		zap.String("author", author))
	result.Section.Locked = false
	return result, nil
}

// GetSection returns the current snapshot with its derived lock flag.
func (s *SectionService) GetSection(ctx context.Context, instanceID, code string) (*dto.SectionSnapshot, error) {
	instance, err := loadInstance(ctx, s.instances, instanceID)
	if err != nil {
		return nil, err
	}
	section, err := s.versions.GetCurrent(ctx, instanceID, code)
	if err != nil {
		return nil, err
	}
	section.Locked = !instance.SectionsEditable()
	snapshot := dto.NewSectionSnapshot(*section)
	return &snapshot, nil
}

// ListSections returns every section of the instance with derived lock flags.
func (s *SectionService) ListSections(ctx context.Context, instanceID string) ([]models.Section, error) {
	instance, err := loadInstance(ctx, s.instances, instanceID)
	if err != nil {
		return nil, err
	}
	sections, err := s.versions.ListSections(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	locked := !instance.SectionsEditable()
	for i := range sections {
		sections[i].Locked = locked
	}
	return sections, nil
}

func loadInstance(ctx context.Context, instances instanceReader, id string) (*models.DocumentInstance, error) {
	instance, err := instances.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document instance not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document instance")
	}
	return instance, nil
}

func lockedError(instance *models.DocumentInstance, code string) error {
	return appErrors.WithDetails(appErrors.ErrSectionLocked, map[string]interface{}{
		"sectionCode": code,
		"state":       string(instance.Status),
	})
}
