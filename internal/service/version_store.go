package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/report-revision-api/internal/dto"
	"github.com/noah-isme/report-revision-api/internal/models"
	"github.com/noah-isme/report-revision-api/internal/repository"
	appErrors "github.com/noah-isme/report-revision-api/pkg/errors"
	"github.com/noah-isme/report-revision-api/pkg/patch"
)

const defaultRevisionPageSize = 100

type sectionStore interface {
	GetSection(ctx context.Context, instanceID, code string) (*models.Section, error)
	ListSections(ctx context.Context, instanceID string) ([]models.Section, error)
	AppendRevision(ctx context.Context, params models.AppendRevisionParams) (*models.AppendResult, error)
	ListRevisions(ctx context.Context, instanceID, code string, afterVersion, toVersion, limit int) ([]models.Revision, error)
	GetRevision(ctx context.Context, instanceID, code string, version int) (*models.Revision, error)
}

// VersionStore is the single writer of section content. Every accepted change
// goes through AppendRevision, whose check-and-increment is atomic in the
// underlying store.
type VersionStore struct {
	store    sectionStore
	cache    *CacheService
	metrics  *MetricsService
	group    singleflight.Group
	pageSize int
	logger   *zap.Logger
}

// VersionStoreOption configures the store.
type VersionStoreOption func(*VersionStore)

// WithSectionCache enables the read-through snapshot cache.
func WithSectionCache(cache *CacheService) VersionStoreOption {
	return func(s *VersionStore) {
		s.cache = cache
	}
}

// WithVersionStoreMetrics records store timings.
func WithVersionStoreMetrics(metrics *MetricsService) VersionStoreOption {
	return func(s *VersionStore) {
		s.metrics = metrics
	}
}

// WithRevisionPageSize sets how many revisions each history page fetches.
func WithRevisionPageSize(size int) VersionStoreOption {
	return func(s *VersionStore) {
		if size > 0 {
			s.pageSize = size
		}
	}
}

// NewVersionStore constructs the version store.
func NewVersionStore(store sectionStore, logger *zap.Logger, opts ...VersionStoreOption) *VersionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &VersionStore{store: store, pageSize: defaultRevisionPageSize, logger: logger}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// cachedSection is the cache payload. The top-level version lets the cache
// refuse to replace a newer snapshot with an older one.
type cachedSection struct {
	Version int            `json:"version"`
	Section models.Section `json:"section"`
}

func sectionCacheKey(instanceID, code string) string {
	return fmt.Sprintf("section:%s:%s", instanceID, code)
}

// GetCurrent returns the latest snapshot and version of a section. Reads may
// be served from the cache; write paths use Latest instead.
func (s *VersionStore) GetCurrent(ctx context.Context, instanceID, code string) (*models.Section, error) {
	key := sectionCacheKey(instanceID, code)
	var cached cachedSection
	if hit, _ := s.cache.Get(ctx, key, &cached); hit && cached.Section.CurrentVersion == cached.Version {
		return &cached.Section, nil
	}

	// The shared load must not fail for every waiter when the first caller's
	// request is cancelled.
	loadCtx := context.WithoutCancel(ctx)
	value, err, _ := s.group.Do(key, func() (interface{}, error) {
		section, err := s.Latest(loadCtx, instanceID, code)
		if err != nil {
			return nil, err
		}
		s.writeCache(ctx, section)
		return section, nil
	})
	if err != nil {
		return nil, err
	}
	// Callers coalesced by singleflight share one value.
	return cloneSection(value.(*models.Section))
}

// Latest reads the section directly from the store.
func (s *VersionStore) Latest(ctx context.Context, instanceID, code string) (*models.Section, error) {
	start := time.Now()
	section, err := s.store.GetSection(ctx, instanceID, code)
	s.metrics.ObserveStore("get_section", time.Since(start))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrNotFound, "section not found"), map[string]interface{}{
				"sectionCode": code,
			})
		}
		s.logger.Error("load section failed", zap.String("instance_id", instanceID), zap.String("section_code", code), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	return section, nil
}

// ListSections returns every section of an instance.
func (s *VersionStore) ListSections(ctx context.Context, instanceID string) ([]models.Section, error) {
	sections, err := s.store.ListSections(ctx, instanceID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sections")
	}
	return sections, nil
}

// AppendRevision stores params.Content at ExpectedVersion+1 when the section
// is still at ExpectedVersion and its instance is editable. It fails with
// VERSION_CONFLICT or SECTION_LOCKED otherwise. When params.Decision is set
// the suggestion is decided in the same write, or nothing is written and the
// call fails with ALREADY_DECIDED.
func (s *VersionStore) AppendRevision(ctx context.Context, params models.AppendRevisionParams) (*models.AppendResult, error) {
	start := time.Now()
	result, err := s.store.AppendRevision(ctx, params)
	s.metrics.ObserveStore("append_revision", time.Since(start))
	if err != nil {
		var conflict *repository.VersionConflictError
		var locked *repository.SectionLockedError
		switch {
		case errors.As(err, &conflict):
			// The cached snapshot may predate the winning write.
			_ = s.cache.Invalidate(ctx, sectionCacheKey(params.InstanceID, params.SectionCode))
			return nil, appErrors.WithDetails(appErrors.ErrVersionConflict, map[string]interface{}{
				"sectionCode":     params.SectionCode,
				"expectedVersion": conflict.Expected,
				"currentVersion":  conflict.Current,
			})
		case errors.As(err, &locked):
			return nil, appErrors.WithDetails(appErrors.ErrSectionLocked, map[string]interface{}{
				"sectionCode": params.SectionCode,
				"state":       string(locked.State),
			})
		case errors.Is(err, repository.ErrSuggestionDecided) && params.Decision != nil:
			return nil, appErrors.WithDetails(appErrors.ErrAlreadyDecided, map[string]interface{}{
				"suggestionId": params.Decision.ID,
			})
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrNotFound, "section not found"), map[string]interface{}{
				"sectionCode": params.SectionCode,
			})
		default:
			s.logger.Error("append revision failed",
				zap.String("instance_id", params.InstanceID),
				zap.String("section_code", params.SectionCode),
				zap.Error(err))
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store revision")
		}
	}

	s.writeCache(ctx, &result.Section)
	return result, nil
}

func (s *VersionStore) writeCache(ctx context.Context, section *models.Section) {
	if !s.cache.Enabled() {
		return
	}
	entry := cachedSection{Version: section.CurrentVersion, Section: *section}
	_ = s.cache.Set(ctx, sectionCacheKey(section.InstanceID, section.Code), section.CurrentVersion, entry)
}

// ListRevisions returns a lazy ascending iterator over the section history.
// Zero bounds are open; non-zero bounds are inclusive. Each range over the
// returned sequence restarts from the lower bound.
func (s *VersionStore) ListRevisions(ctx context.Context, instanceID, code string, rng models.RevisionRange) (iter.Seq2[models.Revision, error], error) {
	if err := validateRange(rng); err != nil {
		return nil, err
	}
	if _, err := s.Latest(ctx, instanceID, code); err != nil {
		return nil, err
	}

	pageSize := s.pageSize
	return func(yield func(models.Revision, error) bool) {
		after := 0
		if rng.From > 0 {
			after = rng.From - 1
		}
		for {
			page, err := s.store.ListRevisions(ctx, instanceID, code, after, rng.To, pageSize)
			if err != nil {
				yield(models.Revision{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list revisions"))
				return
			}
			for _, rev := range page {
				if !yield(rev, nil) {
					return
				}
				after = rev.Version
			}
			if len(page) < pageSize {
				return
			}
		}
	}, nil
}

// GetRevision returns one stored revision.
func (s *VersionStore) GetRevision(ctx context.Context, instanceID, code string, version int) (*models.Revision, error) {
	rev, err := s.store.GetRevision(ctx, instanceID, code, version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrNotFound, "revision not found"), map[string]interface{}{
				"sectionCode": code,
				"version":     version,
			})
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load revision")
	}
	return rev, nil
}

// DiffRevisions computes the key-level patch that turns revision from into revision to.
func (s *VersionStore) DiffRevisions(ctx context.Context, instanceID, code string, from, to int) (*dto.RevisionDiff, error) {
	if from < 1 || to < 1 {
		return nil, appErrors.Clone(appErrors.ErrInvalidRange, "both from and to versions are required")
	}
	if err := validateRange(models.RevisionRange{From: from, To: to}); err != nil {
		return nil, err
	}
	before, err := s.GetRevision(ctx, instanceID, code, from)
	if err != nil {
		return nil, err
	}
	after, err := s.GetRevision(ctx, instanceID, code, to)
	if err != nil {
		return nil, err
	}
	diff, err := patch.Diff(before.Content, after.Content)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to diff revisions")
	}
	return &dto.RevisionDiff{
		SectionCode: code,
		From:        from,
		To:          to,
		Patch:       diff,
		ChangedKeys: patch.ChangedKeys(diff),
	}, nil
}

// CollectRevisions drains a revision sequence.
func CollectRevisions(seq iter.Seq2[models.Revision, error]) ([]models.Revision, error) {
	revisions := make([]models.Revision, 0)
	for rev, err := range seq {
		if err != nil {
			return nil, err
		}
		revisions = append(revisions, rev)
	}
	return revisions, nil
}

func validateRange(rng models.RevisionRange) error {
	if rng.From < 0 || rng.To < 0 || (rng.From > 0 && rng.To > 0 && rng.From > rng.To) {
		return appErrors.WithDetails(appErrors.ErrInvalidRange, map[string]interface{}{
			"from": rng.From,
			"to":   rng.To,
		})
	}
	return nil
}

func cloneSection(in *models.Section) (*models.Section, error) {
	content, err := patch.Clone(in.Content)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to copy section")
	}
	out := *in
	out.Content = content
	return &out, nil
}
