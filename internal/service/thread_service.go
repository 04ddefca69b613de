package service

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/report-revision-api/internal/dto"
	"github.com/noah-isme/report-revision-api/internal/models"
	"github.com/noah-isme/report-revision-api/internal/repository"
	appErrors "github.com/noah-isme/report-revision-api/pkg/errors"
)

// jsonPathPattern accepts dotted keys with optional numeric indexes, e.g. rows[2].notes.
var jsonPathPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*(\[[0-9]+\])*(\.[A-Za-z_][A-Za-z0-9_-]*(\[[0-9]+\])*)*$`)

type threadStore interface {
	Create(ctx context.Context, thread *models.CommentThread, first models.Comment) error
	GetByID(ctx context.Context, id string) (*models.CommentThread, error)
	AppendComment(ctx context.Context, params models.AppendCommentParams) (bool, error)
	SetStatus(ctx context.Context, id string, status models.ThreadStatus, at time.Time) error
	ListBySection(ctx context.Context, instanceID, code string) ([]models.CommentThread, error)
}

// ThreadService anchors discussions to fields of a section. Threads stay
// writable in every workflow state.
type ThreadService struct {
	repo          threadStore
	instances     instanceReader
	versions      *VersionStore
	validator     *validator.Validate
	metrics       *MetricsService
	logger        *zap.Logger
	reopenOnReply bool
	now           func() time.Time
}

// ThreadServiceOption configures the service.
type ThreadServiceOption func(*ThreadService)

// WithReopenOnReply selects the reply-to-resolved policy. When false, replies
// to a resolved thread fail with THREAD_RESOLVED until it is reopened.
func WithReopenOnReply(reopen bool) ThreadServiceOption {
	return func(s *ThreadService) {
		s.reopenOnReply = reopen
	}
}

// NewThreadService constructs the service.
func NewThreadService(repo threadStore, instances instanceReader, versions *VersionStore, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger, opts ...ThreadServiceOption) *ThreadService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ThreadService{
		repo:          repo,
		instances:     instances,
		versions:      versions,
		validator:     validate,
		metrics:       metrics,
		logger:        logger,
		reopenOnReply: true,
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// AddComment appends to req.ThreadID or opens a new thread at req.JSONPath.
func (s *ThreadService) AddComment(ctx context.Context, instanceID, code string, req dto.AddCommentRequest, author string) (*models.CommentThread, error) {
	req.ThreadID = strings.TrimSpace(req.ThreadID)
	req.JSONPath = strings.TrimSpace(req.JSONPath)
	req.Body = strings.TrimSpace(req.Body)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid comment payload")
	}
	if _, err := loadInstance(ctx, s.instances, instanceID); err != nil {
		return nil, err
	}

	now := s.now()
	comment := models.Comment{ID: uuid.NewString(), Author: author, Body: req.Body, CreatedAt: now}

	if req.ThreadID != "" {
		thread, err := s.load(ctx, instanceID, req.ThreadID)
		if err != nil {
			return nil, err
		}
		if thread.SectionCode != code {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "comment thread not found")
		}
		reopened, err := s.repo.AppendComment(ctx, models.AppendCommentParams{
			ThreadID:    thread.ID,
			Comment:     comment,
			Reopen:      s.reopenOnReply,
			RequireOpen: !s.reopenOnReply,
		})
		if err != nil {
			switch {
			case errors.Is(err, repository.ErrThreadResolved):
				return nil, appErrors.WithDetails(appErrors.ErrThreadResolved, map[string]interface{}{"threadId": thread.ID})
			case errors.Is(err, sql.ErrNoRows):
				return nil, appErrors.Clone(appErrors.ErrNotFound, "comment thread not found")
			default:
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to append comment")
			}
		}
		s.metrics.RecordCommentOperation("reply")
		if reopened {
			s.metrics.RecordCommentOperation("reopen")
			s.logger.Info("thread reopened by reply", zap.String("thread_id", thread.ID), zap.String("author", author))
		}
		return s.load(ctx, instanceID, thread.ID)
	}

	if !jsonPathPattern.MatchString(req.JSONPath) {
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "jsonPath is not a valid field path"), map[string]interface{}{
			"jsonPath": req.JSONPath,
		})
	}
	if _, err := s.versions.GetCurrent(ctx, instanceID, code); err != nil {
		return nil, err
	}

	thread := &models.CommentThread{
		ID:          uuid.NewString(),
		InstanceID:  instanceID,
		SectionCode: code,
		JSONPath:    req.JSONPath,
		Status:      models.ThreadOpen,
		CreatedBy:   author,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	comment.ThreadID = thread.ID
	comment.Position = 1
	if err := s.repo.Create(ctx, thread, comment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create comment thread")
	}
	s.metrics.RecordCommentOperation("open")
	thread.Comments = []models.Comment{comment}
	return thread, nil
}

// SetStatus moves a thread to status. Setting the current status is a no-op.
func (s *ThreadService) SetStatus(ctx context.Context, instanceID, id string, status models.ThreadStatus, actor string) (*models.CommentThread, error) {
	if status != models.ThreadOpen && status != models.ThreadResolved {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be open or resolved")
	}
	thread, err := s.load(ctx, instanceID, id)
	if err != nil {
		return nil, err
	}
	if thread.Status == status {
		return thread, nil
	}
	if err := s.repo.SetStatus(ctx, id, status, s.now()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "comment thread not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update thread status")
	}
	s.metrics.RecordCommentOperation(string(status))
	s.logger.Info("thread status changed", zap.String("thread_id", id), zap.String("status", string(status)), zap.String("actor", actor))
	return s.load(ctx, instanceID, id)
}

// List returns the section's threads with their ordered comments.
func (s *ThreadService) List(ctx context.Context, instanceID, code string) ([]models.CommentThread, error) {
	if _, err := s.versions.GetCurrent(ctx, instanceID, code); err != nil {
		return nil, err
	}
	threads, err := s.repo.ListBySection(ctx, instanceID, code)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list comment threads")
	}
	return threads, nil
}

func (s *ThreadService) load(ctx context.Context, instanceID, id string) (*models.CommentThread, error) {
	thread, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "comment thread not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load comment thread")
	}
	if thread.InstanceID != instanceID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "comment thread not found")
	}
	return thread, nil
}
