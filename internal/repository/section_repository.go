package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/report-revision-api/internal/models"
)

const sectionColumns = `instance_id, code, title, content, current_version, last_editor, updated_at`

const revisionColumns = `id, instance_id, section_code, version, content, author, changed_keys, created_at`

// SectionRepository is the PostgreSQL version store for section content.
type SectionRepository struct {
	db *sqlx.DB
}

// NewSectionRepository constructs the repository.
func NewSectionRepository(db *sqlx.DB) *SectionRepository {
	return &SectionRepository{db: db}
}

// GetSection returns the current snapshot of a section or sql.ErrNoRows.
func (r *SectionRepository) GetSection(ctx context.Context, instanceID, code string) (*models.Section, error) {
	const query = `SELECT ` + sectionColumns + ` FROM report_sections WHERE instance_id = $1 AND code = $2`
	var section models.Section
	if err := r.db.GetContext(ctx, &section, query, instanceID, code); err != nil {
		return nil, err
	}
	return &section, nil
}

// ListSections returns all sections of an instance ordered by catalog position.
func (r *SectionRepository) ListSections(ctx context.Context, instanceID string) ([]models.Section, error) {
	const query = `SELECT ` + sectionColumns + ` FROM report_sections WHERE instance_id = $1 ORDER BY position ASC, code ASC`
	var sections []models.Section
	if err := r.db.SelectContext(ctx, &sections, query, instanceID); err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	return sections, nil
}

// AppendRevision advances the section to ExpectedVersion+1 and stores the new
// revision in one transaction. The instance row is share-locked first, so a
// workflow transition either commits before the append (and the append sees
// the locked state) or waits for it. The UPDATE is conditional on the
// expected version, so concurrent callers with the same expectation serialize
// on the row lock and all but one observe a VersionConflictError. A Decision
// is claimed in the same transaction; a suggestion that is no longer pending
// rolls the append back.
func (r *SectionRepository) AppendRevision(ctx context.Context, params models.AppendRevisionParams) (result *models.AppendResult, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin append revision: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var status models.WorkflowState
	const lockInstance = `SELECT status FROM report_instances WHERE id = $1 FOR SHARE`
	if err = tx.GetContext(ctx, &status, lockInstance, params.InstanceID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("lock instance: %w", err)
	}
	owner := models.DocumentInstance{Status: status}
	if !owner.SectionsEditable() {
		return nil, &SectionLockedError{SectionCode: params.SectionCode, State: status}
	}

	const update = `UPDATE report_sections
	SET content = $1, current_version = current_version + 1, last_editor = $2, updated_at = $3
	WHERE instance_id = $4 AND code = $5 AND current_version = $6
	RETURNING ` + sectionColumns
	var section models.Section
	err = tx.QueryRowxContext(ctx, update, params.Content, params.Author, params.CreatedAt,
		params.InstanceID, params.SectionCode, params.ExpectedVersion).StructScan(&section)
	if errors.Is(err, sql.ErrNoRows) {
		var current int
		const lookup = `SELECT current_version FROM report_sections WHERE instance_id = $1 AND code = $2`
		if lookupErr := tx.GetContext(ctx, &current, lookup, params.InstanceID, params.SectionCode); lookupErr != nil {
			if errors.Is(lookupErr, sql.ErrNoRows) {
				return nil, sql.ErrNoRows
			}
			return nil, fmt.Errorf("lookup section version: %w", lookupErr)
		}
		return nil, &VersionConflictError{SectionCode: params.SectionCode, Expected: params.ExpectedVersion, Current: current}
	}
	if err != nil {
		return nil, fmt.Errorf("advance section version: %w", err)
	}

	revision := models.Revision{
		ID:          params.RevisionID,
		InstanceID:  params.InstanceID,
		SectionCode: params.SectionCode,
		Version:     section.CurrentVersion,
		Content:     params.Content,
		Author:      params.Author,
		ChangedKeys: models.StringList(params.ChangedKeys),
		CreatedAt:   params.CreatedAt,
	}
	if revision.ID == "" {
		revision.ID = uuid.NewString()
	}
	const insert = `INSERT INTO section_revisions (` + revisionColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err = tx.ExecContext(ctx, insert, revision.ID, revision.InstanceID, revision.SectionCode, revision.Version,
		revision.Content, revision.Author, revision.ChangedKeys, revision.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert revision: %w", err)
	}

	var decided *models.Suggestion
	if params.Decision != nil {
		decision := *params.Decision
		decision.RevisionID = &revision.ID
		decided, err = decideSuggestion(ctx, tx, decision)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSuggestionDecided
		}
		if err != nil {
			return nil, fmt.Errorf("claim suggestion: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit append revision: %w", err)
	}
	return &models.AppendResult{Section: section, Revision: revision, Suggestion: decided}, nil
}

// ListRevisions returns up to limit revisions with afterVersion < version <= toVersion
// in ascending order. toVersion <= 0 means unbounded.
func (r *SectionRepository) ListRevisions(ctx context.Context, instanceID, code string, afterVersion, toVersion, limit int) ([]models.Revision, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	const query = `SELECT ` + revisionColumns + ` FROM section_revisions
	WHERE instance_id = $1 AND section_code = $2 AND version > $3 AND ($4 <= 0 OR version <= $4)
	ORDER BY version ASC
	LIMIT $5`
	var revisions []models.Revision
	if err := r.db.SelectContext(ctx, &revisions, query, instanceID, code, afterVersion, toVersion, limit); err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}
	return revisions, nil
}

// GetRevision fetches one revision by version or returns sql.ErrNoRows.
func (r *SectionRepository) GetRevision(ctx context.Context, instanceID, code string, version int) (*models.Revision, error) {
	const query = `SELECT ` + revisionColumns + ` FROM section_revisions WHERE instance_id = $1 AND section_code = $2 AND version = $3`
	var revision models.Revision
	if err := r.db.GetContext(ctx, &revision, query, instanceID, code, version); err != nil {
		return nil, err
	}
	return &revision, nil
}
