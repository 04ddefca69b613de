package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/report-revision-api/internal/models"
)

const instanceColumns = `id, cycle, version_label, status, is_public, frozen_at, created_by, created_at, updated_at`

const eventColumns = `id, instance_id, action, from_state, to_state, actor, section_code, comment, created_at`

// InstanceRepository persists document instances and their workflow log.
type InstanceRepository struct {
	db *sqlx.DB
}

// NewInstanceRepository constructs the repository.
func NewInstanceRepository(db *sqlx.DB) *InstanceRepository {
	return &InstanceRepository{db: db}
}

// Create stores a new instance with its seeded sections and their initial
// revisions in one transaction.
func (r *InstanceRepository) Create(ctx context.Context, instance *models.DocumentInstance, sections []models.Section, revisions []models.Revision) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create instance: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertInstance = `INSERT INTO report_instances (` + instanceColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err = tx.ExecContext(ctx, insertInstance, instance.ID, instance.Cycle, instance.VersionLabel, instance.Status,
		instance.IsPublic, instance.FrozenAt, instance.CreatedBy, instance.CreatedAt, instance.UpdatedAt); err != nil {
		return fmt.Errorf("insert instance: %w", err)
	}

	const insertSection = `INSERT INTO report_sections (instance_id, code, position, title, content, current_version, last_editor, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	for i, section := range sections {
		if _, err = tx.ExecContext(ctx, insertSection, section.InstanceID, section.Code, i, section.Title, section.Content,
			section.CurrentVersion, section.LastEditor, section.UpdatedAt); err != nil {
			return fmt.Errorf("insert section %s: %w", section.Code, err)
		}
	}

	const insertRevision = `INSERT INTO section_revisions (` + revisionColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	for _, rev := range revisions {
		if _, err = tx.ExecContext(ctx, insertRevision, rev.ID, rev.InstanceID, rev.SectionCode, rev.Version,
			rev.Content, rev.Author, rev.ChangedKeys, rev.CreatedAt); err != nil {
			return fmt.Errorf("insert revision %s@%d: %w", rev.SectionCode, rev.Version, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create instance: %w", err)
	}
	return nil
}

// GetByID returns an instance or sql.ErrNoRows.
func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*models.DocumentInstance, error) {
	const query = `SELECT ` + instanceColumns + ` FROM report_instances WHERE id = $1`
	var instance models.DocumentInstance
	if err := r.db.GetContext(ctx, &instance, query, id); err != nil {
		return nil, err
	}
	return &instance, nil
}

// Transition moves the instance from params.From to params.To and logs the
// event atomically. It returns ErrStaleState when the stored state is no
// longer params.From and sql.ErrNoRows when the instance does not exist.
func (r *InstanceRepository) Transition(ctx context.Context, params models.TransitionParams) (instance *models.DocumentInstance, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transition: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const update = `UPDATE report_instances
	SET status = $1, is_public = $2, frozen_at = COALESCE(frozen_at, $3), updated_at = $4
	WHERE id = $5 AND status = $6
	RETURNING ` + instanceColumns
	var updated models.DocumentInstance
	err = tx.QueryRowxContext(ctx, update, params.To, params.IsPublic, params.FreezeAt, params.Event.CreatedAt,
		params.InstanceID, params.From).StructScan(&updated)
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if lookupErr := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM report_instances WHERE id = $1)`, params.InstanceID); lookupErr != nil {
			return nil, fmt.Errorf("lookup instance: %w", lookupErr)
		}
		if !exists {
			return nil, sql.ErrNoRows
		}
		return nil, ErrStaleState
	}
	if err != nil {
		return nil, fmt.Errorf("update instance state: %w", err)
	}

	if err = insertEvent(ctx, tx, params.Event); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}
	return &updated, nil
}

// AppendEvent logs an annotation that does not change the instance state.
func (r *InstanceRepository) AppendEvent(ctx context.Context, event models.WorkflowEvent) error {
	return insertEvent(ctx, r.db, event)
}

// ListEvents returns the workflow log in the order events were recorded.
func (r *InstanceRepository) ListEvents(ctx context.Context, instanceID string) ([]models.WorkflowEvent, error) {
	const query = `SELECT ` + eventColumns + ` FROM workflow_events WHERE instance_id = $1 ORDER BY seq ASC`
	var events []models.WorkflowEvent
	if err := r.db.SelectContext(ctx, &events, query, instanceID); err != nil {
		return nil, fmt.Errorf("list workflow events: %w", err)
	}
	return events, nil
}

func insertEvent(ctx context.Context, exec sqlx.ExecerContext, event models.WorkflowEvent) error {
	const query = `INSERT INTO workflow_events (` + eventColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := exec.ExecContext(ctx, query, event.ID, event.InstanceID, event.Action, event.FromState, event.ToState,
		event.Actor, event.SectionCode, event.Comment, event.CreatedAt); err != nil {
		return fmt.Errorf("insert workflow event: %w", err)
	}
	return nil
}
