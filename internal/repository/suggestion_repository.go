package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/report-revision-api/internal/models"
)

const suggestionColumns = `id, instance_id, section_code, base_version, patch, rationale, author, status, decided_by, decided_at, revision_id, created_at`

// SuggestionRepository persists reviewable patches.
type SuggestionRepository struct {
	db *sqlx.DB
}

// NewSuggestionRepository constructs the repository.
func NewSuggestionRepository(db *sqlx.DB) *SuggestionRepository {
	return &SuggestionRepository{db: db}
}

// Create inserts a pending suggestion.
func (r *SuggestionRepository) Create(ctx context.Context, suggestion *models.Suggestion) error {
	const query = `INSERT INTO suggestions (` + suggestionColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	if _, err := r.db.ExecContext(ctx, query, suggestion.ID, suggestion.InstanceID, suggestion.SectionCode, suggestion.BaseVersion,
		suggestion.Patch, suggestion.Rationale, suggestion.Author, suggestion.Status, suggestion.DecidedBy, suggestion.DecidedAt,
		suggestion.RevisionID, suggestion.CreatedAt); err != nil {
		return fmt.Errorf("insert suggestion: %w", err)
	}
	return nil
}

// GetByID returns a suggestion or sql.ErrNoRows.
func (r *SuggestionRepository) GetByID(ctx context.Context, id string) (*models.Suggestion, error) {
	const query = `SELECT ` + suggestionColumns + ` FROM suggestions WHERE id = $1`
	var suggestion models.Suggestion
	if err := r.db.GetContext(ctx, &suggestion, query, id); err != nil {
		return nil, err
	}
	return &suggestion, nil
}

// ListBySection returns pending suggestions first, each group oldest first.
func (r *SuggestionRepository) ListBySection(ctx context.Context, instanceID, code string) ([]models.Suggestion, error) {
	const query = `SELECT ` + suggestionColumns + ` FROM suggestions
	WHERE instance_id = $1 AND section_code = $2
	ORDER BY CASE WHEN status = 'pending' THEN 0 ELSE 1 END, created_at ASC, id ASC`
	var suggestions []models.Suggestion
	if err := r.db.SelectContext(ctx, &suggestions, query, instanceID, code); err != nil {
		return nil, fmt.Errorf("list suggestions: %w", err)
	}
	return suggestions, nil
}

// MarkDecided records a terminal status only while the suggestion is still
// pending. A miss returns sql.ErrNoRows.
func (r *SuggestionRepository) MarkDecided(ctx context.Context, params models.DecideSuggestionParams) (*models.Suggestion, error) {
	return decideSuggestion(ctx, r.db, params)
}

func decideSuggestion(ctx context.Context, q sqlx.QueryerContext, params models.DecideSuggestionParams) (*models.Suggestion, error) {
	const query = `UPDATE suggestions
	SET status = $1, decided_by = $2, decided_at = $3, revision_id = $4
	WHERE id = $5 AND status = 'pending'
	RETURNING ` + suggestionColumns
	var suggestion models.Suggestion
	if err := q.QueryRowxContext(ctx, query, params.Status, params.DecidedBy, params.DecidedAt, params.RevisionID, params.ID).StructScan(&suggestion); err != nil {
		return nil, err
	}
	return &suggestion, nil
}
