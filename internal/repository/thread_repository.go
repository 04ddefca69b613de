package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/report-revision-api/internal/models"
)

const threadColumns = `id, instance_id, section_code, json_path, status, created_by, created_at, updated_at`

const commentColumns = `id, thread_id, position, author, body, created_at`

// ThreadRepository persists comment threads and their comments.
type ThreadRepository struct {
	db *sqlx.DB
}

// NewThreadRepository constructs the repository.
func NewThreadRepository(db *sqlx.DB) *ThreadRepository {
	return &ThreadRepository{db: db}
}

// Create inserts the thread together with its opening comment.
func (r *ThreadRepository) Create(ctx context.Context, thread *models.CommentThread, first models.Comment) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create thread: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertThread = `INSERT INTO comment_threads (` + threadColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err = tx.ExecContext(ctx, insertThread, thread.ID, thread.InstanceID, thread.SectionCode, thread.JSONPath,
		thread.Status, thread.CreatedBy, thread.CreatedAt, thread.UpdatedAt); err != nil {
		return fmt.Errorf("insert thread: %w", err)
	}
	if err = insertComment(ctx, tx, first); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create thread: %w", err)
	}
	return nil
}

// GetByID returns a thread with its ordered comments or sql.ErrNoRows.
func (r *ThreadRepository) GetByID(ctx context.Context, id string) (*models.CommentThread, error) {
	const query = `SELECT ` + threadColumns + ` FROM comment_threads WHERE id = $1`
	var thread models.CommentThread
	if err := r.db.GetContext(ctx, &thread, query, id); err != nil {
		return nil, err
	}

	const comments = `SELECT ` + commentColumns + ` FROM comments WHERE thread_id = $1 ORDER BY position ASC`
	if err := r.db.SelectContext(ctx, &thread.Comments, comments, id); err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return &thread, nil
}

// AppendComment locks the thread row, applies the reopen policy and appends
// the comment at the next position.
func (r *ThreadRepository) AppendComment(ctx context.Context, params models.AppendCommentParams) (reopened bool, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin append comment: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var status models.ThreadStatus
	if err = tx.GetContext(ctx, &status, `SELECT status FROM comment_threads WHERE id = $1 FOR UPDATE`, params.ThreadID); err != nil {
		return false, err
	}

	if status == models.ThreadResolved {
		if params.RequireOpen {
			err = ErrThreadResolved
			return false, err
		}
		reopened = params.Reopen
	}

	var position int
	if err = tx.GetContext(ctx, &position, `SELECT COALESCE(MAX(position), 0) + 1 FROM comments WHERE thread_id = $1`, params.ThreadID); err != nil {
		return false, fmt.Errorf("next comment position: %w", err)
	}
	comment := params.Comment
	comment.ThreadID = params.ThreadID
	comment.Position = position
	if err = insertComment(ctx, tx, comment); err != nil {
		return false, err
	}

	next := status
	if reopened {
		next = models.ThreadOpen
	}
	if _, err = tx.ExecContext(ctx, `UPDATE comment_threads SET status = $1, updated_at = $2 WHERE id = $3`,
		next, comment.CreatedAt, params.ThreadID); err != nil {
		return false, fmt.Errorf("touch thread: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit append comment: %w", err)
	}
	return reopened, nil
}

// SetStatus overwrites the thread status. Returns sql.ErrNoRows when absent.
func (r *ThreadRepository) SetStatus(ctx context.Context, id string, status models.ThreadStatus, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE comment_threads SET status = $1, updated_at = $2 WHERE id = $3`, status, at, id)
	if err != nil {
		return fmt.Errorf("update thread status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("thread status rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListBySection returns the section's threads oldest first, each with its comments.
func (r *ThreadRepository) ListBySection(ctx context.Context, instanceID, code string) ([]models.CommentThread, error) {
	const query = `SELECT ` + threadColumns + ` FROM comment_threads WHERE instance_id = $1 AND section_code = $2 ORDER BY created_at ASC, id ASC`
	var threads []models.CommentThread
	if err := r.db.SelectContext(ctx, &threads, query, instanceID, code); err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	if len(threads) == 0 {
		return threads, nil
	}

	ids := make([]string, len(threads))
	index := make(map[string]int, len(threads))
	for i, thread := range threads {
		ids[i] = thread.ID
		index[thread.ID] = i
		threads[i].Comments = []models.Comment{}
	}

	const comments = `SELECT ` + commentColumns + ` FROM comments WHERE thread_id = ANY($1) ORDER BY thread_id, position ASC`
	var rows []models.Comment
	if err := r.db.SelectContext(ctx, &rows, comments, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list thread comments: %w", err)
	}
	for _, comment := range rows {
		i := index[comment.ThreadID]
		threads[i].Comments = append(threads[i].Comments, comment)
	}
	return threads, nil
}

func insertComment(ctx context.Context, exec sqlx.ExecerContext, comment models.Comment) error {
	const query = `INSERT INTO comments (` + commentColumns + `) VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := exec.ExecContext(ctx, query, comment.ID, comment.ThreadID, comment.Position, comment.Author,
		comment.Body, comment.CreatedAt); err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}
