package models

import "time"

// ThreadStatus is the resolution state of a comment thread.
type ThreadStatus string

const (
	ThreadOpen     ThreadStatus = "open"
	ThreadResolved ThreadStatus = "resolved"
)

// CommentThread anchors a discussion to one field within a section.
type CommentThread struct {
	ID          string       `db:"id" json:"id"`
	InstanceID  string       `db:"instance_id" json:"instanceId"`
	SectionCode string       `db:"section_code" json:"sectionCode"`
	JSONPath    string       `db:"json_path" json:"jsonPath"`
	Status      ThreadStatus `db:"status" json:"status"`
	CreatedBy   string       `db:"created_by" json:"createdBy"`
	CreatedAt   time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time    `db:"updated_at" json:"updatedAt"`
	Comments    []Comment    `db:"-" json:"comments"`
}

// Comment is one entry of a thread, ordered by Position.
type Comment struct {
	ID        string    `db:"id" json:"id"`
	ThreadID  string    `db:"thread_id" json:"threadId"`
	Position  int       `db:"position" json:"position"`
	Author    string    `db:"author" json:"author"`
	Body      string    `db:"body" json:"body"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// AppendCommentParams appends to an existing thread. Reopen moves a resolved
// thread back to open; RequireOpen rejects the append when it is resolved.
type AppendCommentParams struct {
	ThreadID    string
	Comment     Comment
	Reopen      bool
	RequireOpen bool
}
