package models

import "time"

// DocumentInstance is one reporting cycle's working copy.
type DocumentInstance struct {
	ID           string        `db:"id" json:"id"`
	Cycle        string        `db:"cycle" json:"cycle"`
	VersionLabel string        `db:"version_label" json:"versionLabel"`
	Status       WorkflowState `db:"status" json:"status"`
	IsPublic     bool          `db:"is_public" json:"isPublic"`
	FrozenAt     *time.Time    `db:"frozen_at" json:"frozenAt,omitempty"`
	CreatedBy    string        `db:"created_by" json:"createdBy"`
	CreatedAt    time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updatedAt"`
}

// SectionsEditable reports whether direct edits and suggestions are accepted.
func (d *DocumentInstance) SectionsEditable() bool {
	return d != nil && d.Status == WorkflowDraft
}
