package models

import "time"

// Section is a versioned subdivision of a document instance.
type Section struct {
	InstanceID     string    `db:"instance_id" json:"instanceId"`
	Code           string    `db:"code" json:"code"`
	Title          string    `db:"title" json:"title"`
	Content        Content   `db:"content" json:"content"`
	CurrentVersion int       `db:"current_version" json:"currentVersion"`
	Locked         bool      `db:"-" json:"locked"`
	LastEditor     string    `db:"last_editor" json:"lastEditor"`
	UpdatedAt      time.Time `db:"updated_at" json:"updatedAt"`
}

// Revision is an immutable snapshot of a section at one version.
type Revision struct {
	ID          string     `db:"id" json:"id"`
	InstanceID  string     `db:"instance_id" json:"instanceId"`
	SectionCode string     `db:"section_code" json:"sectionCode"`
	Version     int        `db:"version" json:"version"`
	Content     Content    `db:"content" json:"content"`
	Author      string     `db:"author" json:"author"`
	ChangedKeys StringList `db:"changed_keys" json:"changedKeys"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
}

// AppendRevisionParams carries a conditional write against the version store.
type AppendRevisionParams struct {
	InstanceID      string
	SectionCode     string
	ExpectedVersion int
	Content         Content
	ChangedKeys     []string
	Author          string
	CreatedAt       time.Time
	// RevisionID is generated by the store when empty.
	RevisionID string
	// Decision, when set, is recorded in the same atomic write and only while
	// the suggestion is still pending.
	Decision *DecideSuggestionParams
}

// RevisionRange bounds a history query; zero values mean unbounded.
type RevisionRange struct {
	From int
	To   int
}

// AppendResult is the outcome of a successful conditional append.
type AppendResult struct {
	Section    Section
	Revision   Revision
	Suggestion *Suggestion
}
