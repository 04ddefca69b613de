package models

import "time"

// SuggestionStatus captures the review lifecycle of a suggestion.
type SuggestionStatus string

const (
	SuggestionPending  SuggestionStatus = "pending"
	SuggestionAccepted SuggestionStatus = "accepted"
	SuggestionRejected SuggestionStatus = "rejected"
)

// SuggestionAction is a reviewer decision.
type SuggestionAction string

const (
	SuggestionActionAccept SuggestionAction = "accept"
	SuggestionActionReject SuggestionAction = "reject"
)

// Suggestion is a proposed, not-yet-applied patch.
type Suggestion struct {
	ID          string           `db:"id" json:"id"`
	InstanceID  string           `db:"instance_id" json:"instanceId"`
	SectionCode string           `db:"section_code" json:"sectionCode"`
	BaseVersion int              `db:"base_version" json:"baseVersion"`
	Patch       Patch            `db:"patch" json:"patch"`
	Rationale   string           `db:"rationale" json:"rationale"`
	Author      string           `db:"author" json:"author"`
	Status      SuggestionStatus `db:"status" json:"status"`
	DecidedBy   *string          `db:"decided_by" json:"decidedBy,omitempty"`
	DecidedAt   *time.Time       `db:"decided_at" json:"decidedAt,omitempty"`
	RevisionID  *string          `db:"revision_id" json:"revisionId,omitempty"`
	CreatedAt   time.Time        `db:"created_at" json:"createdAt"`
}

// DecideSuggestionParams records a terminal decision.
type DecideSuggestionParams struct {
	ID         string
	Status     SuggestionStatus
	DecidedBy  string
	DecidedAt  time.Time
	RevisionID *string
}
