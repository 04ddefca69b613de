package models

import "time"

// WorkflowState is the document-level lifecycle stage.
type WorkflowState string

const (
	WorkflowDraft              WorkflowState = "draft"
	WorkflowSubmitted          WorkflowState = "submitted"
	WorkflowTechnicalApproved  WorkflowState = "technical_approved"
	WorkflowConsolidated       WorkflowState = "consolidated"
	WorkflowPublishingApproved WorkflowState = "publishing_approved"
)

// WorkflowAction names a workflow step.
type WorkflowAction string

const (
	ActionSubmit            WorkflowAction = "submit"
	ActionTechnicalApprove  WorkflowAction = "technical_approve"
	ActionConsolidate       WorkflowAction = "consolidate"
	ActionPublishingApprove WorkflowAction = "publishing_approve"
	ActionReject            WorkflowAction = "reject"
	ActionSectionApprove    WorkflowAction = "section_approve"
)

// WorkflowEvent is an immutable log entry of an applied workflow action.
type WorkflowEvent struct {
	ID          string         `db:"id" json:"id"`
	InstanceID  string         `db:"instance_id" json:"instanceId"`
	Action      WorkflowAction `db:"action" json:"action"`
	FromState   WorkflowState  `db:"from_state" json:"fromState"`
	ToState     WorkflowState  `db:"to_state" json:"toState"`
	Actor       string         `db:"actor" json:"actor"`
	SectionCode *string        `db:"section_code" json:"sectionCode,omitempty"`
	Comment     *string        `db:"comment" json:"comment,omitempty"`
	CreatedAt   time.Time      `db:"created_at" json:"createdAt"`
}

// TransitionParams describes a conditional state change on an instance.
type TransitionParams struct {
	InstanceID string
	From       WorkflowState
	To         WorkflowState
	IsPublic   bool
	FreezeAt   *time.Time
	Event      WorkflowEvent
}
