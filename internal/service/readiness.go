package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/noah-isme/report-revision-api/internal/models"
)

// ReadinessEvaluator decides whether an instance may take a gated workflow step.
type ReadinessEvaluator interface {
	Ready(ctx context.Context, instance *models.DocumentInstance, action models.WorkflowAction) (bool, string, error)
}

// ReadinessFunc adapts a plain function.
type ReadinessFunc func(ctx context.Context, instance *models.DocumentInstance, action models.WorkflowAction) (bool, string, error)

// Ready implements ReadinessEvaluator.
func (f ReadinessFunc) Ready(ctx context.Context, instance *models.DocumentInstance, action models.WorkflowAction) (bool, string, error) {
	return f(ctx, instance, action)
}

// AlwaysReady never blocks a transition.
type AlwaysReady struct{}

// Ready implements ReadinessEvaluator.
func (AlwaysReady) Ready(context.Context, *models.DocumentInstance, models.WorkflowAction) (bool, string, error) {
	return true, "", nil
}

type sectionLister interface {
	ListSections(ctx context.Context, instanceID string) ([]models.Section, error)
}

type eventLister interface {
	ListEvents(ctx context.Context, instanceID string) ([]models.WorkflowEvent, error)
}

// SectionApprovalGate requires a section_approve event for every section,
// recorded after the most recent submit.
type SectionApprovalGate struct {
	sections sectionLister
	events   eventLister
}

// NewSectionApprovalGate constructs the gate.
func NewSectionApprovalGate(sections sectionLister, events eventLister) *SectionApprovalGate {
	return &SectionApprovalGate{sections: sections, events: events}
}

// Ready implements ReadinessEvaluator.
func (g *SectionApprovalGate) Ready(ctx context.Context, instance *models.DocumentInstance, _ models.WorkflowAction) (bool, string, error) {
	sections, err := g.sections.ListSections(ctx, instance.ID)
	if err != nil {
		return false, "", err
	}
	events, err := g.events.ListEvents(ctx, instance.ID)
	if err != nil {
		return false, "", err
	}

	approved := make(map[string]bool)
	for _, event := range events {
		switch event.Action {
		case models.ActionSubmit:
			approved = make(map[string]bool)
		case models.ActionSectionApprove:
			if event.SectionCode != nil {
				approved[*event.SectionCode] = true
			}
		}
	}

	var missing []string
	for _, section := range sections {
		if !approved[section.Code] {
			missing = append(missing, section.Code)
		}
	}
	if len(missing) > 0 {
		return false, fmt.Sprintf("sections awaiting approval: %s", strings.Join(missing, ", ")), nil
	}
	return true, "", nil
}
