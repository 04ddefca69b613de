package repository

import (
	"errors"
	"fmt"

	"github.com/noah-isme/report-revision-api/internal/models"
)

var (
	// ErrVersionConflict matches any *VersionConflictError under errors.Is.
	ErrVersionConflict = errors.New("section version conflict")
	// ErrThreadResolved is returned when an append requires an open thread.
	ErrThreadResolved = errors.New("comment thread is resolved")
)

// VersionConflictError reports a failed check-and-increment on a section.
type VersionConflictError struct {
	SectionCode string
	Expected    int
	Current     int
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("section %s: expected version %d, current version %d", e.SectionCode, e.Expected, e.Current)
}

// Is implements errors.Is support for ErrVersionConflict.
func (e *VersionConflictError) Is(target error) bool {
	return target == ErrVersionConflict
}

// ErrStaleState is returned by a conditional workflow transition whose
// expected source state no longer matches the stored instance.
var ErrStaleState = errors.New("instance state changed")

// ErrDuplicateID is returned when a record with the same id already exists.
var ErrDuplicateID = errors.New("duplicate id")

// ErrSectionLocked matches any *SectionLockedError under errors.Is.
var ErrSectionLocked = errors.New("section is locked")

// SectionLockedError reports an append refused because the owning instance
// left the editable state.
type SectionLockedError struct {
	SectionCode string
	State       models.WorkflowState
}

func (e *SectionLockedError) Error() string {
	return fmt.Sprintf("section %s is locked in state %s", e.SectionCode, e.State)
}

// Is implements errors.Is support for ErrSectionLocked.
func (e *SectionLockedError) Is(target error) bool {
	return target == ErrSectionLocked
}

// ErrSuggestionDecided is returned when an append carrying a decision finds
// the suggestion no longer pending. Nothing is written.
var ErrSuggestionDecided = errors.New("suggestion already decided")
