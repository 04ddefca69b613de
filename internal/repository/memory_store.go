package repository

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/report-revision-api/internal/models"
	"github.com/noah-isme/report-revision-api/pkg/patch"
)

// MemoryStore keeps every record in process memory with the same conditional
// semantics as the PostgreSQL repositories. Reads and writes copy content so
// callers never share maps with the store.
type MemoryStore struct {
	mu          sync.RWMutex
	instances   map[string]*memoryInstance
	sections    map[sectionKey]*memorySection
	suggestions map[string]*memorySuggestion
	threads     map[string]*memoryThread
	seq         int64
}

type sectionKey struct {
	instanceID string
	code       string
}

type memoryInstance struct {
	mu       sync.Mutex
	instance models.DocumentInstance
	codes    []string
	events   []models.WorkflowEvent
}

type memorySection struct {
	mu        sync.Mutex
	section   models.Section
	revisions []models.Revision
}

type memorySuggestion struct {
	seq        int64
	suggestion models.Suggestion
}

type memoryThread struct {
	mu     sync.Mutex
	seq    int64
	thread models.CommentThread
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		instances:   make(map[string]*memoryInstance),
		sections:    make(map[sectionKey]*memorySection),
		suggestions: make(map[string]*memorySuggestion),
		threads:     make(map[string]*memoryThread),
	}
}

// Instances exposes the store through the instance repository contract.
func (s *MemoryStore) Instances() *MemoryInstanceRepository { return &MemoryInstanceRepository{store: s} }

// Sections exposes the store through the section repository contract.
func (s *MemoryStore) Sections() *MemorySectionRepository { return &MemorySectionRepository{store: s} }

// Suggestions exposes the store through the suggestion repository contract.
func (s *MemoryStore) Suggestions() *MemorySuggestionRepository {
	return &MemorySuggestionRepository{store: s}
}

// Threads exposes the store through the thread repository contract.
func (s *MemoryStore) Threads() *MemoryThreadRepository { return &MemoryThreadRepository{store: s} }

func (s *MemoryStore) instance(id string) (*memoryInstance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.instances[id]
	return entry, ok
}

func (s *MemoryStore) section(instanceID, code string) (*memorySection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.sections[sectionKey{instanceID: instanceID, code: code}]
	return entry, ok
}

func (s *MemoryStore) thread(id string) (*memoryThread, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.threads[id]
	return entry, ok
}

func (s *MemoryStore) nextSeq() int64 {
	s.seq++
	return s.seq
}

// MemoryInstanceRepository is the in-memory instance store.
type MemoryInstanceRepository struct {
	store *MemoryStore
}

// Create stores the instance, its sections and their initial revisions.
func (r *MemoryInstanceRepository) Create(_ context.Context, instance *models.DocumentInstance, sections []models.Section, revisions []models.Revision) error {
	entry := &memoryInstance{instance: *instance}
	entries := make(map[string]*memorySection, len(sections))
	for _, section := range sections {
		content, err := patch.Clone(section.Content)
		if err != nil {
			return err
		}
		section.Content = content
		entries[section.Code] = &memorySection{section: section}
		entry.codes = append(entry.codes, section.Code)
	}
	for _, rev := range revisions {
		target, ok := entries[rev.SectionCode]
		if !ok {
			continue
		}
		copied, err := copyRevision(rev)
		if err != nil {
			return err
		}
		target.revisions = append(target.revisions, copied)
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, exists := r.store.instances[instance.ID]; exists {
		return ErrDuplicateID
	}
	r.store.instances[instance.ID] = entry
	for code, section := range entries {
		r.store.sections[sectionKey{instanceID: instance.ID, code: code}] = section
	}
	return nil
}

// GetByID returns a copy of the instance or sql.ErrNoRows.
func (r *MemoryInstanceRepository) GetByID(_ context.Context, id string) (*models.DocumentInstance, error) {
	entry, ok := r.store.instance(id)
	if !ok {
		return nil, sql.ErrNoRows
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	instance := copyInstance(entry.instance)
	return &instance, nil
}

// Transition applies the state change only when the instance is still in params.From.
func (r *MemoryInstanceRepository) Transition(_ context.Context, params models.TransitionParams) (*models.DocumentInstance, error) {
	entry, ok := r.store.instance(params.InstanceID)
	if !ok {
		return nil, sql.ErrNoRows
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.instance.Status != params.From {
		return nil, ErrStaleState
	}
	entry.instance.Status = params.To
	entry.instance.IsPublic = params.IsPublic
	if entry.instance.FrozenAt == nil && params.FreezeAt != nil {
		frozen := *params.FreezeAt
		entry.instance.FrozenAt = &frozen
	}
	entry.instance.UpdatedAt = params.Event.CreatedAt
	entry.events = append(entry.events, params.Event)

	instance := copyInstance(entry.instance)
	return &instance, nil
}

// AppendEvent logs an annotation without touching the instance state.
func (r *MemoryInstanceRepository) AppendEvent(_ context.Context, event models.WorkflowEvent) error {
	entry, ok := r.store.instance(event.InstanceID)
	if !ok {
		return sql.ErrNoRows
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.events = append(entry.events, event)
	return nil
}

// ListEvents returns the workflow log in recording order.
func (r *MemoryInstanceRepository) ListEvents(_ context.Context, instanceID string) ([]models.WorkflowEvent, error) {
	entry, ok := r.store.instance(instanceID)
	if !ok {
		return []models.WorkflowEvent{}, nil
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	events := make([]models.WorkflowEvent, len(entry.events))
	copy(events, entry.events)
	return events, nil
}

// MemorySectionRepository is the in-memory version store.
type MemorySectionRepository struct {
	store *MemoryStore
}

// GetSection returns a copy of the current section or sql.ErrNoRows.
func (r *MemorySectionRepository) GetSection(_ context.Context, instanceID, code string) (*models.Section, error) {
	entry, ok := r.store.section(instanceID, code)
	if !ok {
		return nil, sql.ErrNoRows
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	section, err := copySection(entry.section)
	if err != nil {
		return nil, err
	}
	return &section, nil
}

// ListSections returns the instance's sections in catalog order.
func (r *MemorySectionRepository) ListSections(ctx context.Context, instanceID string) ([]models.Section, error) {
	instance, ok := r.store.instance(instanceID)
	if !ok {
		return []models.Section{}, nil
	}
	sections := make([]models.Section, 0, len(instance.codes))
	for _, code := range instance.codes {
		section, err := r.GetSection(ctx, instanceID, code)
		if err != nil {
			return nil, err
		}
		sections = append(sections, *section)
	}
	return sections, nil
}

// AppendRevision performs the check-and-increment while holding the instance
// and section mutexes, so it cannot interleave with a workflow transition. A
// Decision is claimed before anything is written.
func (r *MemorySectionRepository) AppendRevision(_ context.Context, params models.AppendRevisionParams) (*models.AppendResult, error) {
	owner, ok := r.store.instance(params.InstanceID)
	if !ok {
		return nil, sql.ErrNoRows
	}
	entry, ok := r.store.section(params.InstanceID, params.SectionCode)
	if !ok {
		return nil, sql.ErrNoRows
	}
	content, err := patch.Clone(params.Content)
	if err != nil {
		return nil, err
	}

	// Lock order: instance, section, then the store for the suggestion claim.
	owner.mu.Lock()
	defer owner.mu.Unlock()
	if !owner.instance.SectionsEditable() {
		return nil, &SectionLockedError{SectionCode: params.SectionCode, State: owner.instance.Status}
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.section.CurrentVersion != params.ExpectedVersion {
		return nil, &VersionConflictError{
			SectionCode: params.SectionCode,
			Expected:    params.ExpectedVersion,
			Current:     entry.section.CurrentVersion,
		}
	}

	revision := models.Revision{
		ID:          params.RevisionID,
		InstanceID:  params.InstanceID,
		SectionCode: params.SectionCode,
		Version:     params.ExpectedVersion + 1,
		Content:     content,
		Author:      params.Author,
		ChangedKeys: append(models.StringList{}, params.ChangedKeys...),
		CreatedAt:   params.CreatedAt,
	}
	if revision.ID == "" {
		revision.ID = uuid.NewString()
	}

	next := entry.section
	next.Content = content
	next.CurrentVersion = revision.Version
	next.LastEditor = params.Author
	next.UpdatedAt = params.CreatedAt

	section, err := copySection(next)
	if err != nil {
		return nil, err
	}
	rev, err := copyRevision(revision)
	if err != nil {
		return nil, err
	}

	var decided *models.Suggestion
	if params.Decision != nil {
		decision := *params.Decision
		decision.RevisionID = &revision.ID
		claimed, err := r.store.decideSuggestion(decision)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSuggestionDecided
		}
		if err != nil {
			return nil, err
		}
		decided = claimed
	}

	entry.revisions = append(entry.revisions, revision)
	entry.section = next
	return &models.AppendResult{Section: section, Revision: rev, Suggestion: decided}, nil
}

// ListRevisions pages through the history in ascending version order.
func (r *MemorySectionRepository) ListRevisions(_ context.Context, instanceID, code string, afterVersion, toVersion, limit int) ([]models.Revision, error) {
	entry, ok := r.store.section(instanceID, code)
	if !ok {
		return []models.Revision{}, nil
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	out := make([]models.Revision, 0, limit)
	for _, rev := range entry.revisions {
		if rev.Version <= afterVersion || (toVersion > 0 && rev.Version > toVersion) {
			continue
		}
		copied, err := copyRevision(rev)
		if err != nil {
			return nil, err
		}
		out = append(out, copied)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// GetRevision returns one revision or sql.ErrNoRows.
func (r *MemorySectionRepository) GetRevision(_ context.Context, instanceID, code string, version int) (*models.Revision, error) {
	entry, ok := r.store.section(instanceID, code)
	if !ok {
		return nil, sql.ErrNoRows
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	for _, rev := range entry.revisions {
		if rev.Version == version {
			copied, err := copyRevision(rev)
			if err != nil {
				return nil, err
			}
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

// MemorySuggestionRepository is the in-memory suggestion store.
type MemorySuggestionRepository struct {
	store *MemoryStore
}

// Create stores a copy of the suggestion.
func (r *MemorySuggestionRepository) Create(_ context.Context, suggestion *models.Suggestion) error {
	copied, err := copySuggestion(*suggestion)
	if err != nil {
		return err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.suggestions[suggestion.ID] = &memorySuggestion{seq: r.store.nextSeq(), suggestion: copied}
	return nil
}

// GetByID returns a copy or sql.ErrNoRows.
func (r *MemorySuggestionRepository) GetByID(_ context.Context, id string) (*models.Suggestion, error) {
	r.store.mu.RLock()
	entry, ok := r.store.suggestions[id]
	var (
		copied models.Suggestion
		err    error
	)
	if ok {
		copied, err = copySuggestion(entry.suggestion)
	}
	r.store.mu.RUnlock()
	if !ok {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, err
	}
	return &copied, nil
}

// ListBySection orders pending suggestions first, then by creation.
func (r *MemorySuggestionRepository) ListBySection(_ context.Context, instanceID, code string) ([]models.Suggestion, error) {
	r.store.mu.RLock()
	entries := make([]*memorySuggestion, 0)
	for _, entry := range r.store.suggestions {
		if entry.suggestion.InstanceID == instanceID && entry.suggestion.SectionCode == code {
			entries = append(entries, entry)
		}
	}
	out := make([]models.Suggestion, 0, len(entries))
	sort.Slice(entries, func(i, j int) bool {
		pi := entries[i].suggestion.Status == models.SuggestionPending
		pj := entries[j].suggestion.Status == models.SuggestionPending
		if pi != pj {
			return pi
		}
		if !entries[i].suggestion.CreatedAt.Equal(entries[j].suggestion.CreatedAt) {
			return entries[i].suggestion.CreatedAt.Before(entries[j].suggestion.CreatedAt)
		}
		return entries[i].seq < entries[j].seq
	})
	var err error
	for _, entry := range entries {
		var copied models.Suggestion
		if copied, err = copySuggestion(entry.suggestion); err != nil {
			break
		}
		out = append(out, copied)
	}
	r.store.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MarkDecided sets a terminal status only while the suggestion is pending.
func (r *MemorySuggestionRepository) MarkDecided(_ context.Context, params models.DecideSuggestionParams) (*models.Suggestion, error) {
	return r.store.decideSuggestion(params)
}

func (s *MemoryStore) decideSuggestion(params models.DecideSuggestionParams) (*models.Suggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.suggestions[params.ID]
	if !ok || entry.suggestion.Status != models.SuggestionPending {
		return nil, sql.ErrNoRows
	}
	decided := entry.suggestion
	decidedBy := params.DecidedBy
	decidedAt := params.DecidedAt
	decided.Status = params.Status
	decided.DecidedBy = &decidedBy
	decided.DecidedAt = &decidedAt
	decided.RevisionID = nil
	if params.RevisionID != nil {
		revisionID := *params.RevisionID
		decided.RevisionID = &revisionID
	}
	copied, err := copySuggestion(decided)
	if err != nil {
		return nil, err
	}
	entry.suggestion = decided
	return &copied, nil
}

// MemoryThreadRepository is the in-memory comment thread store.
type MemoryThreadRepository struct {
	store *MemoryStore
}

// Create stores the thread with its opening comment.
func (r *MemoryThreadRepository) Create(_ context.Context, thread *models.CommentThread, first models.Comment) error {
	entry := &memoryThread{thread: *thread}
	entry.thread.Comments = []models.Comment{first}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	entry.seq = r.store.nextSeq()
	r.store.threads[thread.ID] = entry
	return nil
}

// GetByID returns a copy of the thread or sql.ErrNoRows.
func (r *MemoryThreadRepository) GetByID(_ context.Context, id string) (*models.CommentThread, error) {
	entry, ok := r.store.thread(id)
	if !ok {
		return nil, sql.ErrNoRows
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	thread := copyThread(entry.thread)
	return &thread, nil
}

// AppendComment serializes appends per thread.
func (r *MemoryThreadRepository) AppendComment(_ context.Context, params models.AppendCommentParams) (bool, error) {
	entry, ok := r.store.thread(params.ThreadID)
	if !ok {
		return false, sql.ErrNoRows
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	reopened := false
	if entry.thread.Status == models.ThreadResolved {
		if params.RequireOpen {
			return false, ErrThreadResolved
		}
		if params.Reopen {
			entry.thread.Status = models.ThreadOpen
			reopened = true
		}
	}

	comment := params.Comment
	comment.ThreadID = params.ThreadID
	comment.Position = len(entry.thread.Comments) + 1
	entry.thread.Comments = append(entry.thread.Comments, comment)
	entry.thread.UpdatedAt = comment.CreatedAt
	return reopened, nil
}

// SetStatus overwrites the thread status.
func (r *MemoryThreadRepository) SetStatus(_ context.Context, id string, status models.ThreadStatus, at time.Time) error {
	entry, ok := r.store.thread(id)
	if !ok {
		return sql.ErrNoRows
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.thread.Status = status
	entry.thread.UpdatedAt = at
	return nil
}

// ListBySection returns the section's threads in creation order.
func (r *MemoryThreadRepository) ListBySection(_ context.Context, instanceID, code string) ([]models.CommentThread, error) {
	r.store.mu.RLock()
	entries := make([]*memoryThread, 0)
	for _, entry := range r.store.threads {
		if entry.thread.InstanceID == instanceID && entry.thread.SectionCode == code {
			entries = append(entries, entry)
		}
	}
	r.store.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]models.CommentThread, 0, len(entries))
	for _, entry := range entries {
		entry.mu.Lock()
		out = append(out, copyThread(entry.thread))
		entry.mu.Unlock()
	}
	return out, nil
}

func copyInstance(in models.DocumentInstance) models.DocumentInstance {
	out := in
	if in.FrozenAt != nil {
		frozen := *in.FrozenAt
		out.FrozenAt = &frozen
	}
	return out
}

func copySection(in models.Section) (models.Section, error) {
	content, err := patch.Clone(in.Content)
	if err != nil {
		return models.Section{}, err
	}
	out := in
	out.Content = content
	return out, nil
}

func copyRevision(in models.Revision) (models.Revision, error) {
	content, err := patch.Clone(in.Content)
	if err != nil {
		return models.Revision{}, err
	}
	out := in
	out.Content = content
	out.ChangedKeys = append(models.StringList{}, in.ChangedKeys...)
	return out, nil
}

func copySuggestion(in models.Suggestion) (models.Suggestion, error) {
	out := in
	if in.Patch != nil {
		// Patch values of nil mean removal and must survive the copy.
		copied := make(models.Patch, len(in.Patch))
		for key, value := range in.Patch {
			if value == nil {
				copied[key] = nil
				continue
			}
			cloned, err := patch.Clone(map[string]interface{}{key: value})
			if err != nil {
				return models.Suggestion{}, err
			}
			copied[key] = cloned[key]
		}
		out.Patch = copied
	}
	if in.DecidedBy != nil {
		v := *in.DecidedBy
		out.DecidedBy = &v
	}
	if in.DecidedAt != nil {
		v := *in.DecidedAt
		out.DecidedAt = &v
	}
	if in.RevisionID != nil {
		v := *in.RevisionID
		out.RevisionID = &v
	}
	return out, nil
}

func copyThread(in models.CommentThread) models.CommentThread {
	out := in
	out.Comments = make([]models.Comment, len(in.Comments))
	copy(out.Comments, in.Comments)
	return out
}
