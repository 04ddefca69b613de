package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/report-revision-api/internal/dto"
	"github.com/noah-isme/report-revision-api/internal/models"
	appErrors "github.com/noah-isme/report-revision-api/pkg/errors"
)

func (e *testEngine) suggest(t *testing.T, instanceID, code string, base int, p models.Patch) *models.Suggestion {
	t.Helper()
	suggestion, err := e.Suggestions.Submit(context.Background(), instanceID, code, dto.SubmitSuggestionRequest{BaseVersion: base, Patch: p, Rationale: "review"}, "carol")
	require.NoError(t, err)
	require.Equal(t, models.SuggestionPending, suggestion.Status)
	return suggestion
}

func TestSuggestionAcceptTargetsLatestVersion(t *testing.T) {
	engine := newTestEngine(t)
	instance := engine.openCycle(t)
	ctx := context.Background()
	for v := 1; v < 5; v++ {
		engine.save(t, instance.ID, "exec-summary", models.Content{"title": "Old Title", "rev": v}, v, "alice")
	}

	suggestion := engine.suggest(t, instance.ID, "exec-summary", 5, models.Patch{"title": "New Title"})
	engine.save(t, instance.ID, "exec-summary", models.Content{"title": "Old Title", "rev": 4, "owner": "Jane"}, 5, "bob")

	decided, err := engine.Suggestions.Decide(ctx, instance.ID, suggestion.ID, models.SuggestionActionAccept, "lead")
	require.NoError(t, err)
	require.Equal(t, models.SuggestionAccepted, decided.Status)
	require.NotNil(t, decided.RevisionID)
	require.Equal(t, "lead", *decided.DecidedBy)

	current, err := engine.Versions.GetCurrent(ctx, instance.ID, "exec-summary")
	require.NoError(t, err)
	require.Equal(t, 7, current.CurrentVersion)
	require.Equal(t, "New Title", current.Content["title"])
	require.Equal(t, "Jane", current.Content["owner"])

	rev, err := engine.Versions.GetRevision(ctx, instance.ID, "exec-summary", 7)
	require.NoError(t, err)
	require.Equal(t, *decided.RevisionID, rev.ID)
	require.Equal(t, "lead", rev.Author)
	require.Equal(t, []string{"title"}, []string(rev.ChangedKeys))
}

func TestSuggestionRejectLeavesContent(t *testing.T) {
	engine := newTestEngine(t)
	instance := engine.openCycle(t)
	ctx := context.Background()
	suggestion := engine.suggest(t, instance.ID, "findings", 1, models.Patch{"risk": "high"})

	decided, err := engine.Suggestions.Decide(ctx, instance.ID, suggestion.ID, models.SuggestionActionReject, "lead")
	require.NoError(t, err)
	require.Equal(t, models.SuggestionRejected, decided.Status)
	require.Nil(t, decided.RevisionID)

	current, err := engine.Versions.GetCurrent(ctx, instance.ID, "findings")
	require.NoError(t, err)
	require.Equal(t, 1, current.CurrentVersion)
	require.NotContains(t, current.Content, "risk")
}

func TestSuggestionDecideTerminalStatesFailAlreadyDecided(t *testing.T) {
	engine := newTestEngine(t)
	instance := engine.openCycle(t)
	ctx := context.Background()

	accepted := engine.suggest(t, instance.ID, "findings", 1, models.Patch{"a": 1})
	_, err := engine.Suggestions.Decide(ctx, instance.ID, accepted.ID, models.SuggestionActionAccept, "lead")
	require.NoError(t, err)
	rejected := engine.suggest(t, instance.ID, "findings", 1, models.Patch{"b": 1})
	_, err = engine.Suggestions.Decide(ctx, instance.ID, rejected.ID, models.SuggestionActionReject, "lead")
	require.NoError(t, err)

	for _, id := range []string{accepted.ID, rejected.ID} {
		for _, action := range []models.SuggestionAction{models.SuggestionActionAccept, models.SuggestionActionReject} {
			_, err := engine.Suggestions.Decide(ctx, instance.ID, id, action, "lead")
			require.ErrorIs(t, err, appErrors.ErrAlreadyDecided)
		}
	}

	current, err := engine.Versions.GetCurrent(ctx, instance.ID, "findings")
	require.NoError(t, err)
	require.Equal(t, 2, current.CurrentVersion)
}

func TestSuggestionConcurrentAcceptsApplyOnce(t *testing.T) {
	engine := newTestEngine(t)
	instance := engine.openCycle(t)
	suggestion := engine.suggest(t, instance.ID, "findings", 1, models.Patch{"a": 1})

	var applied, refused int32
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			_, err := engine.Suggestions.Decide(context.Background(), instance.ID, suggestion.ID, models.SuggestionActionAccept, "lead")
			switch {
			case err == nil:
				atomic.AddInt32(&applied, 1)
			case appErrors.IsCode(err, appErrors.ErrAlreadyDecided.Code):
				atomic.AddInt32(&refused, 1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.EqualValues(t, 1, applied)
	require.EqualValues(t, 7, refused)

	current, err := engine.Versions.GetCurrent(context.Background(), instance.ID, "findings")
	require.NoError(t, err)
	require.Equal(t, 2, current.CurrentVersion)
}

// saveAfterRead lands a direct save right after the section is read, so the
// accept that issued the read appends against a stale version.
type saveAfterRead struct {
	sectionStore
	once sync.Once
	save func()
}

func (s *saveAfterRead) GetSection(ctx context.Context, instanceID, code string) (*models.Section, error) {
	section, err := s.sectionStore.GetSection(ctx, instanceID, code)
	s.once.Do(s.save)
	return section, err
}

func TestSuggestionAcceptLosingRaceIsStaleAndStaysPending(t *testing.T) {
	engine := newTestEngine(t)
	instance := engine.openCycle(t)
	ctx := context.Background()
	suggestion := engine.suggest(t, instance.ID, "findings", 1, models.Patch{"a": 1})

	racing := &saveAfterRead{
		sectionStore: engine.store.Sections(),
		save: func() {
			engine.save(t, instance.ID, "findings", models.Content{"b": 2}, 1, "bob")
		},
	}
	versions := NewVersionStore(racing, nil)
	svc := NewSuggestionService(engine.store.Suggestions(), engine.store.Instances(), versions, nil, nil, nil)

	_, err := svc.Decide(ctx, instance.ID, suggestion.ID, models.SuggestionActionAccept, "lead")
	require.ErrorIs(t, err, appErrors.ErrSuggestionStale)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, 2, appErr.Details["currentVersion"])
	require.Equal(t, "this suggestion no longer applies cleanly; review and resubmit", appErr.Message)

	stored, err := svc.Get(ctx, instance.ID, suggestion.ID)
	require.NoError(t, err)
	require.Equal(t, models.SuggestionPending, stored.Status)

	current, err := engine.Versions.Latest(ctx, instance.ID, "findings")
	require.NoError(t, err)
	require.Equal(t, 2, current.CurrentVersion)
	require.NotContains(t, current.Content, "a")
}

// decideAfterRead lets another service instance fully accept the suggestion
// after this one has read it as pending.
type decideAfterRead struct {
	suggestionStore
	once   sync.Once
	decide func()
}

func (s *decideAfterRead) GetByID(ctx context.Context, id string) (*models.Suggestion, error) {
	suggestion, err := s.suggestionStore.GetByID(ctx, id)
	s.once.Do(s.decide)
	return suggestion, err
}

func TestSuggestionAcceptAcrossServiceInstancesAppliesOnce(t *testing.T) {
	engine := newTestEngine(t)
	instance := engine.openCycle(t)
	ctx := context.Background()
	suggestion := engine.suggest(t, instance.ID, "findings", 1, models.Patch{"a": 1})

	hooked := &decideAfterRead{
		suggestionStore: engine.store.Suggestions(),
		decide: func() {
			_, err := engine.Suggestions.Decide(ctx, instance.ID, suggestion.ID, models.SuggestionActionAccept, "lead-a")
			require.NoError(t, err)
		},
	}
	other := NewSuggestionService(hooked, engine.store.Instances(), engine.Versions, nil, nil, nil)

	_, err := other.Decide(ctx, instance.ID, suggestion.ID, models.SuggestionActionAccept, "lead-b")
	require.ErrorIs(t, err, appErrors.ErrAlreadyDecided)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, string(models.SuggestionAccepted), appErr.Details["status"])

	current, err := engine.Versions.Latest(ctx, instance.ID, "findings")
	require.NoError(t, err)
	require.Equal(t, 2, current.CurrentVersion)

	seq, err := engine.Versions.ListRevisions(ctx, instance.ID, "findings", models.RevisionRange{})
	require.NoError(t, err)
	revisions, err := CollectRevisions(seq)
	require.NoError(t, err)
	require.Len(t, revisions, 2)

	stored, err := engine.Suggestions.Get(ctx, instance.ID, suggestion.ID)
	require.NoError(t, err)
	require.Equal(t, "lead-a", *stored.DecidedBy)
	require.Equal(t, revisions[1].ID, *stored.RevisionID)
}

func TestSuggestionAcceptAfterSubmitIsLocked(t *testing.T) {
	engine := newTestEngine(t)
	instance := engine.openCycle(t)
	ctx := context.Background()
	suggestion := engine.suggest(t, instance.ID, "findings", 1, models.Patch{"a": 1})
	engine.apply(t, instance.ID, models.ActionSubmit)

	_, err := engine.Suggestions.Decide(ctx, instance.ID, suggestion.ID, models.SuggestionActionAccept, "lead")
	require.ErrorIs(t, err, appErrors.ErrSectionLocked)

	stored, err := engine.Suggestions.Get(ctx, instance.ID, suggestion.ID)
	require.NoError(t, err)
	require.Equal(t, models.SuggestionPending, stored.Status)
}

func TestSuggestionSubmitLockedAndUnchecked(t *testing.T) {
	engine := newTestEngine(t)
	instance := engine.openCycle(t)
	ctx := context.Background()

	// A base version ahead of the section is accepted at submit time.
	engine.suggest(t, instance.ID, "findings", 40, models.Patch{"a": 1})

	_, err := engine.Suggestions.Submit(ctx, instance.ID, "findings", dto.SubmitSuggestionRequest{BaseVersion: 1, Patch: models.Patch{}}, "carol")
	require.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = engine.Suggestions.Submit(ctx, instance.ID, "nope", dto.SubmitSuggestionRequest{BaseVersion: 1, Patch: models.Patch{"a": 1}}, "carol")
	require.ErrorIs(t, err, appErrors.ErrNotFound)

	engine.apply(t, instance.ID, models.ActionSubmit)
	_, err = engine.Suggestions.Submit(ctx, instance.ID, "findings", dto.SubmitSuggestionRequest{BaseVersion: 1, Patch: models.Patch{"a": 2}}, "carol")
	require.ErrorIs(t, err, appErrors.ErrSectionLocked)
}

func TestSuggestionListPendingFirst(t *testing.T) {
	engine := newTestEngine(t)
	instance := engine.openCycle(t)
	ctx := context.Background()

	first := engine.suggest(t, instance.ID, "findings", 1, models.Patch{"a": 1})
	second := engine.suggest(t, instance.ID, "findings", 1, models.Patch{"b": 1})
	third := engine.suggest(t, instance.ID, "findings", 1, models.Patch{"c": 1})
	_, err := engine.Suggestions.Decide(ctx, instance.ID, first.ID, models.SuggestionActionReject, "lead")
	require.NoError(t, err)

	list, err := engine.Suggestions.List(ctx, instance.ID, "findings")
	require.NoError(t, err)
	ids := []string{list[0].ID, list[1].ID, list[2].ID}
	require.Equal(t, []string{second.ID, third.ID, first.ID}, ids)
}

func TestSuggestionPreviewShowsEffectiveChange(t *testing.T) {
	engine := newTestEngine(t)
	instance := engine.openCycle(t)
	ctx := context.Background()
	engine.save(t, instance.ID, "findings", models.Content{"title": "T", "risk": "low"}, 1, "alice")

	suggestion := engine.suggest(t, instance.ID, "findings", 2, models.Patch{"title": "T", "risk": "high"})
	preview, err := engine.Suggestions.Preview(ctx, instance.ID, suggestion.ID)
	require.NoError(t, err)
	require.False(t, preview.Stale)
	require.Equal(t, []string{"risk"}, preview.ChangedKeys)

	engine.save(t, instance.ID, "findings", models.Content{"title": "T", "risk": "high"}, 2, "bob")
	preview, err = engine.Suggestions.Preview(ctx, instance.ID, suggestion.ID)
	require.NoError(t, err)
	require.True(t, preview.Stale)
	require.Equal(t, 3, preview.CurrentVersion)
	require.Empty(t, preview.ChangedKeys)

	_, err = engine.Suggestions.Preview(ctx, "other-instance", suggestion.ID)
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}
