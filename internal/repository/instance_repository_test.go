package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/report-revision-api/internal/models"
)

var instanceRowColumns = []string{"id", "cycle", "version_label", "status", "is_public", "frozen_at", "created_by", "created_at", "updated_at"}

func TestInstanceRepositoryCreateSeedsSections(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewInstanceRepository(db)
	now := time.Now()
	instance := &models.DocumentInstance{ID: "inst-1", Cycle: "2026", VersionLabel: "v1", Status: models.WorkflowDraft, CreatedBy: "alice", CreatedAt: now, UpdatedAt: now}
	sections := []models.Section{
		{InstanceID: "inst-1", Code: "exec-summary", Title: "Exec summary", Content: models.Content{}, CurrentVersion: 1, LastEditor: "alice", UpdatedAt: now},
		{InstanceID: "inst-1", Code: "findings", Title: "Findings", Content: models.Content{}, CurrentVersion: 1, LastEditor: "alice", UpdatedAt: now},
	}
	revisions := []models.Revision{
		{ID: "rev-1", InstanceID: "inst-1", SectionCode: "exec-summary", Version: 1, Content: models.Content{}, Author: "alice", CreatedAt: now},
		{ID: "rev-2", InstanceID: "inst-1", SectionCode: "findings", Version: 1, Content: models.Content{}, Author: "alice", CreatedAt: now},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO report_instances")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO report_sections")).
		WithArgs("inst-1", "exec-summary", 0, "Exec summary", sqlmock.AnyArg(), 1, "alice", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO report_sections")).
		WithArgs("inst-1", "findings", 1, "Findings", sqlmock.AnyArg(), 1, "alice", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO section_revisions")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO section_revisions")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Create(context.Background(), instance, sections, revisions))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInstanceRepositoryTransitionLogsEvent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewInstanceRepository(db)
	now := time.Now()
	params := models.TransitionParams{
		InstanceID: "inst-1",
		From:       models.WorkflowSubmitted,
		To:         models.WorkflowTechnicalApproved,
		Event: models.WorkflowEvent{
			ID: "evt-1", InstanceID: "inst-1", Action: models.ActionTechnicalApprove,
			FromState: models.WorkflowSubmitted, ToState: models.WorkflowTechnicalApproved, Actor: "rev", CreatedAt: now,
		},
	}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE report_instances")).
		WithArgs(models.WorkflowTechnicalApproved, false, nil, now, "inst-1", models.WorkflowSubmitted).
		WillReturnRows(sqlmock.NewRows(instanceRowColumns).
			AddRow("inst-1", "2026", "v1", "technical_approved", false, nil, "alice", now, now))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO workflow_events")).
		WithArgs("evt-1", "inst-1", models.ActionTechnicalApprove, models.WorkflowSubmitted, models.WorkflowTechnicalApproved, "rev", nil, nil, now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	instance, err := repo.Transition(context.Background(), params)
	require.NoError(t, err)
	require.Equal(t, models.WorkflowTechnicalApproved, instance.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInstanceRepositoryTransitionStaleState(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewInstanceRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE report_instances")).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("inst-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err := repo.Transition(context.Background(), models.TransitionParams{InstanceID: "inst-1", From: models.WorkflowDraft, To: models.WorkflowSubmitted})
	require.ErrorIs(t, err, ErrStaleState)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInstanceRepositoryTransitionMissingInstance(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewInstanceRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE report_instances")).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	_, err := repo.Transition(context.Background(), models.TransitionParams{InstanceID: "inst-1", From: models.WorkflowDraft, To: models.WorkflowSubmitted})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInstanceRepositoryListEvents(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewInstanceRepository(db)
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "instance_id", "action", "from_state", "to_state", "actor", "section_code", "comment", "created_at"}).
		AddRow("evt-1", "inst-1", "submit", "draft", "submitted", "alice", nil, nil, now).
		AddRow("evt-2", "inst-1", "section_approve", "submitted", "submitted", "bob", "findings", "ok", now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, instance_id, action")).
		WithArgs("inst-1").
		WillReturnRows(rows)

	events, err := repo.ListEvents(context.Background(), "inst-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Nil(t, events[0].SectionCode)
	require.Equal(t, "findings", *events[1].SectionCode)
	require.NoError(t, mock.ExpectationsWereMet())
}
