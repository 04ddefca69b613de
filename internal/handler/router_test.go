package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/report-revision-api/internal/middleware"
	"github.com/noah-isme/report-revision-api/internal/models"
	"github.com/noah-isme/report-revision-api/internal/repository"
	"github.com/noah-isme/report-revision-api/internal/service"
	"github.com/noah-isme/report-revision-api/pkg/config"
)

type apiClient struct {
	t      *testing.T
	router *gin.Engine
}

func newAPIClient(t *testing.T) *apiClient {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := repository.NewMemoryStore()
	cfg := &config.Config{
		Sections: config.SectionsConfig{Catalog: []string{"exec-summary", "findings"}},
		Comments: config.CommentsConfig{ReopenOnReply: true},
		Workflow: config.WorkflowConfig{TransitionAttempts: 3},
	}
	svcs := service.NewServices(service.Stores{
		Instances:   store.Instances(),
		Sections:    store.Sections(),
		Suggestions: store.Suggestions(),
		Threads:     store.Threads(),
	}, cfg, nil, nil, nil)

	router := gin.New()
	api := router.Group("/api/v1")
	api.Use(middleware.WithResponseMeta(), middleware.Actor(nil, true))
	RegisterRoutes(api, Handlers{
		Instances:   NewInstanceHandler(svcs.Instances),
		Sections:    NewSectionHandler(svcs.Sections, svcs.Versions, svcs.Exports),
		Suggestions: NewSuggestionHandler(svcs.Suggestions),
		Threads:     NewThreadHandler(svcs.Threads),
		Workflow:    NewWorkflowHandler(svcs.Workflow, svcs.Exports),
	})
	return &apiClient{t: t, router: router}
}

func (a *apiClient) do(method, path, actor string, body interface{}) (int, envelope) {
	a.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(a.t, err)
	}
	req := httptest.NewRequest(method, "/api/v1"+path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set(middleware.ActorHeader, actor)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w.Code, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func TestRevisionAPIFlow(t *testing.T) {
	api := newAPIClient(t)

	status, _ := api.do(http.MethodPost, "/instances", "", map[string]string{"cycle": "2026", "versionLabel": "v1"})
	require.Equal(t, http.StatusUnauthorized, status)

	status, env := api.do(http.MethodPost, "/instances", "coordinator", map[string]string{"cycle": "2026", "versionLabel": "v1"})
	require.Equal(t, http.StatusCreated, status)
	instance := decodeData[models.DocumentInstance](t, env)
	require.Equal(t, models.WorkflowDraft, instance.Status)
	base := fmt.Sprintf("/instances/%s/sections/findings", instance.ID)

	status, env = api.do(http.MethodGet, base, "alice", nil)
	require.Equal(t, http.StatusOK, status)
	snapshot := decodeData[struct {
		Version int `json:"version"`
	}](t, env)
	require.Equal(t, 1, snapshot.Version)

	// Two editors race from the same base; only the first lands.
	status, _ = api.do(http.MethodPut, base, "alice", map[string]interface{}{"content": map[string]interface{}{"summary": "A"}, "baseVersion": 1})
	require.Equal(t, http.StatusOK, status)
	status, env = api.do(http.MethodPut, base, "bob", map[string]interface{}{"content": map[string]interface{}{"summary": "B"}, "baseVersion": 1})
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "VERSION_CONFLICT", env.Error.Code)
	require.EqualValues(t, 2, env.Error.Details["currentVersion"])

	status, env = api.do(http.MethodPost, base+"/suggestions", "carol", map[string]interface{}{
		"baseVersion": 2, "patch": map[string]interface{}{"risk": "low"}, "rationale": "add risk",
	})
	require.Equal(t, http.StatusCreated, status)
	suggestion := decodeData[models.Suggestion](t, env)

	decision := fmt.Sprintf("/instances/%s/suggestions/%s/decision", instance.ID, suggestion.ID)
	status, env = api.do(http.MethodPost, decision, "lead", map[string]string{"action": "accept"})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, models.SuggestionAccepted, decodeData[models.Suggestion](t, env).Status)

	status, env = api.do(http.MethodPost, decision, "lead", map[string]string{"action": "reject"})
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "ALREADY_DECIDED", env.Error.Code)

	status, env = api.do(http.MethodGet, base+"/revisions?from=2", "auditor", nil)
	require.Equal(t, http.StatusOK, status)
	revisions := decodeData[[]models.Revision](t, env)
	require.Len(t, revisions, 2)
	require.Equal(t, []int{2, 3}, []int{revisions[0].Version, revisions[1].Version})
	require.Equal(t, map[string]interface{}{"summary": "A", "risk": "low"}, map[string]interface{}(revisions[1].Content))

	status, env = api.do(http.MethodGet, base+"/revisions?from=3&to=2", "auditor", nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "INVALID_RANGE", env.Error.Code)

	workflow := fmt.Sprintf("/instances/%s/workflow", instance.ID)
	status, _ = api.do(http.MethodPost, workflow, "coordinator", map[string]string{"action": "submit"})
	require.Equal(t, http.StatusOK, status)

	status, env = api.do(http.MethodPut, base, "alice", map[string]interface{}{"content": map[string]interface{}{"summary": "late"}, "baseVersion": 3})
	require.Equal(t, http.StatusLocked, status)
	require.Equal(t, "SECTION_LOCKED", env.Error.Code)

	status, env = api.do(http.MethodPost, base+"/comments", "reviewer", map[string]string{"jsonPath": "summary", "body": "please cite"})
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, models.ThreadOpen, decodeData[models.CommentThread](t, env).Status)

	status, env = api.do(http.MethodPost, workflow, "coordinator", map[string]string{"action": "consolidate"})
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "INVALID_TRANSITION", env.Error.Code)

	status, env = api.do(http.MethodGet, workflow+"/events", "auditor", nil)
	require.Equal(t, http.StatusOK, status)
	events := decodeData[[]models.WorkflowEvent](t, env)
	require.Len(t, events, 1)
	require.Equal(t, models.ActionSubmit, events[0].Action)
}

func TestRevisionAPIExportsHistory(t *testing.T) {
	api := newAPIClient(t)
	_, env := api.do(http.MethodPost, "/instances", "coordinator", map[string]string{"cycle": "2026", "versionLabel": "v1"})
	instance := decodeData[models.DocumentInstance](t, env)

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/instances/%s/sections/exec-summary/revisions/export?format=csv", instance.ID), nil)
	req.Header.Set(middleware.ActorHeader, "auditor")
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	require.Contains(t, w.Body.String(), "version,author,created_at,changed_keys,content")
	require.Contains(t, w.Body.String(), "coordinator")
}
