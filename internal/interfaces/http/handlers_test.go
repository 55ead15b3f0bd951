package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/taskflow/internal/application/port"
	"github.com/garyjia/taskflow/internal/application/service"
	"github.com/garyjia/taskflow/internal/application/workflow"
	"github.com/garyjia/taskflow/internal/domain/entity"
	"github.com/garyjia/taskflow/internal/infrastructure/metrics"
	"github.com/garyjia/taskflow/internal/infrastructure/persistence/memory"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type apiFixture struct {
	t       *testing.T
	server  *Server
	store   port.Store
	project *entity.Project
	states  map[string]*entity.WorkflowState
	task    *entity.Task
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	store := memory.NewStore().Port()
	for _, u := range []*entity.User{
		{ID: "owner", Email: "owner@example.com", FirstName: "Olive", LastName: "Owner"},
		{ID: "assignee", Email: "assignee@example.com"},
		{ID: "stranger", Email: "stranger@example.com"},
	} {
		require.NoError(t, store.Users.Create(ctx, u))
	}

	project := &entity.Project{Name: "Board", OwnerID: "owner", CreatedAt: now}
	require.NoError(t, store.Projects.Create(ctx, project))
	_, err := workflow.ApplyTemplate(ctx, store, project.ID, workflow.DefaultTemplate(), now)
	require.NoError(t, err)

	states, err := store.States.ListByProject(ctx, project.ID)
	require.NoError(t, err)
	byName := make(map[string]*entity.WorkflowState)
	for _, s := range states {
		byName[s.Name] = s
	}

	task := &entity.Task{
		ProjectID:       project.ID,
		Title:           "Write report",
		Priority:        entity.PriorityHigh,
		AssigneeID:      "assignee",
		WorkflowStateID: byName["Todo"].ID,
		CreatedAt:       now,
	}
	require.NoError(t, store.Tasks.Create(ctx, task))

	engine := workflow.NewEngine(store)
	svc := service.NewWorkflowService(engine, store, nopLogger{})
	server := NewServer(DefaultServerConfig(), svc, metrics.NewRecorder(), nopLogger{})

	return &apiFixture{t: t, server: server, store: store, project: project, states: byName, task: task}
}

func (f *apiFixture) do(method, path, user string, body interface{}) *httptest.ResponseRecorder {
	f.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(HeaderUserID, user)
	}

	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealthAndMetrics(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do("GET", "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))

	rec = f.do("GET", "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "taskflow_http_request_duration_seconds")
}

func TestAPIRequiresUserHeader(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do("GET", fmt.Sprintf("/api/v1/tasks/%d/audit", f.task.ID), "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, problemContentType, rec.Header().Get("Content-Type"))
}

func TestTransitionTask(t *testing.T) {
	f := newAPIFixture(t)
	path := fmt.Sprintf("/api/v1/tasks/%d/transition", f.task.ID)

	rec := f.do("POST", path, "assignee", TransitionRequest{ToStateID: f.states["In Progress"].ID, Comment: "starting"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp service.TransitionResponse
	decode(t, rec, &resp)
	assert.True(t, resp.Success)
	assert.Empty(t, resp.ErrorMessage)
	require.NotNil(t, resp.Task)
	assert.Equal(t, f.states["In Progress"].ID, resp.Task.WorkflowStateID)
}

func TestTransitionTaskFailures(t *testing.T) {
	f := newAPIFixture(t)
	path := fmt.Sprintf("/api/v1/tasks/%d/transition", f.task.ID)

	tests := []struct {
		name    string
		user    string
		path    string
		body    interface{}
		status  int
		message string
	}{
		{
			name:    "stranger cannot see the task",
			user:    "stranger",
			path:    path,
			body:    TransitionRequest{ToStateID: f.states["In Progress"].ID},
			status:  http.StatusNotFound,
			message: service.MsgNotFoundOrAccessDenied,
		},
		{
			name:    "no edge from Todo to Done",
			user:    "owner",
			path:    path,
			body:    TransitionRequest{ToStateID: f.states["Done"].ID},
			status:  http.StatusUnprocessableEntity,
			message: service.MsgInvalidTransition,
		},
		{
			name:    "unknown task",
			user:    "owner",
			path:    "/api/v1/tasks/9999/transition",
			body:    TransitionRequest{ToStateID: f.states["In Progress"].ID},
			status:  http.StatusNotFound,
			message: service.MsgNotFoundOrAccessDenied,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do("POST", tt.path, tt.user, tt.body)
			assert.Equal(t, tt.status, rec.Code)

			var resp service.TransitionResponse
			decode(t, rec, &resp)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.message, resp.ErrorMessage)
		})
	}

	t.Run("missing target state", func(t *testing.T) {
		rec := f.do("POST", path, "owner", map[string]interface{}{"comment": "x"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("non numeric id", func(t *testing.T) {
		rec := f.do("POST", "/api/v1/tasks/abc/transition", "owner", TransitionRequest{ToStateID: 1})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAuditHistoryOrdering(t *testing.T) {
	f := newAPIFixture(t)
	transition := fmt.Sprintf("/api/v1/tasks/%d/transition", f.task.ID)
	for _, name := range []string{"In Progress", "Review"} {
		rec := f.do("POST", transition, "owner", TransitionRequest{ToStateID: f.states[name].ID})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	var body struct {
		Data []service.AuditView `json:"data"`
	}

	rec := f.do("GET", fmt.Sprintf("/api/v1/tasks/%d/audit", f.task.ID), "assignee", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &body)
	require.Len(t, body.Data, 2)
	assert.Equal(t, "Review", body.Data[0].ToStateName)
	assert.Equal(t, "Olive Owner", body.Data[0].UserDisplayName)

	rec = f.do("GET", fmt.Sprintf("/api/v1/tasks/%d/audit?order=asc", f.task.ID), "assignee", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &body)
	require.Len(t, body.Data, 2)
	assert.Equal(t, "In Progress", body.Data[0].ToStateName)

	rec = f.do("GET", fmt.Sprintf("/api/v1/tasks/%d/audit?order=sideways", f.task.ID), "assignee", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do("GET", fmt.Sprintf("/api/v1/tasks/%d/audit", f.task.ID), "stranger", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAvailableTransitions(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do("GET", fmt.Sprintf("/api/v1/tasks/%d/transitions", f.task.ID), "assignee", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data []service.TransitionView `json:"data"`
	}
	decode(t, rec, &body)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "Start Progress", body.Data[0].Name)
	assert.Equal(t, "In Progress", body.Data[0].ToStateName)
}

func TestProcessAutomatic(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do("POST", "/api/v1/workflow/process-automatic", "owner", map[string]interface{}{"project_id": f.project.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Data service.ProcessAutomaticResponse `json:"data"`
	}
	decode(t, rec, &body)
	assert.Equal(t, 0, body.Data.ProcessedCount)
	assert.False(t, body.Data.Incomplete)

	rec = f.do("POST", "/api/v1/workflow/process-automatic", "owner", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do("POST", "/api/v1/workflow/process-automatic", "owner", map[string]interface{}{"project_id": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessAutomatic_OwnerOnly(t *testing.T) {
	f := newAPIFixture(t)
	path := "/api/v1/workflow/process-automatic"

	for _, user := range []string{"stranger", "assignee"} {
		rec := f.do("POST", path, user, map[string]interface{}{"project_id": f.project.ID})
		assert.Equal(t, http.StatusNotFound, rec.Code, user)
	}

	rec := f.do("POST", path, "owner", map[string]interface{}{"project_id": f.project.ID + 100})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// cancelledPassService reports a pass that was cut short after one task
type cancelledPassService struct {
	service.WorkflowService
	err error
}

func (s cancelledPassService) ProcessProjectAutomaticTransitions(context.Context, int64, string) (*service.ProcessAutomaticResponse, error) {
	return &service.ProcessAutomaticResponse{
		ProcessedCount: 1,
		ProcessedTasks: []service.TaskSummary{{ID: 7, Title: "Write report"}},
		Incomplete:     errors.Is(s.err, context.Canceled),
	}, s.err
}

func TestProcessAutomatic_PartialPass(t *testing.T) {
	t.Run("cancelled pass reports what it moved", func(t *testing.T) {
		server := NewServer(DefaultServerConfig(), cancelledPassService{err: context.Canceled}, metrics.NewRecorder(), nopLogger{})
		f := &apiFixture{t: t, server: server}

		rec := f.do("POST", "/api/v1/workflow/process-automatic", "owner", map[string]interface{}{"project_id": 1})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var body struct {
			Data service.ProcessAutomaticResponse `json:"data"`
		}
		decode(t, rec, &body)
		assert.True(t, body.Data.Incomplete)
		assert.Equal(t, 1, body.Data.ProcessedCount)
		require.Len(t, body.Data.ProcessedTasks, 1)
		assert.Equal(t, int64(7), body.Data.ProcessedTasks[0].ID)
	})

	t.Run("other failures stay internal errors", func(t *testing.T) {
		server := NewServer(DefaultServerConfig(), cancelledPassService{err: errors.New("db down")}, metrics.NewRecorder(), nopLogger{})
		f := &apiFixture{t: t, server: server}

		rec := f.do("POST", "/api/v1/workflow/process-automatic", "owner", map[string]interface{}{"project_id": 1})
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestProjectWorkflowEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	base := fmt.Sprintf("/api/v1/projects/%d", f.project.ID)

	rec := f.do("GET", base+"/states", "owner", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var states struct {
		Data []entity.WorkflowState `json:"data"`
	}
	decode(t, rec, &states)
	require.Len(t, states.Data, 4)
	assert.Equal(t, "Todo", states.Data[0].Name)

	rec = f.do("GET", base+"/transitions", "assignee", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do("POST", base+"/transitions", "owner", service.NewTransition{
		Name:                "Fast Track",
		FromStateID:         f.states["Todo"].ID,
		ToStateID:           f.states["Done"].ID,
		ConditionExpression: "high_priority_only",
		Order:               7,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do("POST", base+"/transitions", "owner", service.NewTransition{
		Name:        "Fast Track Again",
		FromStateID: f.states["Todo"].ID,
		ToStateID:   f.states["Done"].ID,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do("POST", base+"/transitions", "owner", service.NewTransition{
		Name:                "Mystery",
		FromStateID:         f.states["Review"].ID,
		ToStateID:           f.states["Done"].ID,
		ConditionExpression: "phase_of_moon",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// High priority task can now jump straight to Done
	rec = f.do("POST", fmt.Sprintf("/api/v1/tasks/%d/transition", f.task.ID), "owner", TransitionRequest{ToStateID: f.states["Done"].ID})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do("POST", base+"/workflow/default", "owner", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view struct {
		Data service.WorkflowView `json:"data"`
	}
	decode(t, rec, &view)
	assert.Len(t, view.Data.States, 4)
	assert.Len(t, view.Data.Transitions, 7)
}
