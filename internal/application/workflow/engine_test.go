package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/taskflow/internal/application/dispatcher"
	"github.com/garyjia/taskflow/internal/application/port"
	"github.com/garyjia/taskflow/internal/domain/entity"
	"github.com/garyjia/taskflow/internal/domain/event"
	domainwf "github.com/garyjia/taskflow/internal/domain/workflow"
	"github.com/garyjia/taskflow/internal/infrastructure/persistence/memory"
)

const (
	ownerID    = "owner-1"
	assigneeID = "assignee-1"
	strangerID = "stranger-1"
)

type recordingLogger struct {
	mu     sync.Mutex
	warns  []string
	errors []string
}

func (l *recordingLogger) Info(string, ...interface{}) {}

func (l *recordingLogger) Warn(msg string, _ ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func (l *recordingLogger) Error(msg string, _ ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

type fixture struct {
	t       *testing.T
	ctx     context.Context
	store   *memory.Store
	repos   port.Store
	engine  Engine
	logger  *recordingLogger
	now     time.Time
	project *entity.Project
	states  map[string]*entity.WorkflowState
}

func newFixture(t *testing.T, tpl Template, opts ...EngineOption) *fixture {
	t.Helper()

	f := &fixture{
		t:      t,
		ctx:    context.Background(),
		store:  memory.NewStore(),
		logger: &recordingLogger{},
		now:    time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	f.repos = f.store.Port()

	for _, u := range []*entity.User{
		{ID: ownerID, Email: "owner@example.com", FirstName: "Olive", LastName: "Owner"},
		{ID: assigneeID, Email: "assignee@example.com"},
		{ID: strangerID, Email: "stranger@example.com"},
	} {
		require.NoError(t, f.repos.Users.Create(f.ctx, u))
	}

	f.project, f.states = f.newProject(tpl)

	opts = append([]EngineOption{
		WithClock(func() time.Time { return f.now }),
		WithLogger(f.logger),
	}, opts...)
	f.engine = NewEngine(f.repos, opts...)
	return f
}

func (f *fixture) newProject(tpl Template) (*entity.Project, map[string]*entity.WorkflowState) {
	f.t.Helper()

	project := &entity.Project{Name: "Board", OwnerID: ownerID}
	require.NoError(f.t, f.repos.Projects.Create(f.ctx, project))

	applied, err := ApplyTemplate(f.ctx, f.repos, project.ID, tpl, f.now)
	require.NoError(f.t, err)
	require.True(f.t, applied)

	states, err := f.repos.States.ListByProject(f.ctx, project.ID)
	require.NoError(f.t, err)

	byKey := make(map[string]*entity.WorkflowState, len(states))
	for i, def := range tpl.States {
		byKey[def.Key] = states[i]
	}
	return project, byKey
}

func (f *fixture) task(state string, priority entity.Priority, assignee string, createdAt time.Time) *entity.Task {
	f.t.Helper()
	return f.taskIn(f.project, f.states, state, priority, assignee, createdAt)
}

func (f *fixture) taskIn(project *entity.Project, states map[string]*entity.WorkflowState, state string, priority entity.Priority, assignee string, createdAt time.Time) *entity.Task {
	f.t.Helper()

	task := &entity.Task{
		ProjectID:       project.ID,
		Title:           "Write report",
		Priority:        priority,
		AssigneeID:      assignee,
		WorkflowStateID: states[state].ID,
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}
	if states[state].Type == entity.StateTypeCompleted {
		done := createdAt
		task.CompletedAt = &done
	}
	require.NoError(f.t, f.repos.Tasks.Create(f.ctx, task))
	return task
}

func (f *fixture) reload(id int64) *entity.Task {
	f.t.Helper()
	task, err := f.repos.Tasks.GetByID(f.ctx, id)
	require.NoError(f.t, err)
	require.NotNil(f.t, task)
	return task
}

func (f *fixture) transition(task *entity.Task, to, user, comment string) (*TransitionResult, error) {
	return f.engine.Transition(f.ctx, TransitionRequest{
		TaskID:    task.ID,
		ToStateID: f.states[to].ID,
		UserID:    user,
		Comment:   comment,
	})
}

// gatedTemplate is the default board with Review -> Done gated by expr
func gatedTemplate(expr string) Template {
	tpl := DefaultTemplate()
	for i := range tpl.Transitions {
		if tpl.Transitions[i].From == "review" && tpl.Transitions[i].To == "done" {
			tpl.Transitions[i].ConditionExpression = expr
		}
	}
	return tpl
}

func TestTransition_UngatedEdge(t *testing.T) {
	f := newFixture(t, DefaultTemplate())
	task := f.task("todo", entity.PriorityLow, "", f.now.Add(-time.Hour))

	f.now = f.now.Add(time.Minute)
	result, err := f.transition(task, "in_progress", ownerID, "start it")
	require.NoError(t, err)

	assert.Equal(t, f.states["in_progress"].ID, result.Task.WorkflowStateID)
	assert.Nil(t, result.Task.CompletedAt)
	assert.Equal(t, f.now, result.Task.UpdatedAt)
	assert.Equal(t, "Todo", result.FromState.Name)
	assert.Equal(t, "In Progress", result.ToState.Name)

	stored := f.reload(task.ID)
	assert.Equal(t, f.states["in_progress"].ID, stored.WorkflowStateID)
	assert.Equal(t, task.Version+1, stored.Version)

	history, err := f.engine.GetHistory(f.ctx, task.ID, Ascending)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, f.states["todo"].ID, history[0].FromStateID)
	assert.Equal(t, f.states["in_progress"].ID, history[0].ToStateID)
	assert.Equal(t, "start it", history[0].Comment)
	assert.Equal(t, ownerID, history[0].UserID)
	assert.Equal(t, entity.SystemInfoManual, history[0].SystemInfo)
}

func TestTransition_ConditionsNotMetLeavesNoTrace(t *testing.T) {
	f := newFixture(t, gatedTemplate(domainwf.ConditionHighPriorityOnly))
	task := f.task("review", entity.PriorityLow, "", f.now)

	_, err := f.transition(task, "done", ownerID, "ship it")

	require.Error(t, err)
	assert.Equal(t, domainwf.KindConditionsNotMet, domainwf.KindOf(err))
	assert.ErrorIs(t, err, domainwf.ErrConditionsNotMet)

	var te *domainwf.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, []string{domainwf.ConditionHighPriorityOnly}, te.Conditions)

	stored := f.reload(task.ID)
	assert.Equal(t, f.states["review"].ID, stored.WorkflowStateID)
	assert.Equal(t, task.Version, stored.Version)
	assert.Nil(t, stored.CompletedAt)
	assert.Zero(t, f.store.AuditCount())
}

func TestTransition_ConjunctiveConditions(t *testing.T) {
	expr := domainwf.ConditionHighPriorityOnly + ", " + domainwf.ConditionRequiresAssignment

	tests := []struct {
		name     string
		priority entity.Priority
		assignee string
		wantKind domainwf.ErrorKind
	}{
		{"high and assigned", entity.PriorityHigh, assigneeID, domainwf.KindNone},
		{"critical and assigned", entity.PriorityCritical, assigneeID, domainwf.KindNone},
		{"high but unassigned", entity.PriorityHigh, "", domainwf.KindConditionsNotMet},
		{"assigned but medium", entity.PriorityMedium, assigneeID, domainwf.KindConditionsNotMet},
		{"neither", entity.PriorityLow, "", domainwf.KindConditionsNotMet},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, gatedTemplate(expr))
			task := f.task("review", tt.priority, tt.assignee, f.now)

			_, err := f.transition(task, "done", ownerID, "")
			assert.Equal(t, tt.wantKind, domainwf.KindOf(err))
		})
	}
}

func TestTransition_UnknownConditionPasses(t *testing.T) {
	// Unknown names are skipped rather than rejected. Changing this policy
	// must be a deliberate decision that updates this test.
	f := newFixture(t, gatedTemplate("requires_sign_off"))
	task := f.task("review", entity.PriorityLow, "", f.now)

	_, err := f.transition(task, "done", ownerID, "")
	require.NoError(t, err)
	assert.Contains(t, f.logger.warns, "Transition references unknown conditions, treating them as passed")
}

func TestTransition_Visibility(t *testing.T) {
	tests := []struct {
		name     string
		user     string
		assignee string
		wantKind domainwf.ErrorKind
	}{
		{"owner", ownerID, "", domainwf.KindNone},
		{"assignee", assigneeID, assigneeID, domainwf.KindNone},
		{"stranger", strangerID, assigneeID, domainwf.KindNotFoundOrAccessDenied},
		{"anonymous", "", "", domainwf.KindNotFoundOrAccessDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, DefaultTemplate())
			task := f.task("todo", entity.PriorityLow, tt.assignee, f.now)

			_, err := f.transition(task, "in_progress", tt.user, "")
			assert.Equal(t, tt.wantKind, domainwf.KindOf(err))
		})
	}

	t.Run("missing task is indistinguishable from hidden task", func(t *testing.T) {
		f := newFixture(t, DefaultTemplate())

		_, err := f.engine.Transition(f.ctx, TransitionRequest{TaskID: 999, ToStateID: f.states["done"].ID, UserID: ownerID})
		assert.ErrorIs(t, err, domainwf.ErrNotFoundOrAccessDenied)
	})

	t.Run("access check runs before edge validation", func(t *testing.T) {
		f := newFixture(t, DefaultTemplate())
		task := f.task("todo", entity.PriorityLow, "", f.now)

		// todo -> done has no edge, but a stranger must not learn that
		_, err := f.transition(task, "done", strangerID, "")
		assert.Equal(t, domainwf.KindNotFoundOrAccessDenied, domainwf.KindOf(err))
	})
}

func TestTransition_InvalidTransition(t *testing.T) {
	t.Run("no edge between states", func(t *testing.T) {
		f := newFixture(t, DefaultTemplate())
		task := f.task("todo", entity.PriorityLow, "", f.now)

		_, err := f.transition(task, "done", ownerID, "")
		assert.Equal(t, domainwf.KindInvalidTransition, domainwf.KindOf(err))
		assert.Zero(t, f.store.AuditCount())
	})

	t.Run("target state in another project", func(t *testing.T) {
		f := newFixture(t, DefaultTemplate())
		task := f.task("todo", entity.PriorityLow, "", f.now)
		_, otherStates := f.newProject(DefaultTemplate())

		// A stored edge leaking into another project's graph is ignored
		require.NoError(t, f.repos.Transitions.Create(f.ctx, &entity.WorkflowTransition{
			Name:        "Cross project",
			FromStateID: f.states["todo"].ID,
			ToStateID:   otherStates["in_progress"].ID,
		}))

		_, err := f.engine.Transition(f.ctx, TransitionRequest{
			TaskID:    task.ID,
			ToStateID: otherStates["in_progress"].ID,
			UserID:    ownerID,
		})
		assert.Equal(t, domainwf.KindInvalidTransition, domainwf.KindOf(err))
		assert.Equal(t, f.states["todo"].ID, f.reload(task.ID).WorkflowStateID)
		assert.Contains(t, f.logger.warns, "Ignoring invalid workflow definitions")
	})
}

func TestTransition_CompletedAtFollowsStateType(t *testing.T) {
	f := newFixture(t, DefaultTemplate())
	task := f.task("review", entity.PriorityLow, "", f.now)

	f.now = f.now.Add(time.Hour)
	result, err := f.transition(task, "done", ownerID, "")
	require.NoError(t, err)
	require.NotNil(t, result.Task.CompletedAt)
	assert.Equal(t, f.now, *result.Task.CompletedAt)
	assert.NotNil(t, f.reload(task.ID).CompletedAt)

	f.now = f.now.Add(time.Hour)
	result, err = f.transition(task, "todo", ownerID, "reopen")
	require.NoError(t, err)
	assert.Nil(t, result.Task.CompletedAt)
	assert.Nil(t, f.reload(task.ID).CompletedAt)
}

func TestTransition_PersistenceFailureIsAtomic(t *testing.T) {
	f := newFixture(t, DefaultTemplate())
	task := f.task("todo", entity.PriorityLow, "", f.now)
	f.store.FailOn(memory.OpAuditCreate, errors.New("disk full"), 1)

	_, err := f.transition(task, "in_progress", ownerID, "")

	assert.Equal(t, domainwf.KindInternal, domainwf.KindOf(err))
	assert.ErrorIs(t, err, domainwf.ErrInternal)

	stored := f.reload(task.ID)
	assert.Equal(t, f.states["todo"].ID, stored.WorkflowStateID)
	assert.Equal(t, task.Version, stored.Version)
	assert.Zero(t, f.store.AuditCount())
	assert.Contains(t, f.logger.errors, "Transition failed")

	// The store recovers once the failure is gone
	_, err = f.transition(task, "in_progress", ownerID, "")
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.AuditCount())
}

func TestTransition_VersionConflict(t *testing.T) {
	t.Run("retried and re-validated", func(t *testing.T) {
		f := newFixture(t, DefaultTemplate())
		task := f.task("todo", entity.PriorityLow, "", f.now)
		f.store.FailOn(memory.OpTaskUpdate, port.ErrVersionConflict, 2)

		_, err := f.transition(task, "in_progress", ownerID, "")
		require.NoError(t, err)
		assert.Equal(t, 1, f.store.AuditCount())
		assert.Len(t, f.logger.warns, 2)
	})

	t.Run("gives up after the retry budget", func(t *testing.T) {
		f := newFixture(t, DefaultTemplate(), WithMaxConflictRetries(1))
		task := f.task("todo", entity.PriorityLow, "", f.now)
		f.store.FailOn(memory.OpTaskUpdate, port.ErrVersionConflict, 5)

		_, err := f.transition(task, "in_progress", ownerID, "")
		assert.Equal(t, domainwf.KindInternal, domainwf.KindOf(err))
		assert.ErrorIs(t, err, port.ErrVersionConflict)
		assert.Zero(t, f.store.AuditCount())
	})
}

func TestTransition_ConcurrentAttemptsOnSameTask(t *testing.T) {
	f := newFixture(t, DefaultTemplate())
	task := f.task("todo", entity.PriorityLow, "", f.now)

	const workers = 8
	var wg sync.WaitGroup
	kinds := make([]domainwf.ErrorKind, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.transition(task, "in_progress", ownerID, "")
			kinds[i] = domainwf.KindOf(err)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, k := range kinds {
		switch k {
		case domainwf.KindNone:
			succeeded++
		default:
			assert.Equal(t, domainwf.KindInvalidTransition, k)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, f.store.AuditCount())

	history, err := f.engine.GetHistory(f.ctx, task.ID, Ascending)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, f.states["todo"].ID, history[0].FromStateID)
	assert.Equal(t, task.Version+1, f.reload(task.ID).Version)
}

func TestTransition_PublishesEvents(t *testing.T) {
	d := dispatcher.NewDispatcher()
	var mu sync.Mutex
	var got []*event.Event
	collect := func(ctx context.Context, evt *event.Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, evt)
		return nil
	}
	d.Subscribe(event.TypeTaskTransitioned, collect)
	d.Subscribe(event.TypeTransitionRejected, collect)

	f := newFixture(t, DefaultTemplate(), WithDispatcher(d))
	task := f.task("todo", entity.PriorityLow, "", f.now)

	_, err := f.transition(task, "in_progress", ownerID, "")
	require.NoError(t, err)
	_, err = f.transition(task, "done", ownerID, "")
	require.Error(t, err)
	require.NoError(t, d.Close())

	require.Len(t, got, 2)
	byType := map[event.Type]*event.Event{}
	for _, e := range got {
		byType[e.Type] = e
	}

	moved := byType[event.TypeTaskTransitioned]
	require.NotNil(t, moved)
	assert.Equal(t, task.ID, moved.TaskID)
	assert.Equal(t, f.project.ID, moved.ProjectID)
	assert.Equal(t, f.states["in_progress"].ID, moved.GetPayloadInt(event.KeyToStateID))
	assert.False(t, moved.GetPayloadBool(event.KeyAutomatic))

	rejected := byType[event.TypeTransitionRejected]
	require.NotNil(t, rejected)
	assert.Equal(t, "InvalidTransition", rejected.GetPayloadString(event.KeyReason))
}

func TestGetHistory_Ordering(t *testing.T) {
	f := newFixture(t, DefaultTemplate())
	task := f.task("todo", entity.PriorityLow, assigneeID, f.now.Add(-time.Hour))

	steps := []struct {
		to   string
		user string
		at   time.Time
	}{
		{"in_progress", ownerID, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)},
		{"review", assigneeID, time.Date(2024, 3, 1, 10, 5, 0, 0, time.UTC)},
		{"done", ownerID, time.Date(2024, 3, 1, 10, 10, 0, 0, time.UTC)},
	}
	for _, s := range steps {
		f.now = s.at
		_, err := f.transition(task, s.to, s.user, "")
		require.NoError(t, err)
	}

	asc, err := f.engine.GetHistory(f.ctx, task.ID, Ascending)
	require.NoError(t, err)
	require.Len(t, asc, 3)
	for i, s := range steps {
		assert.Equal(t, s.at, asc[i].TransitionedAt)
	}
	assert.Equal(t, "Todo", asc[0].FromStateName)
	assert.Equal(t, "In Progress", asc[0].ToStateName)
	assert.Equal(t, "Olive Owner", asc[0].UserDisplayName)
	assert.Equal(t, "assignee@example.com", asc[1].UserDisplayName)

	desc, err := f.engine.GetHistory(f.ctx, task.ID, Descending)
	require.NoError(t, err)
	require.Len(t, desc, 3)
	assert.Equal(t, steps[2].at, desc[0].TransitionedAt)
	assert.Equal(t, steps[1].at, desc[1].TransitionedAt)
	assert.Equal(t, steps[0].at, desc[2].TransitionedAt)

	_, err = f.engine.GetHistory(f.ctx, task.ID, HistoryOrder("sideways"))
	assert.Error(t, err)
}

func TestGetHistory_EmptyForUntouchedTask(t *testing.T) {
	f := newFixture(t, DefaultTemplate())
	task := f.task("todo", entity.PriorityLow, "", f.now)

	history, err := f.engine.GetHistory(f.ctx, task.ID, Descending)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestApplyTemplate(t *testing.T) {
	f := newFixture(t, DefaultTemplate())

	states, err := f.repos.States.ListByProject(f.ctx, f.project.ID)
	require.NoError(t, err)
	require.Len(t, states, 4)
	assert.Equal(t, entity.StateTypeStart, states[0].Type)
	assert.Equal(t, entity.ColorGray, states[0].Color)
	assert.Equal(t, entity.StateTypeCompleted, states[3].Type)

	transitions, err := f.repos.Transitions.ListByProject(f.ctx, f.project.ID)
	require.NoError(t, err)
	require.Len(t, transitions, 6)
	assert.Equal(t, "Start Progress", transitions[0].Name)
	assert.Equal(t, "Reopen Task", transitions[5].Name)

	applied, err := ApplyTemplate(f.ctx, f.repos, f.project.ID, DefaultTemplate(), f.now)
	require.NoError(t, err)
	assert.False(t, applied)

	states, err = f.repos.States.ListByProject(f.ctx, f.project.ID)
	require.NoError(t, err)
	assert.Len(t, states, 4)

	t.Run("broken template rolls back", func(t *testing.T) {
		project := &entity.Project{Name: "Broken", OwnerID: ownerID}
		require.NoError(t, f.repos.Projects.Create(f.ctx, project))

		tpl := DefaultTemplate()
		tpl.Transitions = append(tpl.Transitions, TransitionDefinition{Name: "Nowhere", From: "todo", To: "archived"})

		applied, err := ApplyTemplate(f.ctx, f.repos, project.ID, tpl, f.now)
		assert.Error(t, err)
		assert.False(t, applied)

		states, err := f.repos.States.ListByProject(f.ctx, project.ID)
		require.NoError(t, err)
		assert.Empty(t, states)
	})
}
