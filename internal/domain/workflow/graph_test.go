package workflow

import (
	"errors"
	"testing"

	"github.com/garyjia/taskflow/internal/domain/entity"
)

func testStates(projectID int64, base int64) []*entity.WorkflowState {
	return []*entity.WorkflowState{
		{ID: base + 1, ProjectID: projectID, Name: "Todo", Type: entity.StateTypeStart, Order: 1},
		{ID: base + 2, ProjectID: projectID, Name: "In Progress", Type: entity.StateTypeInProgress, Order: 2},
		{ID: base + 3, ProjectID: projectID, Name: "Review", Type: entity.StateTypeReview, Order: 3},
		{ID: base + 4, ProjectID: projectID, Name: "Done", Type: entity.StateTypeCompleted, Order: 4},
	}
}

func TestStateType_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		typ      entity.StateType
		expected bool
	}{
		{"start", entity.StateTypeStart, true},
		{"cancelled", entity.StateTypeCancelled, true},
		{"invalid", entity.StateType("ARCHIVED"), false},
		{"empty", entity.StateType(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.typ.IsValid(); got != tt.expected {
				t.Errorf("StateType.IsValid() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuilder_AddStateRejectsForeignProject(t *testing.T) {
	b := NewBuilder(1)

	err := b.AddState(&entity.WorkflowState{ID: 10, ProjectID: 2, Type: entity.StateTypeStart})
	if !errors.Is(err, ErrInvalidEdge) {
		t.Errorf("AddState() error = %v, want %v", err, ErrInvalidEdge)
	}
}

func TestBuilder_AddStateRejectsInvalidType(t *testing.T) {
	b := NewBuilder(1)

	err := b.AddState(&entity.WorkflowState{ID: 10, ProjectID: 1, Type: "BOGUS"})
	if !errors.Is(err, ErrInvalidEdge) {
		t.Errorf("AddState() error = %v, want %v", err, ErrInvalidEdge)
	}
}

func TestBuilder_PermitRequiresKnownEndpoints(t *testing.T) {
	b := NewBuilder(1)
	for _, s := range testStates(1, 0) {
		if err := b.AddState(s); err != nil {
			t.Fatalf("AddState() failed: %v", err)
		}
	}

	err := b.Permit(&entity.WorkflowTransition{ID: 1, FromStateID: 1, ToStateID: 99})
	if !errors.Is(err, ErrInvalidEdge) {
		t.Errorf("Permit() error = %v, want %v", err, ErrInvalidEdge)
	}
}

func TestBuilder_PermitRejectsDuplicatePair(t *testing.T) {
	b := NewBuilder(1)
	for _, s := range testStates(1, 0) {
		_ = b.AddState(s)
	}

	if err := b.Permit(&entity.WorkflowTransition{ID: 1, FromStateID: 1, ToStateID: 2}); err != nil {
		t.Fatalf("Permit() failed: %v", err)
	}
	err := b.Permit(&entity.WorkflowTransition{ID: 2, FromStateID: 1, ToStateID: 2})
	if !errors.Is(err, ErrInvalidEdge) {
		t.Errorf("Permit() duplicate error = %v, want %v", err, ErrInvalidEdge)
	}
}

func TestBuild_IsImmutable(t *testing.T) {
	b := NewBuilder(1)
	for _, s := range testStates(1, 0) {
		_ = b.AddState(s)
	}
	_ = b.Permit(&entity.WorkflowTransition{ID: 1, FromStateID: 1, ToStateID: 2})

	g := b.Build()

	// Changes to the builder after Build must not leak into the graph
	_ = b.Permit(&entity.WorkflowTransition{ID: 2, FromStateID: 2, ToStateID: 3})
	if g.CanTransition(2, 3) {
		t.Error("graph should not see edges added after Build()")
	}
	if !g.CanTransition(1, 2) {
		t.Error("graph should contain edges added before Build()")
	}
}

func TestLoadGraph_SkipsCrossProjectEdges(t *testing.T) {
	states := testStates(1, 0)
	transitions := []*entity.WorkflowTransition{
		{ID: 1, FromStateID: 1, ToStateID: 2, Order: 1},
		// Target belongs to project 2
		{ID: 2, FromStateID: 1, ToStateID: 101, Order: 2},
	}

	g, err := LoadGraph(1, states, transitions)
	if err == nil {
		t.Fatal("LoadGraph() should report the cross-project edge")
	}
	if !errors.Is(err, ErrInvalidEdge) {
		t.Errorf("LoadGraph() error = %v, want %v", err, ErrInvalidEdge)
	}
	if !g.CanTransition(1, 2) {
		t.Error("valid edge should be kept")
	}
	if g.CanTransition(1, 101) {
		t.Error("cross-project edge should be dropped")
	}
}

func TestLoadGraph_DuplicateKeepsLowestOrder(t *testing.T) {
	transitions := []*entity.WorkflowTransition{
		{ID: 7, FromStateID: 1, ToStateID: 2, Order: 5, Name: "later"},
		{ID: 8, FromStateID: 1, ToStateID: 2, Order: 1, Name: "first"},
	}

	g, err := LoadGraph(1, testStates(1, 0), transitions)
	if err == nil {
		t.Fatal("LoadGraph() should report the duplicate edge")
	}
	if got := g.Edge(1, 2); got == nil || got.Name != "first" {
		t.Errorf("Edge() = %+v, want transition named first", got)
	}
}

func TestGraph_OutgoingAndAutomaticOrdering(t *testing.T) {
	transitions := []*entity.WorkflowTransition{
		{ID: 1, FromStateID: 2, ToStateID: 4, Order: 3, IsAutomatic: true},
		{ID: 2, FromStateID: 2, ToStateID: 3, Order: 1, IsAutomatic: true},
		{ID: 3, FromStateID: 2, ToStateID: 1, Order: 2},
	}

	g, err := LoadGraph(1, testStates(1, 0), transitions)
	if err != nil {
		t.Fatalf("LoadGraph() failed: %v", err)
	}

	out := g.Outgoing(2)
	if len(out) != 3 {
		t.Fatalf("Outgoing() len = %d, want 3", len(out))
	}
	if out[0].ID != 2 || out[1].ID != 3 || out[2].ID != 1 {
		t.Errorf("Outgoing() order = [%d %d %d], want [2 3 1]", out[0].ID, out[1].ID, out[2].ID)
	}

	auto := g.Automatic(2)
	if len(auto) != 2 || auto[0].ID != 2 || auto[1].ID != 1 {
		t.Errorf("Automatic() returned unexpected transitions: %+v", auto)
	}
	if len(g.Automatic(1)) != 0 {
		t.Error("Automatic() should be empty for a state without automatic edges")
	}
}

func TestGraph_InitialState(t *testing.T) {
	g, _ := LoadGraph(1, testStates(1, 0), nil)
	if s := g.InitialState(); s == nil || s.ID != 1 {
		t.Errorf("InitialState() = %+v, want state 1", s)
	}

	empty, _ := LoadGraph(1, nil, nil)
	if s := empty.InitialState(); s != nil {
		t.Errorf("InitialState() on empty graph = %+v, want nil", s)
	}

	// Without a Start state the first state by order is used
	states := []*entity.WorkflowState{
		{ID: 5, ProjectID: 1, Type: entity.StateTypeReview, Order: 2},
		{ID: 6, ProjectID: 1, Type: entity.StateTypeInProgress, Order: 1},
	}
	g2, _ := LoadGraph(1, states, nil)
	if s := g2.InitialState(); s == nil || s.ID != 6 {
		t.Errorf("InitialState() = %+v, want state 6", s)
	}
}

func TestGraph_StatesSortedByOrder(t *testing.T) {
	states := testStates(1, 0)
	// Reverse input order
	reversed := []*entity.WorkflowState{states[3], states[2], states[1], states[0]}

	g, _ := LoadGraph(1, reversed, nil)
	got := g.States()
	for i, s := range got {
		if s.Order != i+1 {
			t.Errorf("States()[%d].Order = %d, want %d", i, s.Order, i+1)
		}
	}
}
