package workflow

import (
	"errors"
	"fmt"
	"sort"

	"github.com/garyjia/taskflow/internal/domain/entity"
)

// edgeKey identifies a transition by its ordered endpoints
type edgeKey struct {
	from int64
	to   int64
}

// GraphBuilder assembles the state graph of a single project
type GraphBuilder struct {
	projectID   int64
	states      map[int64]*entity.WorkflowState
	transitions map[edgeKey]*entity.WorkflowTransition
}

// NewBuilder creates a builder for the given project's graph
func NewBuilder(projectID int64) *GraphBuilder {
	return &GraphBuilder{
		projectID:   projectID,
		states:      make(map[int64]*entity.WorkflowState),
		transitions: make(map[edgeKey]*entity.WorkflowTransition),
	}
}

// AddState registers a state. States of other projects are rejected.
func (b *GraphBuilder) AddState(state *entity.WorkflowState) error {
	if state == nil {
		return fmt.Errorf("%w: nil state", ErrInvalidEdge)
	}
	if state.ProjectID != b.projectID {
		return fmt.Errorf("%w: state %d belongs to project %d, not %d",
			ErrInvalidEdge, state.ID, state.ProjectID, b.projectID)
	}
	if !state.Type.IsValid() {
		return fmt.Errorf("%w: state %d has invalid type %q", ErrInvalidEdge, state.ID, state.Type)
	}

	s := *state
	b.states[state.ID] = &s
	return nil
}

// Permit adds a transition edge. Both endpoints must already be registered
// states of this project and the (from, to) pair must be unique.
func (b *GraphBuilder) Permit(t *entity.WorkflowTransition) error {
	if t == nil {
		return fmt.Errorf("%w: nil transition", ErrInvalidEdge)
	}
	if _, ok := b.states[t.FromStateID]; !ok {
		return fmt.Errorf("%w: transition %d source state %d is not in project %d",
			ErrInvalidEdge, t.ID, t.FromStateID, b.projectID)
	}
	if _, ok := b.states[t.ToStateID]; !ok {
		return fmt.Errorf("%w: transition %d target state %d is not in project %d",
			ErrInvalidEdge, t.ID, t.ToStateID, b.projectID)
	}

	key := edgeKey{from: t.FromStateID, to: t.ToStateID}
	if existing, ok := b.transitions[key]; ok {
		return fmt.Errorf("%w: transition %d duplicates %d for %d -> %d",
			ErrInvalidEdge, t.ID, existing.ID, t.FromStateID, t.ToStateID)
	}

	c := *t
	b.transitions[key] = &c
	return nil
}

// Build creates an immutable graph from the registered states and transitions
func (b *GraphBuilder) Build() *Graph {
	g := &Graph{
		projectID: b.projectID,
		states:    make(map[int64]*entity.WorkflowState, len(b.states)),
		edges:     make(map[edgeKey]*entity.WorkflowTransition, len(b.transitions)),
		outgoing:  make(map[int64][]*entity.WorkflowTransition),
	}

	// Deep copy so the graph never aliases builder state
	for id, s := range b.states {
		c := *s
		g.states[id] = &c
		g.ordered = append(g.ordered, &c)
	}
	sort.SliceStable(g.ordered, func(i, j int) bool {
		if g.ordered[i].Order != g.ordered[j].Order {
			return g.ordered[i].Order < g.ordered[j].Order
		}
		return g.ordered[i].ID < g.ordered[j].ID
	})

	for key, t := range b.transitions {
		c := *t
		g.edges[key] = &c
		g.outgoing[key.from] = append(g.outgoing[key.from], &c)
	}
	for from := range g.outgoing {
		sortTransitions(g.outgoing[from])
	}

	return g
}

// LoadGraph builds a project graph from stored definitions. Definitions that
// violate graph invariants (foreign states, cross-project or duplicate edges)
// are left out of the graph and reported in the returned error; the graph is
// always usable.
func LoadGraph(projectID int64, states []*entity.WorkflowState, transitions []*entity.WorkflowTransition) (*Graph, error) {
	b := NewBuilder(projectID)
	var errs []error

	for _, s := range states {
		if err := b.AddState(s); err != nil {
			errs = append(errs, err)
		}
	}

	ordered := make([]*entity.WorkflowTransition, len(transitions))
	copy(ordered, transitions)
	sortTransitions(ordered)

	for _, t := range ordered {
		if err := b.Permit(t); err != nil {
			errs = append(errs, err)
		}
	}

	return b.Build(), errors.Join(errs...)
}

// sortTransitions orders transitions by display order, then id
func sortTransitions(ts []*entity.WorkflowTransition) {
	sort.SliceStable(ts, func(i, j int) bool {
		if ts[i].Order != ts[j].Order {
			return ts[i].Order < ts[j].Order
		}
		return ts[i].ID < ts[j].ID
	})
}
