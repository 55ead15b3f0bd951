package workflow

import "github.com/garyjia/taskflow/internal/domain/entity"

// Graph is the immutable state graph of one project. It is rebuilt from the
// store on every engine call since projects can reconfigure their workflow
// between calls.
type Graph struct {
	projectID int64
	states    map[int64]*entity.WorkflowState
	ordered   []*entity.WorkflowState
	edges     map[edgeKey]*entity.WorkflowTransition
	outgoing  map[int64][]*entity.WorkflowTransition
}

// ProjectID returns the project the graph belongs to
func (g *Graph) ProjectID() int64 {
	return g.projectID
}

// State returns the state with the given id, or nil if it is not part of the project
func (g *Graph) State(id int64) *entity.WorkflowState {
	return g.states[id]
}

// States returns all states sorted by display order
func (g *Graph) States() []*entity.WorkflowState {
	out := make([]*entity.WorkflowState, len(g.ordered))
	copy(out, g.ordered)
	return out
}

// InitialState returns the state new tasks start in: the first Start-typed
// state by order, or the first state overall if no Start state exists
func (g *Graph) InitialState() *entity.WorkflowState {
	for _, s := range g.ordered {
		if s.Type == entity.StateTypeStart {
			return s
		}
	}
	if len(g.ordered) > 0 {
		return g.ordered[0]
	}
	return nil
}

// Edge returns the unique transition for (from, to), or nil if there is none
func (g *Graph) Edge(from, to int64) *entity.WorkflowTransition {
	return g.edges[edgeKey{from: from, to: to}]
}

// CanTransition reports whether an edge exists between the two states
func (g *Graph) CanTransition(from, to int64) bool {
	return g.Edge(from, to) != nil
}

// Outgoing returns all transitions leaving the state, ordered by Order
func (g *Graph) Outgoing(from int64) []*entity.WorkflowTransition {
	ts := g.outgoing[from]
	out := make([]*entity.WorkflowTransition, len(ts))
	copy(out, ts)
	return out
}

// Automatic returns the automatic transitions leaving the state, ordered by Order
func (g *Graph) Automatic(from int64) []*entity.WorkflowTransition {
	var out []*entity.WorkflowTransition
	for _, t := range g.outgoing[from] {
		if t.IsAutomatic {
			out = append(out, t)
		}
	}
	return out
}

// Transitions returns every edge of the graph ordered by Order
func (g *Graph) Transitions() []*entity.WorkflowTransition {
	out := make([]*entity.WorkflowTransition, 0, len(g.edges))
	for _, t := range g.edges {
		out = append(out, t)
	}
	sortTransitions(out)
	return out
}
