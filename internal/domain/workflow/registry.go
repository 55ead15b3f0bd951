package workflow

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/garyjia/taskflow/internal/domain/entity"
)

// Built-in condition names
const (
	ConditionAutoProgress24h    = "auto_progress_24h"
	ConditionHighPriorityOnly   = "high_priority_only"
	ConditionRequiresAssignment = "requires_assignment"
)

// Registry maps condition names to their implementations
type Registry struct {
	mu         sync.RWMutex
	conditions map[string]Condition
}

// NewRegistry creates a registry seeded with the built-in conditions
func NewRegistry() *Registry {
	r := NewEmptyRegistry()
	r.conditions[ConditionAutoProgress24h] = TimeCondition{Field: FieldCreatedAt, Delay: 24 * time.Hour}
	r.conditions[ConditionHighPriorityOnly] = PriorityCondition{Min: entity.PriorityHigh}
	r.conditions[ConditionRequiresAssignment] = AssignmentCondition{Required: true}
	return r
}

// NewEmptyRegistry creates a registry without any conditions
func NewEmptyRegistry() *Registry {
	return &Registry{conditions: make(map[string]Condition)}
}

// Register adds or replaces a named condition
func (r *Registry) Register(name string, c Condition) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("condition name cannot be empty")
	}
	if strings.Contains(name, ",") {
		return fmt.Errorf("condition name %q cannot contain a comma", name)
	}
	if c == nil {
		return fmt.Errorf("condition %q cannot be nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.conditions[name] = c
	return nil
}

// Lookup returns the named condition
func (r *Registry) Lookup(name string) (Condition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conditions[name]
	return c, ok
}

// Names returns all registered condition names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.conditions))
	for name := range r.conditions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Evaluation is the outcome of evaluating a condition expression
type Evaluation struct {
	Passed bool

	// Failed lists conditions that evaluated false, in expression order
	Failed []string

	// Unknown lists names with no registered condition. They do not block
	// the transition.
	Unknown []string
}

// Evaluate checks a comma-separated condition expression. All named conditions
// must pass. An empty expression always passes, and unknown names are skipped.
func (r *Registry) Evaluate(expression string, ec EvalContext) Evaluation {
	result := Evaluation{Passed: true}

	for _, name := range ParseExpression(expression) {
		c, ok := r.Lookup(name)
		if !ok {
			result.Unknown = append(result.Unknown, name)
			continue
		}
		if !c.Evaluate(ec) {
			result.Passed = false
			result.Failed = append(result.Failed, name)
		}
	}

	return result
}

// Unknown returns the names in the expression that have no registered condition
func (r *Registry) Unknown(expression string) []string {
	var unknown []string
	for _, name := range ParseExpression(expression) {
		if _, ok := r.Lookup(name); !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// ParseExpression splits a condition expression into trimmed, non-empty names
func ParseExpression(expression string) []string {
	if strings.TrimSpace(expression) == "" {
		return nil
	}

	parts := strings.Split(expression, ",")
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		if name := strings.TrimSpace(p); name != "" {
			names = append(names, name)
		}
	}
	return names
}
