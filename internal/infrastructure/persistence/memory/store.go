// Package memory provides an in-process implementation of the repository
// ports. It backs engine tests and embedded use where no database is wanted.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/garyjia/taskflow/internal/application/port"
	"github.com/garyjia/taskflow/internal/domain/entity"
)

// Operation names a store write that can be made to fail
type Operation string

const (
	OpTaskUpdate  Operation = "task.update"
	OpAuditCreate Operation = "audit.create"
)

type txKey struct{}

type data struct {
	tasks       map[int64]*entity.Task
	projects    map[int64]*entity.Project
	users       map[string]*entity.User
	states      map[int64]*entity.WorkflowState
	transitions map[int64]*entity.WorkflowTransition
	audit       []*entity.AuditEntry
	nextID      int64
}

func newData() *data {
	return &data{
		tasks:       make(map[int64]*entity.Task),
		projects:    make(map[int64]*entity.Project),
		users:       make(map[string]*entity.User),
		states:      make(map[int64]*entity.WorkflowState),
		transitions: make(map[int64]*entity.WorkflowTransition),
	}
}

// clone deep-copies the dataset. Audit entries are immutable and shared.
func (d *data) clone() *data {
	c := newData()
	for id, t := range d.tasks {
		c.tasks[id] = t.Clone()
	}
	for id, p := range d.projects {
		cp := *p
		c.projects[id] = &cp
	}
	for id, u := range d.users {
		cu := *u
		c.users[id] = &cu
	}
	for id, s := range d.states {
		cs := *s
		c.states[id] = &cs
	}
	for id, t := range d.transitions {
		ct := *t
		c.transitions[id] = &ct
	}
	c.audit = append([]*entity.AuditEntry(nil), d.audit...)
	c.nextID = d.nextID
	return c
}

func (d *data) id() int64 {
	d.nextID++
	return d.nextID
}

type failure struct {
	err       error
	remaining int
}

// Store is a mutex-guarded in-memory dataset. Transactions hold the store
// lock for their whole duration and roll back by restoring a snapshot.
type Store struct {
	mu       sync.Mutex
	d        *data
	failures map[Operation]*failure
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		d:        newData(),
		failures: make(map[Operation]*failure),
	}
}

// Port returns the store's repositories bundled for the engine
func (s *Store) Port() port.Store {
	return port.Store{
		Tasks:       &taskRepo{s},
		Projects:    &projectRepo{s},
		Users:       &userRepo{s},
		States:      &stateRepo{s},
		Transitions: &transitionRepo{s},
		Audit:       &auditRepo{s},
		Tx:          s,
	}
}

// FailOn makes the next n executions of op return err
func (s *Store) FailOn(op Operation, err error, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = &failure{err: err, remaining: n}
}

// WithTransaction implements port.TransactionManager
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if inTx(ctx, s) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.d.clone()
	defer func() {
		if p := recover(); p != nil {
			s.d = snapshot
			panic(p)
		}
		if err != nil {
			s.d = snapshot
		}
	}()

	return fn(context.WithValue(ctx, txKey{}, s))
}

// AuditCount returns the number of audit entries across all tasks
func (s *Store) AuditCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.d.audit)
}

func inTx(ctx context.Context, s *Store) bool {
	owner, ok := ctx.Value(txKey{}).(*Store)
	return ok && owner == s
}

// read runs fn against the dataset, taking the lock unless ctx is inside
// one of this store's transactions
func (s *Store) read(ctx context.Context, fn func(d *data) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !inTx(ctx, s) {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return fn(s.d)
}

// write is read plus failure injection for op
func (s *Store) write(ctx context.Context, op Operation, fn func(d *data) error) error {
	return s.read(ctx, func(d *data) error {
		if f, ok := s.failures[op]; ok && f.remaining > 0 {
			f.remaining--
			return f.err
		}
		return fn(d)
	})
}

func errNotFound(kind string, id interface{}) error {
	return fmt.Errorf("%s %v not found", kind, id)
}
