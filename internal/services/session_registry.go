package services

import (
	"context"
	"errors"
	"sync"
)

// SessionRegistry holds one SessionController per learner.
type SessionRegistry struct {
	mu          sync.Mutex
	controllers map[string]*SessionController
	factory     func(studentID string) *SessionController
}

func NewSessionRegistry(deps SessionDeps) *SessionRegistry {
	return NewSessionRegistryWithFactory(func(studentID string) *SessionController {
		return NewSessionController(studentID, deps)
	})
}

func NewSessionRegistryWithFactory(factory func(studentID string) *SessionController) *SessionRegistry {
	return &SessionRegistry{
		controllers: make(map[string]*SessionController),
		factory:     factory,
	}
}

// Get returns the learner's controller, creating it on first use.
func (r *SessionRegistry) Get(studentID string) *SessionController {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.controllers[studentID]; ok {
		return c
	}
	c := r.factory(studentID)
	r.controllers[studentID] = c
	return c
}

// Lookup returns an existing controller without creating one.
func (r *SessionRegistry) Lookup(studentID string) (*SessionController, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.controllers[studentID]
	return c, ok
}

// Remove discards the learner's controller and its in-memory session.
func (r *SessionRegistry) Remove(studentID string) {
	r.mu.Lock()
	c, ok := r.controllers[studentID]
	delete(r.controllers, studentID)
	r.mu.Unlock()

	if ok {
		c.Leave()
	}
}

func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.controllers)
}

// ReloadProblems refreshes every controller that currently shows worksheetID.
func (r *SessionRegistry) ReloadProblems(ctx context.Context, worksheetID string) error {
	r.mu.Lock()
	controllers := make([]*SessionController, 0, len(r.controllers))
	for _, c := range r.controllers {
		controllers = append(controllers, c)
	}
	r.mu.Unlock()

	var errs []error
	for _, c := range controllers {
		if err := c.ReloadProblems(ctx, worksheetID); err != nil && !errors.Is(err, ErrSelectionSuperseded) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
