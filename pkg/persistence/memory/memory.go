// Package memory provides an in-memory persistence implementation for tests
// and local development. It honors the same conditional-update semantics as
// the PostgreSQL implementation.
package memory

import (
	"context"
	"sync"

	"github.com/flowmail/journey/pkg/persistence"
)

// Persistence keeps all state in process memory behind a single mutex.
type Persistence struct {
	mu            sync.RWMutex
	workflowRepo  *WorkflowRepository
	executionRepo *ExecutionRepository
	contactRepo   *ContactRepository
}

// NewPersistence creates an empty in-memory persistence.
func NewPersistence() *Persistence {
	p := &Persistence{}
	p.workflowRepo = &WorkflowRepository{persistence: p, workflows: make(map[string]*workflowRecord)}
	p.executionRepo = &ExecutionRepository{
		persistence:    p,
		executions:     make(map[string]*executionRecord),
		stepExecutions: make(map[string]*stepExecutionRecord),
	}
	p.contactRepo = &ContactRepository{persistence: p, contacts: make(map[string]*contactRecord)}

	return p
}

// WorkflowRepository returns the workflow repository.
func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflowRepo
}

// ExecutionRepository returns the execution repository.
func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return p.executionRepo
}

// ContactRepository returns the contact repository.
func (p *Persistence) ContactRepository() persistence.ContactRepository {
	return p.contactRepo
}

// HealthCheck always succeeds for in-memory storage.
func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for in-memory storage.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}
