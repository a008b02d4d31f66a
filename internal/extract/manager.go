package extract

import (
	"context"
	"errors"
	"sync"
)

// ErrAlreadyProcessing is returned when an extraction is started for a
// document that already has one in flight.
var ErrAlreadyProcessing = errors.New("extraction already in progress for document")

// DoneFunc receives the terminal outcome of a job. Exactly one of three
// shapes arrives: a result with nil error, a cancellation (err wraps
// context.Canceled), or a provider failure.
type DoneFunc func(documentID string, result Result, err error)

// Manager runs at most one extraction per document at a time. Jobs for
// different documents run concurrently.
type Manager struct {
	provider Provider

	mu   sync.Mutex
	jobs map[string]context.CancelFunc
}

func NewManager(provider Provider) *Manager {
	return &Manager{
		provider: provider,
		jobs:     make(map[string]context.CancelFunc),
	}
}

// Start launches an extraction job for the document. The job detaches from
// the caller's context so an HTTP request finishing does not kill it; only
// Cancel stops a running job. Returns ErrAlreadyProcessing if a job for
// this document is already in flight.
func (m *Manager) Start(documentID, documentType, fileName string, done DoneFunc) error {
	m.mu.Lock()
	if _, running := m.jobs[documentID]; running {
		m.mu.Unlock()
		return ErrAlreadyProcessing
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.jobs[documentID] = cancel
	m.mu.Unlock()

	go func() {
		result, err := m.provider.Extract(ctx, documentType, fileName)

		m.mu.Lock()
		delete(m.jobs, documentID)
		m.mu.Unlock()
		cancel()

		done(documentID, result, err)
	}()
	return nil
}

// Cancel stops the in-flight job for the document, if any. The job's
// DoneFunc still fires, with a context.Canceled error. Returns whether a
// job was found.
func (m *Manager) Cancel(documentID string) bool {
	m.mu.Lock()
	cancel, running := m.jobs[documentID]
	m.mu.Unlock()
	if !running {
		return false
	}
	cancel()
	return true
}

// Processing reports whether a job for the document is in flight.
func (m *Manager) Processing(documentID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, running := m.jobs[documentID]
	return running
}
