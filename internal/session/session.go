// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package session tracks the live schema sessions of the executor. A session
// owns an engine, the driver adapter manager behind it and the engine's log
// buffer.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"testd/executor/internal/adapter"
	"testd/executor/internal/engine"
	xerrors "testd/executor/internal/errors"
)

// Session is one initialised schema.
type Session struct {
	ID     string
	Engine engine.Engine
	// Manager and Adapter are nil when the engine brings its own database.
	Manager adapter.Manager
	Adapter *adapter.Bound

	mu   sync.Mutex
	logs []string
}

// New returns an empty session for id.
func New(id string) *Session {
	return &Session{ID: id}
}

// AppendLog stores one engine log line. It is the engine's log callback.
func (s *Session) AppendLog(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, line)
}

// DrainLogs returns the buffered lines and empties the buffer. The result is
// never nil.
func (s *Session) DrainLogs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.logs
	s.logs = nil
	if out == nil {
		out = []string{}
	}
	return out
}

// Close disconnects the engine and tears down the manager. Both steps run
// even if the first fails.
func (s *Session) Close(ctx context.Context, requestID uint64) error {
	var errs []error
	if s.Engine != nil {
		if err := s.Engine.Disconnect(ctx, "", requestID); err != nil {
			errs = append(errs, fmt.Errorf("engine disconnect: %w", err))
		}
	}
	if s.Manager != nil {
		if err := s.Manager.Teardown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("driver adapter teardown: %w", err))
		}
	}
	if len(errs) > 0 {
		return xerrors.Wrap(xerrors.TeardownFailed, "teardown of schema "+s.ID+" failed", errors.Join(errs...))
	}
	return nil
}

// Registry maps schema ids to live sessions. It is safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Add registers s. It fails with SchemaExists when the id is taken.
func (r *Registry) Add(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; ok {
		return ExistsError(s.ID)
	}
	r.sessions[s.ID] = s
	return nil
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Has reports whether id is live.
func (r *Registry) Has(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// Remove unregisters id and returns its session. Only one caller gets it.
func (r *Registry) Remove(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	return s, ok
}

// RemoveAll unregisters every session and returns them ordered by id.
func (r *Registry) RemoveAll() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.sessions = make(map[string]*Session)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// ExistsError reports that initializeSchema named a live schema id.
func ExistsError(id string) error {
	return xerrors.New(xerrors.SchemaExists,
		fmt.Sprintf("Schema with id %s is already initialized. Please call 'teardown' first.", id))
}

// NotInitializedError reports a request for a schema id with no live session.
func NotInitializedError(id string) error {
	return xerrors.New(xerrors.UninitializedSchema,
		fmt.Sprintf("Schema with id %s is not initialized. Please call 'initializeSchema' first.", id))
}
