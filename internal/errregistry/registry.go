// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package errregistry correlates errors raised by a driver adapter with the
// numeric references the query engine reports back. The engine boundary can
// only carry a number, so the original error value is parked here until the
// dispatcher takes it.
package errregistry

import "sync"

// Registry is a one-shot table of adapter errors keyed by id.
// The zero value is not usable; call New.
type Registry struct {
	mu     sync.Mutex
	nextID uint64
	errs   map[uint64]error
}

// New creates an empty registry. The first registered error gets id 1.
func New() *Registry {
	return &Registry{
		nextID: 1,
		errs:   make(map[uint64]error),
	}
}

// Register stores err and returns the id it can be taken back with.
func (r *Registry) Register(err error) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.errs[id] = err
	return id
}

// Take removes and returns the error registered under id.
// ok is false if nothing is registered or it was already taken.
func (r *Registry) Take(id uint64) (err error, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	err, ok = r.errs[id]
	if ok {
		delete(r.errs, id)
	}
	return err, ok
}

// Len reports how many errors are still waiting to be taken.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}
