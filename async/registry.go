// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package async

import "sync"

// Registry keeps one Pool alive per drive path. The teacher's MegasasIoctl
// device bookkeeping used a fixed-size array sized for a MegaRAID
// controller's HBA count and left a TODO about a better structure for an
// arbitrary device set; this lock manager's drive set is arbitrary and
// changes at lockspace-add/del time, so a plain map replaces it.
type Registry struct {
	mu    sync.Mutex
	pools map[string]*Pool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{pools: make(map[string]*Pool)}
}

// Lookup returns the pool for path, if one exists.
func (r *Registry) Lookup(path string) (*Pool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pools[path]
	return p, ok
}

// GetOrCreate returns the existing pool for path, or starts and registers
// a new one.
func (r *Registry) GetOrCreate(path string) *Pool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.pools[path]; ok {
		return p
	}

	p := NewPool()
	r.pools[path] = p
	return p
}

// Replace destroys any existing pool for path and installs a freshly
// started one, for use when a drive is removed and re-added to a
// lockspace under the same path.
func (r *Registry) Replace(path string) *Pool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.pools[path]; ok {
		old.Destroy()
	}

	p := NewPool()
	r.pools[path] = p
	return p
}

// Remove destroys and forgets the pool for path, if any.
func (r *Registry) Remove(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.pools[path]; ok {
		p.Destroy()
		delete(r.pools, path)
	}
}

// DestroyAll tears down every pool in the registry, for use on daemon
// shutdown.
func (r *Registry) DestroyAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for path, p := range r.pools {
		p.Destroy()
		delete(r.pools, path)
	}
}
