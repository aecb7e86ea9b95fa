// Package sessions maps client connection ids to their live interviews. The
// registry is the only component allowed to hold the session map; everyone
// else goes through Register, Get and the returned unregister func.
package sessions

import (
	"context"
	"sync"

	"github.com/k2ai/interview-relay/pkg/gateway/live/session"
)

type Handle struct {
	Interview *session.Interview
	Cancel    func()
}

type Registry struct {
	mu     sync.Mutex
	active map[string]*tracked
	wg     sync.WaitGroup
}

type tracked struct {
	handle Handle
	once   sync.Once
}

func NewRegistry() *Registry {
	return &Registry{active: make(map[string]*tracked)}
}

// Register stores the interview under connID, replacing (and unregistering)
// any previous entry for the same id.
func (r *Registry) Register(connID string, h Handle) (unregister func()) {
	if r == nil {
		return func() {}
	}

	entry := &tracked{handle: h}

	r.mu.Lock()
	if r.active == nil {
		r.active = make(map[string]*tracked)
	}
	old := r.active[connID]
	r.active[connID] = entry
	r.wg.Add(1)
	r.mu.Unlock()

	if old != nil {
		r.unregister(connID, old)
	}

	return func() { r.unregister(connID, entry) }
}

func (r *Registry) unregister(connID string, entry *tracked) {
	if r == nil || entry == nil {
		return
	}
	entry.once.Do(func() {
		r.mu.Lock()
		if r.active != nil && r.active[connID] == entry {
			delete(r.active, connID)
		}
		r.mu.Unlock()
		r.wg.Done()
	})
}

// Get returns the interview registered under connID.
func (r *Registry) Get(connID string) (*session.Interview, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.active[connID]
	if !ok || entry.handle.Interview == nil {
		return nil, false
	}
	return entry.handle.Interview, true
}

func (r *Registry) Count() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// CancelAll invokes every registered cancel func, used at shutdown to close
// client connections and their upstream links.
func (r *Registry) CancelAll() (canceled int) {
	if r == nil {
		return 0
	}

	var cancels []func()
	r.mu.Lock()
	for _, entry := range r.active {
		if entry == nil || entry.handle.Cancel == nil {
			continue
		}
		cancels = append(cancels, entry.handle.Cancel)
	}
	r.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
		canceled++
	}
	return canceled
}

// Wait blocks until every registered session has unregistered, or ctx ends.
func (r *Registry) Wait(ctx context.Context) bool {
	if r == nil {
		return true
	}
	if ctx == nil {
		r.wg.Wait()
		return true
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
