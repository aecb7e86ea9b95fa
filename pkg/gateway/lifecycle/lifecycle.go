// Package lifecycle tracks process-level state shared by the HTTP handlers.
package lifecycle

import "sync/atomic"

// Lifecycle holds the draining flag that readiness and the interview
// websocket consult during graceful shutdown. A nil receiver reads as
// not draining so handlers built without one still work.
type Lifecycle struct {
	draining atomic.Bool
}

// SetDraining marks the process as draining. New interviews are refused
// while the flag is set; running ones finish on their own.
func (l *Lifecycle) SetDraining(draining bool) {
	if l == nil {
		return
	}
	l.draining.Store(draining)
}

func (l *Lifecycle) IsDraining() bool {
	if l == nil {
		return false
	}
	return l.draining.Load()
}
