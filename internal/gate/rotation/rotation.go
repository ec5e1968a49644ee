// Package rotation owns the hand-off between the active bloom filter and a
// freshly rebuilt replacement.
package rotation

import (
	"sync/atomic"

	"allowgate/internal/gate/bloom"
)

// Controller holds the single shared reference to the active filter. Readers
// acquire it with Active and keep using the snapshot they got for the whole
// lookup; Activate swaps the reference in one atomic store, so a reader sees
// either the fully-old or fully-new filter, never a partially built one.
//
// The superseded filter stays alive as long as any in-flight reader still
// holds it and is reclaimed by the garbage collector afterwards; no explicit
// retirement step is needed.
type Controller struct {
	active atomic.Pointer[bloom.Filter]
}

// New returns a controller serving the given filter. initial may be nil
// before the startup bulk load completes; callers treat a nil active filter
// as "gate not ready" and fail closed.
func New(initial *bloom.Filter) *Controller {
	c := &Controller{}
	if initial != nil {
		c.active.Store(initial)
	}
	return c
}

// Active returns the current filter, or nil if nothing has been activated
// yet. Never blocks; safe for arbitrarily many concurrent callers.
func (c *Controller) Active() *bloom.Filter {
	return c.active.Load()
}

// Activate installs filter as the new active reference. Only the sync
// manager calls this, and only with a fully built filter.
func (c *Controller) Activate(filter *bloom.Filter) {
	c.active.Store(filter)
}
