package app

import "sync/atomic"

// Invalidator is satisfied by the lookup cache.
type Invalidator interface {
	Invalidate()
}

// DeferredInvalidator forwards Invalidate to a target bound after construction. The relations and
// settings services need an invalidator before the lookup cache that reads from them exists.
type DeferredInvalidator struct {
	target atomic.Pointer[Invalidator]
}

// Bind sets the forwarding target.
func (d *DeferredInvalidator) Bind(target Invalidator) {
	d.target.Store(&target)
}

// Invalidate forwards to the bound target; before Bind it does nothing.
func (d *DeferredInvalidator) Invalidate() {
	if t := d.target.Load(); t != nil {
		(*t).Invalidate()
	}
}
