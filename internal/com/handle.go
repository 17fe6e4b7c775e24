package com

import "sync"

// Handle is an exclusive-ownership wrapper over one live foreign object.
//
// TakeOwnership is the only way to construct a live Handle; the caller
// asserts that no other Handle (and no foreign-side reference under the
// caller's control) refers to the same reference. That uniqueness is a
// documented precondition, not a runtime check; the foreign subsystem
// offers no aliasing detection.
//
// A Handle is owned by one goroutine at a time. It may be handed off,
// but concurrent use requires the Shared cell instead: the underlying
// refcount operations are not safe under uncoordinated sharing.
type Handle[T Unknown] struct {
	obj  T
	live bool
}

// TakeOwnership wraps a foreign object the caller uniquely owns.
func TakeOwnership[T Unknown](obj T) Handle[T] {
	return Handle[T]{obj: obj, live: true}
}

// Get returns the wrapped object for direct calls. It panics if the
// Handle has been consumed or closed: a live Handle is never empty.
func (h *Handle[T]) Get() T {
	if !h.live {
		panic("com: use of consumed Handle")
	}
	return h.obj
}

// Live reports whether the Handle still owns its reference.
func (h *Handle[T]) Live() bool {
	return h.live
}

// Close releases the foreign reference exactly once. Closing a consumed
// or already-closed Handle is a no-op, so handing ownership elsewhere
// (QueryAs, Share) leaves a shell that is safe to Close again.
func (h *Handle[T]) Close() {
	if !h.live {
		return
	}
	h.live = false
	h.obj.Release()
}

// Move transfers ownership to the returned Handle, leaving h consumed.
func (h *Handle[T]) Move() Handle[T] {
	return TakeOwnership(h.take())
}

// take moves the object out, leaving the consumed sentinel behind.
func (h *Handle[T]) take() T {
	if !h.live {
		panic("com: use of consumed Handle")
	}
	h.live = false
	return h.obj
}

// QueryAs trades h for a Handle of a different capability type referring
// to the same foreign object.
//
// h is consumed on both branches: the reference it held is released here
// regardless of the outcome, so the net foreign refcount change is zero
// on success (the QueryInterface call accounts for the new reference)
// and -1 on failure. On failure the status code comes back unchanged.
func QueryAs[U Unknown, T Unknown](h *Handle[T], iid *GUID) (Handle[U], error) {
	obj := h.take()
	acquired, hr := obj.QueryInterface(iid)
	obj.Release()
	if hr.Failed() {
		return Handle[U]{}, hr
	}
	u, ok := acquired.(U)
	if !ok {
		// The foreign call handed back an object of the wrong shape;
		// drop the reference it added and report it as unsupported.
		acquired.Release()
		return Handle[U]{}, ENoInterface
	}
	return TakeOwnership(u), nil
}

// Shared is an ownership-sharing, mutually-exclusive-access cell for a
// foreign object used from several capture sessions at once (the D3D11
// device and its immediate context, shared across every duplicated
// output of one adapter). Concurrent command submission through the
// context is undefined in the foreign subsystem, so every use holds the
// lock, but only for the duration of a single call, never across an
// acquire/release pair.
type Shared[T Unknown] struct {
	mu   sync.Mutex
	obj  T
	live bool
}

// Share consumes h and places its object behind the cell's lock.
func Share[T Unknown](h *Handle[T]) *Shared[T] {
	return &Shared[T]{obj: h.take(), live: true}
}

// With runs f with the wrapped object while holding the lock.
func (s *Shared[T]) With(f func(T)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live {
		panic("com: use of closed Shared cell")
	}
	f(s.obj)
}

// Close releases the wrapped reference exactly once.
func (s *Shared[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live {
		return
	}
	s.live = false
	s.obj.Release()
}
