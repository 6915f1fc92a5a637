package llm

import "sync/atomic"

type activeEntry struct {
	name     string
	provider Provider
}

// Active holds the process-wide active provider. Readers take a consistent
// snapshot per request; a swap never affects streams already started on the
// previous instance.
type Active struct {
	ptr atomic.Pointer[activeEntry]
}

// Load returns the current provider snapshot
func (a *Active) Load() (string, Provider, bool) {
	e := a.ptr.Load()
	if e == nil {
		return "", nil, false
	}
	return e.name, e.provider, true
}

// Store replaces the active provider
func (a *Active) Store(name string, p Provider) {
	a.ptr.Store(&activeEntry{name: name, provider: p})
}

// StoreIfEmpty installs p only when no provider is active yet and returns
// whichever provider is active afterwards.
func (a *Active) StoreIfEmpty(name string, p Provider) (string, Provider) {
	e := &activeEntry{name: name, provider: p}
	if a.ptr.CompareAndSwap(nil, e) {
		return name, p
	}
	cur := a.ptr.Load()
	return cur.name, cur.provider
}
