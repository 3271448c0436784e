package notify

import (
	"sync"
)

// Registry maps client-chosen correlation ids to open notification channels.
// It is shared by connection handlers and compression workers; every
// operation is atomic under one lock.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]*Channel
}

func NewRegistry() *Registry {
	return &Registry{
		channels: make(map[string]*Channel),
	}
}

// Register installs ch under id. Any previous channel for the same id is
// superseded and closed: the newest connection wins.
func (r *Registry) Register(id string, ch *Channel) {
	r.mu.Lock()
	old := r.channels[id]
	r.channels[id] = ch
	r.mu.Unlock()

	if old != nil && old != ch {
		old.Close()
	}
}

// Lookup returns the open channel for id, or nil if none is registered or
// the registered one has already closed.
func (r *Registry) Lookup(id string) *Channel {
	r.mu.RLock()
	ch := r.channels[id]
	r.mu.RUnlock()

	if ch == nil || ch.Closed() {
		return nil
	}
	return ch
}

// Unregister removes id only while ch is still the registered channel, so a
// late disconnect never evicts a newer registration that superseded it.
func (r *Registry) Unregister(id string, ch *Channel) {
	r.mu.Lock()
	if r.channels[id] == ch {
		delete(r.channels, id)
	}
	r.mu.Unlock()
}

// Len reports the number of registered channels.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

// CloseAll closes every registered channel and clears the registry. Called
// on server shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	channels := r.channels
	r.channels = make(map[string]*Channel)
	r.mu.Unlock()

	for _, ch := range channels {
		ch.Close()
	}
}
