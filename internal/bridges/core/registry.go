package core

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is a concurrency-safe map from key to handler that refuses to
// overwrite an existing entry.
type Registry[K comparable, H any] struct {
	mu      sync.RWMutex
	entries map[K]H
}

// NewRegistry creates an empty registry.
func NewRegistry[K comparable, H any]() *Registry[K, H] {
	return &Registry[K, H]{entries: make(map[K]H)}
}

// Register adds h under key. It returns false if key is already taken, in
// which case the existing entry is left untouched.
func (r *Registry[K, H]) Register(key K, h H) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[key]; exists {
		return false
	}
	r.entries[key] = h
	return true
}

// Unregister removes key. Removing an absent key is a no-op.
func (r *Registry[K, H]) Unregister(key K) {
	r.mu.Lock()
	delete(r.entries, key)
	r.mu.Unlock()
}

// Lookup returns the handler for key.
func (r *Registry[K, H]) Lookup(key K) (H, bool) {
	r.mu.RLock()
	h, ok := r.entries[key]
	r.mu.RUnlock()
	return h, ok
}

// Len returns the number of entries.
func (r *Registry[K, H]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Keys returns a snapshot of all keys in unspecified order.
func (r *Registry[K, H]) Keys() []K {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]K, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	return keys
}

// Clear removes all entries.
func (r *Registry[K, H]) Clear() {
	r.mu.Lock()
	clear(r.entries)
	r.mu.Unlock()
}

// DeviceRegistry maps device addresses to handlers, with one Registry per
// protocol family keyed by the raw device id.
type DeviceRegistry struct {
	families map[Family]*Registry[uint64, Handler]
}

// NewDeviceRegistry creates a registry covering every supported family.
func NewDeviceRegistry() *DeviceRegistry {
	r := &DeviceRegistry{families: make(map[Family]*Registry[uint64, Handler], len(Families))}
	for _, f := range Families {
		r.families[f] = NewRegistry[uint64, Handler]()
	}
	return r
}

// Register attaches h to addr.
//
// Returns ErrDuplicateAddress if addr already has a handler; the existing
// handler keeps receiving messages.
func (r *DeviceRegistry) Register(addr DeviceAddress, h Handler) error {
	if h == nil {
		return ErrNilHandler
	}
	reg, ok := r.families[addr.Family]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFamily, addr.Family)
	}
	if !reg.Register(addr.ID, h) {
		return fmt.Errorf("%w: %s", ErrDuplicateAddress, addr)
	}
	return nil
}

// Unregister detaches whatever handler owns addr. Unknown addresses are
// ignored.
func (r *DeviceRegistry) Unregister(addr DeviceAddress) {
	if reg, ok := r.families[addr.Family]; ok {
		reg.Unregister(addr.ID)
	}
}

// Lookup returns the handler owning addr.
func (r *DeviceRegistry) Lookup(addr DeviceAddress) (Handler, bool) {
	reg, ok := r.families[addr.Family]
	if !ok {
		return nil, false
	}
	return reg.Lookup(addr.ID)
}

// Len returns the number of registered devices across all families.
func (r *DeviceRegistry) Len() int {
	n := 0
	for _, reg := range r.families {
		n += reg.Len()
	}
	return n
}

// Addresses returns every registered address, sorted by family then id.
func (r *DeviceRegistry) Addresses() []DeviceAddress {
	var out []DeviceAddress
	for _, f := range Families {
		for _, id := range r.families[f].Keys() {
			out = append(out, DeviceAddress{Family: f, ID: id})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Family != out[j].Family {
			return out[i].Family < out[j].Family
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// AddressesOf returns the registered addresses of one family.
func (r *DeviceRegistry) AddressesOf(f Family) []DeviceAddress {
	reg, ok := r.families[f]
	if !ok {
		return nil
	}
	ids := reg.Keys()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]DeviceAddress, len(ids))
	for i, id := range ids {
		out[i] = DeviceAddress{Family: f, ID: id}
	}
	return out
}

// Clear removes every registration.
func (r *DeviceRegistry) Clear() {
	for _, reg := range r.families {
		reg.Clear()
	}
}
