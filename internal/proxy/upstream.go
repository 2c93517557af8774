package proxy

import (
	"math/rand/v2"
	"sync"
)

// UpstreamStatus is a point-in-time view of one upstream's liveness,
// used by the admin API and the status command.
type UpstreamStatus struct {
	Address string `json:"address"`
	Alive   bool   `json:"alive"`
}

// Registry holds the fixed set of upstream addresses and a liveness flag for
// each. Connection handlers read it concurrently; the health checker is the
// only writer during steady state, though handlers also mark upstreams dead
// on connect failure. All access goes through the registry lock.
type Registry struct {
	mu        sync.RWMutex
	addresses []string
	alive     map[string]bool
}

// NewRegistry creates a registry for the given upstream addresses.
// Every upstream starts out alive; the first health-check cycle corrects
// that if needed.
func NewRegistry(addresses []string) *Registry {
	alive := make(map[string]bool, len(addresses))
	addrs := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if _, ok := alive[addr]; ok {
			continue
		}
		alive[addr] = true
		addrs = append(addrs, addr)
	}
	return &Registry{
		addresses: addrs,
		alive:     alive,
	}
}

// Addresses returns the upstream addresses in registration order.
func (r *Registry) Addresses() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.addresses))
	copy(out, r.addresses)
	return out
}

// IsAlive reports whether the given upstream is currently flagged alive.
// Unknown addresses are reported dead.
func (r *Registry) IsAlive(address string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.alive[address]
}

// SetAlive updates the liveness flag for the given upstream. Addresses that
// were not registered at startup are ignored.
func (r *Registry) SetAlive(address string, alive bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.alive[address]; !ok {
		return
	}
	r.alive[address] = alive
}

// SelectRandomLive draws uniformly among the upstreams currently flagged
// alive. The second return value is false when every upstream is dead.
func (r *Registry) SelectRandomLive() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	live := make([]string, 0, len(r.addresses))
	for _, addr := range r.addresses {
		if r.alive[addr] {
			live = append(live, addr)
		}
	}
	if len(live) == 0 {
		return "", false
	}
	return live[rand.IntN(len(live))], true
}

// LiveCount returns the number of upstreams currently flagged alive.
func (r *Registry) LiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, alive := range r.alive {
		if alive {
			n++
		}
	}
	return n
}

// Snapshot returns the liveness of every upstream in registration order.
func (r *Registry) Snapshot() []UpstreamStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]UpstreamStatus, 0, len(r.addresses))
	for _, addr := range r.addresses {
		out = append(out, UpstreamStatus{Address: addr, Alive: r.alive[addr]})
	}
	return out
}
