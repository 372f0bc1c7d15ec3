package network

import (
	"errors"
	"fmt"
	"sync"
)

// Guarded shares one Network between goroutines. Readers run under a read
// lock and mutators under the write lock.
type Guarded struct {
	mu sync.RWMutex
	n  *Network
}

// NewGuarded wraps n. A nil n starts from an empty network.
func NewGuarded(n *Network) *Guarded {
	if n == nil {
		n = New()
	}
	return &Guarded{n: n}
}

// View runs fn with shared access. fn must not mutate the network or retain
// it after returning.
func (g *Guarded) View(fn func(*Network) error) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return fn(g.n)
}

// Update runs fn with exclusive access.
func (g *Guarded) Update(fn func(*Network) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fn(g.n)
}

// UpdateOrRestore runs fn with exclusive access. When fn fails, restore
// supplies the network that replaces the possibly half-mutated one before the
// lock is released. A nil restore, or a nil network from it, keeps the
// current network.
func (g *Guarded) UpdateOrRestore(fn func(*Network) error, restore func() (*Network, error)) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	err := fn(g.n)
	if err == nil || restore == nil {
		return err
	}
	prev, rerr := restore()
	if rerr != nil {
		return errors.Join(err, fmt.Errorf("restoring network: %w", rerr))
	}
	if prev != nil {
		g.n = prev
	}
	return err
}

// Replace swaps in a new network, e.g. after a reload from storage.
func (g *Guarded) Replace(n *Network) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = n
}
