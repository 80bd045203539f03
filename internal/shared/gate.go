package shared

import "sync"

// Gate linearizes core mutations. Every grant, mint, approval and pause
// toggle runs inside Do, so a mutation commits completely before the
// next one starts and threshold reads never observe a half-applied
// state.
type Gate struct {
	mu sync.Mutex
}

// NewGate constructs a Gate.
func NewGate() *Gate {
	return &Gate{}
}

// Do runs fn while holding the gate.
func (g *Gate) Do(fn func() error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fn()
}
