package portset

import (
	"sync"

	"github.com/leandrodaf/midiport/sdk/contracts"
)

// Gate forwards deliveries to a callback until it is shut. Shut waits for
// deliveries already past the gate, so after it returns the callback is
// neither running nor going to run again.
type Gate struct {
	mu     sync.RWMutex
	closed bool
	fn     contracts.ReceiveFunc
}

// NewGate returns an open gate delivering to fn.
func NewGate(fn contracts.ReceiveFunc) *Gate {
	return &Gate{fn: fn}
}

// Deliver calls the callback unless the gate is shut. It reports whether
// the message was delivered.
func (g *Gate) Deliver(timestamp float64, data []byte) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed || g.fn == nil {
		return false
	}
	g.fn(timestamp, data)
	return true
}

// Shut closes the gate and waits for in-flight deliveries. It is idempotent.
func (g *Gate) Shut() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}

// Closed reports whether Shut has been called.
func (g *Gate) Closed() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.closed
}
