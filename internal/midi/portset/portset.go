// Package portset holds the bookkeeping shared by every transport backend:
// token allocation, the per-process exclusive hold on a port, and
// synchronous delivery shutdown.
package portset

import (
	"fmt"
	"sync"
	"time"

	"github.com/leandrodaf/midiport/sdk/contracts"
)

// Conn is one opened port.
type Conn struct {
	ID       contracts.PortID
	Token    contracts.PortToken
	OpenedAt time.Time
	Native   any // Backend-specific state, fixed at Reserve.

	gate *Gate
}

// Deliver forwards data stamped with the time elapsed since the port was opened.
func (c *Conn) Deliver(data []byte) bool {
	return c.gate.Deliver(time.Since(c.OpenedAt).Seconds(), data)
}

// DeliverAt forwards data with a timestamp supplied by the driver.
func (c *Conn) DeliverAt(timestamp float64, data []byte) bool {
	return c.gate.Deliver(timestamp, data)
}

// Shut stops delivery and waits for in-flight callbacks.
func (c *Conn) Shut() {
	c.gate.Shut()
}

// Set tracks the open ports of one transport.
type Set struct {
	mu    sync.Mutex
	next  contracts.PortToken
	conns map[contracts.PortToken]*Conn
	byID  map[contracts.PortID]contracts.PortToken
}

// New returns an empty set.
func New() *Set {
	return &Set{
		conns: make(map[contracts.PortToken]*Conn),
		byID:  make(map[contracts.PortID]contracts.PortToken),
	}
}

// Reserve claims the exclusive hold on id and allocates a token. native is
// stored before the connection becomes visible to Get and Tokens. The
// connection delivers to onReceive until it is shut.
func (s *Set) Reserve(id contracts.PortID, native any, onReceive contracts.ReceiveFunc) (*Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, held := s.byID[id]; held {
		return nil, fmt.Errorf("%w: %s is already open", contracts.ErrPortBusy, id)
	}
	s.next++
	c := &Conn{
		ID:       id,
		Token:    s.next,
		OpenedAt: time.Now(),
		Native:   native,
		gate:     NewGate(onReceive),
	}
	s.conns[c.Token] = c
	s.byID[id] = c.Token
	return c, nil
}

// Get returns the open connection for token.
func (s *Set) Get(token contracts.PortToken) (*Conn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[token]
	return c, ok
}

// Release removes the connection for token and returns it. The second
// result is false when token is unknown or already released.
func (s *Set) Release(token contracts.PortToken) (*Conn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[token]
	if !ok {
		return nil, false
	}
	delete(s.conns, token)
	delete(s.byID, c.ID)
	return c, true
}

// Held reports whether id is currently open.
func (s *Set) Held(id contracts.PortID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byID[id]
	return ok
}

// Tokens returns the tokens of every open connection.
func (s *Set) Tokens() []contracts.PortToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	tokens := make([]contracts.PortToken, 0, len(s.conns))
	for t := range s.conns {
		tokens = append(tokens, t)
	}
	return tokens
}

// Len returns the number of open connections.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}
