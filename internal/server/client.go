package server

import (
	"net"
	"sync"
	"time"

	"github.com/netq-project/netq/internal/protocol"
)

// clientState tracks one registered client: its control connection and
// the FIFO of bulk data connections it has associated but not yet
// claimed as an upload or download stream. Claim order is the only
// signal linking a raw connection to a logical stream -- Associate
// carries no stream id on the wire.
type clientState struct {
	id   protocol.ClientId
	ctrl *protocol.Conn

	// ctrlMu serializes writes to ctrl: the control dispatch loop and
	// every spawned stream reporter can all send server messages
	// concurrently.
	ctrlMu sync.Mutex

	mu      sync.Mutex
	pending []net.Conn
}

func newClientState(id protocol.ClientId) *clientState {
	return &clientState{id: id}
}

func (c *clientState) setControl(conn *protocol.Conn) {
	c.ctrlMu.Lock()
	c.ctrl = conn
	c.ctrlMu.Unlock()
}

func (c *clientState) addPending(conn net.Conn) {
	c.mu.Lock()
	c.pending = append(c.pending, conn)
	c.mu.Unlock()
}

// claimOne pops the oldest unclaimed data connection, or returns false
// if none is waiting yet.
func (c *clientState) claimOne() (net.Conn, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		return nil, false
	}
	conn := c.pending[0]
	c.pending = c.pending[1:]
	return conn, true
}

// claimOneWait polls for claimOne to succeed, since the data
// connection's Associate can race behind the control message that
// wants to claim it.
func (c *clientState) claimOneWait(timeout time.Duration) (net.Conn, bool) {
	deadline := time.Now().Add(timeout)
	for {
		if conn, ok := c.claimOne(); ok {
			return conn, true
		}
		if time.Now().After(deadline) {
			return nil, false
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// claimAllWait waits up to timeout for at least one pending connection
// to appear, then settles for a short extra window to let any
// near-simultaneous siblings land before claiming everything queued.
func (c *clientState) claimAllWait(timeout, settle time.Duration) []net.Conn {
	deadline := time.Now().Add(timeout)
	for {
		c.mu.Lock()
		n := len(c.pending)
		c.mu.Unlock()
		if n > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(settle)

	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.pending
	c.pending = nil
	return out
}

func (c *clientState) sendMeasure(msg protocol.ServerMessage) error {
	c.ctrlMu.Lock()
	defer c.ctrlMu.Unlock()
	if c.ctrl == nil {
		return nil
	}
	return c.ctrl.WriteServerMessage(msg)
}
