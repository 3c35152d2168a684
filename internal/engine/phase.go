package engine

import (
	"context"
	"sync"

	"github.com/netq-project/netq/internal/protocol"
)

// phaseBroadcaster is the phase sequencer's single-writer broadcast
// endpoint: the orchestrator reports each phase through set, and any
// goroutine can block in waitAtLeast until a phase is reached. It plays
// the role of a tokio watch::channel, realized with a mutex-guarded
// generation channel instead of a shared receiver clone per listener.
type phaseBroadcaster struct {
	mu    sync.Mutex
	phase protocol.Phase
	ch    chan struct{}
}

func newPhaseBroadcaster() *phaseBroadcaster {
	return &phaseBroadcaster{ch: make(chan struct{})}
}

// set records p as the current phase and wakes every waiter. It does
// not check ordering: the orchestrator reports phases in execution order
// (LoadFromServer before Grace2 and LoadFromClient), which is not the
// numeric order of the Phase constants that waitAtLeast compares.
func (b *phaseBroadcaster) set(p protocol.Phase) {
	b.mu.Lock()
	b.phase = p
	old := b.ch
	b.ch = make(chan struct{})
	b.mu.Unlock()
	close(old)
}

// get returns the current phase without blocking.
func (b *phaseBroadcaster) get() protocol.Phase {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.phase
}

func (b *phaseBroadcaster) snapshot() (protocol.Phase, chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.phase, b.ch
}

// waitAtLeast blocks until the phase is >= target, or ctx is done.
func (b *phaseBroadcaster) waitAtLeast(ctx context.Context, target protocol.Phase) error {
	for {
		p, ch := b.snapshot()
		if p >= target {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
