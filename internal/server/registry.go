package server

import (
	"encoding/binary"
	"sync"

	"github.com/google/uuid"

	"github.com/netq-project/netq/internal/protocol"
)

// registry tracks every client currently registered on this server, and
// mints new ClientIds on demand.
type registry struct {
	mu      sync.Mutex
	clients map[protocol.ClientId]*clientState
}

func newRegistry() *registry {
	return &registry{clients: make(map[protocol.ClientId]*clientState)}
}

// mintClientID derives a ClientId from a fresh UUID's high 8 bytes. A
// uint64 on the wire is cheaper to compare and log than a 16-byte
// UUID, and collision odds stay negligible for a process's lifetime.
func mintClientID() protocol.ClientId {
	id := uuid.New()
	return protocol.ClientId(binary.BigEndian.Uint64(id[:8]))
}

func (r *registry) create() *clientState {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		id := mintClientID()
		if _, exists := r.clients[id]; exists {
			continue
		}
		cs := newClientState(id)
		r.clients[id] = cs
		activeClients.Set(float64(len(r.clients)))
		return cs
	}
}

func (r *registry) get(id protocol.ClientId) (*clientState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cs, ok := r.clients[id]
	return cs, ok
}

func (r *registry) remove(id protocol.ClientId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, id)
	activeClients.Set(float64(len(r.clients)))
}
