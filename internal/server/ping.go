package server

import (
	"net"
	"time"

	"github.com/netq-project/netq/internal/protocol"
)

// servePing echoes every well-formed ping packet back to its sender,
// rewriting Time to this server's own clock so the client can derive
// the clock offset between the two sides. ClientId and Index pass
// through unchanged.
func servePing(conn *net.UDPConn, start time.Time, done <-chan struct{}) {
	// One spare byte so an oversize datagram arrives longer than
	// MaxUDPPacketSize and DecodePing rejects it.
	buf := make([]byte, protocol.MaxUDPPacketSize+1)
	for {
		select {
		case <-done:
			return
		default:
		}
		_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			continue
		}
		p, err := protocol.DecodePing(buf[:n])
		if err != nil {
			continue
		}
		p.Time = uint64(time.Since(start).Microseconds())
		_, _ = conn.WriteToUDP(protocol.EncodePing(p), addr)
	}
}
