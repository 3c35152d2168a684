package server

import (
	"io"
	"net"
)

// dataConn wraps a raw connection whose handshake was read through a
// buffered protocol.Conn: Read is served from that buffer first so no
// payload bytes the handshake's read already pulled off the socket are
// lost, while Write and the rest of net.Conn pass straight through.
type dataConn struct {
	net.Conn
	r io.Reader
}

func (d *dataConn) Read(p []byte) (int, error) {
	return d.r.Read(p)
}

// underlyingTCPConn unwraps a dataConn to reach the *net.TCPConn
// underneath, for socket tuning.
func underlyingTCPConn(c net.Conn) (*net.TCPConn, bool) {
	if dc, ok := c.(*dataConn); ok {
		c = dc.Conn
	}
	tc, ok := c.(*net.TCPConn)
	return tc, ok
}
