//go:build linux

package metrics

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// TCPInfo captures the handful of TCP_INFO fields worth logging when a
// loader stream closes: retransmits and segments sent give an informal
// loss signal independent of the ping channel's own loss accounting.
type TCPInfo struct {
	Retransmits  uint64
	SegmentsSent uint64
}

// ReadTCPInfo reads TCP_INFO from a connected TCP socket. Errors are
// non-fatal to the caller -- this is a diagnostic, not part of RawResult.
func ReadTCPInfo(conn *net.TCPConn) (TCPInfo, error) {
	rawConn, err := conn.SyscallConn()
	if err != nil {
		return TCPInfo{}, fmt.Errorf("syscall conn: %w", err)
	}
	var info *unix.TCPInfo
	var sockErr error
	if err := rawConn.Control(func(fd uintptr) {
		info, sockErr = unix.GetsockoptTCPInfo(int(fd), unix.IPPROTO_TCP, unix.TCP_INFO)
	}); err != nil {
		return TCPInfo{}, fmt.Errorf("control: %w", err)
	}
	if sockErr != nil {
		return TCPInfo{}, fmt.Errorf("getsockopt TCP_INFO: %w", sockErr)
	}
	if info == nil {
		return TCPInfo{}, fmt.Errorf("getsockopt TCP_INFO: nil info")
	}
	segs := uint64(info.Data_segs_out)
	if segs == 0 {
		segs = uint64(info.Segs_out)
	}
	return TCPInfo{
		Retransmits:  uint64(info.Total_retrans),
		SegmentsSent: segs,
	}, nil
}

// TuneSendBuffer sizes the socket's send buffer for the given target
// bandwidth-delay product, best-effort.
func TuneSendBuffer(conn *net.TCPConn, bytes int) {
	if bytes <= 0 {
		return
	}
	_ = conn.SetWriteBuffer(bytes)
}
