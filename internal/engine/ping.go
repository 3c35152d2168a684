package engine

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/netq-project/netq/internal/protocol"
)

// pingRecord is one probe's bookkeeping: when it was sent, and if an
// echo arrived, when and with what server-stamped time.
type pingRecord struct {
	sent       time.Duration
	hasRecv    bool
	recvTime   time.Duration
	serverTime time.Duration
}

// pingSession owns the UDP ping channel (C4) for one test run: a
// single socket shared by the synchronous calibration exchange and,
// once calibration completes, a continuous paced sender plus a
// background receiver that demultiplexes echoes by index.
type pingSession struct {
	conn       *net.UDPConn
	clientID   protocol.ClientId
	setupStart time.Time

	mu      sync.Mutex
	records map[uint32]*pingRecord
	nextIdx uint32
}

func newPingSession(conn *net.UDPConn, clientID protocol.ClientId, setupStart time.Time) *pingSession {
	return &pingSession{
		conn:       conn,
		clientID:   clientID,
		setupStart: setupStart,
		records:    make(map[uint32]*pingRecord),
	}
}

func (s *pingSession) now() time.Duration {
	return time.Since(s.setupStart)
}

// send allocates the next index, records its send time even if the
// write fails, and transmits the probe. Recording the index on a
// failed write preserves index density: a probe that never left the
// host still counts as a sent-but-lost ping rather than a gap.
func (s *pingSession) send(ctx context.Context) (uint32, error) {
	s.mu.Lock()
	idx := s.nextIdx
	s.nextIdx++
	sent := s.now()
	s.records[idx] = &pingRecord{sent: sent}
	s.mu.Unlock()

	p := protocol.Ping{Id: s.clientID, Time: uint64(sent.Microseconds()), Index: idx}
	_, err := s.conn.Write(protocol.EncodePing(p))
	return idx, err
}

// calibrateOne sends probe index and synchronously waits for its echo,
// used only for the pre-load calibration exchange before startReceiver
// and runSender take over the socket.
func (s *pingSession) calibrateOne(index uint32, timeout time.Duration) (calibrationSample, bool) {
	sent := s.now()
	p := protocol.Ping{Id: s.clientID, Time: uint64(sent.Microseconds()), Index: index}
	if _, err := s.conn.Write(protocol.EncodePing(p)); err != nil {
		return calibrationSample{}, false
	}

	// One spare byte so an oversize datagram arrives longer than
	// MaxUDPPacketSize and DecodePing rejects it.
	buf := make([]byte, protocol.MaxUDPPacketSize+1)
	for {
		_ = s.conn.SetReadDeadline(time.Now().Add(timeout))
		n, err := s.conn.Read(buf)
		if err != nil {
			return calibrationSample{}, false
		}
		echo, err := protocol.DecodePing(buf[:n])
		if err != nil {
			continue
		}
		recv := s.now()
		if echo.Index != index {
			// A straggler from an earlier probe; keep waiting for ours
			// within the same deadline.
			continue
		}
		return calibrationSample{
			index:      index,
			sent:       sent,
			recv:       recv,
			serverTime: time.Duration(echo.Time) * time.Microsecond,
		}, true
	}
}

// startReceiver begins the continuous echo-consuming goroutine used
// from the first load phase through EndPingRecv. Must only be called
// after calibration completes, since calibrateOne reads the same
// socket synchronously.
func (s *pingSession) startReceiver(ctx context.Context) {
	go func() {
		buf := make([]byte, protocol.MaxUDPPacketSize+1)
		for ctx.Err() == nil {
			_ = s.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
			n, err := s.conn.Read(buf)
			if err != nil {
				continue
			}
			echo, err := protocol.DecodePing(buf[:n])
			if err != nil {
				continue
			}
			recv := s.now()

			s.mu.Lock()
			if rec, ok := s.records[echo.Index]; ok && !rec.hasRecv {
				rec.hasRecv = true
				rec.recvTime = recv
				rec.serverTime = time.Duration(echo.Time) * time.Microsecond
			}
			s.mu.Unlock()
		}
	}()
}

// runSender paces continuous probes at interval until stop is closed
// or ctx is done.
func (s *pingSession) runSender(ctx context.Context, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_, _ = s.send(ctx)
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// results returns every recorded ping in index order. A probe with no
// matching echo is reported with a nil Latency: loss.
func (s *pingSession) results(offset clockOffset) []RawPing {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]RawPing, 0, len(s.records))
	for idx := uint32(0); idx < s.nextIdx; idx++ {
		rec, ok := s.records[idx]
		if !ok {
			continue
		}
		ping := RawPing{Index: idx, Sent: rec.sent}
		if rec.hasRecv {
			lat := offset.split(rec.sent, rec.recvTime, rec.serverTime)
			ping.Latency = &lat
		}
		out = append(out, ping)
	}
	return out
}
