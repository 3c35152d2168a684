package engine

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/netq-project/netq/internal/protocol"
)

// loopbackEchoUDP dials a loopback UDP pair, where the returned server
// conn simply echoes every packet back with Time overwritten by 42.
func loopbackEchoUDP(t *testing.T) (*net.UDPConn, func()) {
	t.Helper()
	serverConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	stop := make(chan struct{})
	go func() {
		buf := make([]byte, protocol.MaxUDPPacketSize)
		for {
			select {
			case <-stop:
				return
			default:
			}
			_ = serverConn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
			n, addr, err := serverConn.ReadFromUDP(buf)
			if err != nil {
				continue
			}
			p, err := protocol.DecodePing(buf[:n])
			if err != nil {
				continue
			}
			p.Time = 42
			_, _ = serverConn.WriteToUDP(protocol.EncodePing(p), addr)
		}
	}()

	clientConn, err := net.DialUDP("udp", nil, serverConn.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return clientConn, func() {
		close(stop)
		serverConn.Close()
		clientConn.Close()
	}
}

func TestPingSessionCalibrateOneRoundTrip(t *testing.T) {
	conn, cleanup := loopbackEchoUDP(t)
	defer cleanup()

	s := newPingSession(conn, protocol.ClientId(1), time.Now())
	sample, ok := s.calibrateOne(0, time.Second)
	if !ok {
		t.Fatal("calibrateOne did not get an echo")
	}
	if sample.index != 0 {
		t.Fatalf("index = %d, want 0", sample.index)
	}
	if sample.serverTime != 42*time.Microsecond {
		t.Fatalf("serverTime = %v, want 42us", sample.serverTime)
	}
}

func TestPingSessionContinuousResultsMatchEcho(t *testing.T) {
	conn, cleanup := loopbackEchoUDP(t)
	defer cleanup()

	s := newPingSession(conn, protocol.ClientId(1), time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.startReceiver(ctx)

	idx0, err := s.send(ctx)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	results := s.results(clockOffset{})
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	if results[0].Index != idx0 {
		t.Fatalf("Index = %d, want %d", results[0].Index, idx0)
	}
	if results[0].Latency == nil {
		t.Fatal("expected a matched echo, got loss")
	}
}

func TestPingSessionResultsReportLossWithoutEcho(t *testing.T) {
	serverConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer serverConn.Close()

	clientConn, err := net.DialUDP("udp", nil, serverConn.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer clientConn.Close()

	s := newPingSession(clientConn, protocol.ClientId(1), time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.startReceiver(ctx)

	if _, err := s.send(ctx); err != nil {
		t.Fatalf("send: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	results := s.results(clockOffset{})
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	if results[0].Latency != nil {
		t.Fatal("expected loss (nil Latency) since nothing echoed")
	}
}
