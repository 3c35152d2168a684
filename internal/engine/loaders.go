package engine

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/netq-project/netq/internal/metrics"
	"github.com/netq-project/netq/internal/payload"
	"github.com/netq-project/netq/internal/protocol"
)

// pointCollector accumulates one stream's bandwidth time series. For a
// download loader the points come from the client's own local byte
// counter; for an upload loader they arrive as SMMeasure control
// messages reported by the server, since the client cannot observe
// bytes as the remote peer actually received them.
type pointCollector struct {
	mu     sync.Mutex
	points []RawPoint
}

func (p *pointCollector) add(t time.Duration, bytes uint64) {
	p.mu.Lock()
	p.points = append(p.points, RawPoint{Time: t, Bytes: bytes})
	p.mu.Unlock()
}

func (p *pointCollector) snapshot() []RawPoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]RawPoint, len(p.points))
	copy(out, p.points)
	return out
}

// dialDataConn opens a dedicated bulk-data connection and associates
// it with clientID. Which logical stream the server treats it as is
// implicit in connection order, not a wire field: the server assigns
// the next unclaimed upload or download slot for that client as each
// of the N+N connections arrives, mirroring the reference
// implementation's own stream identification.
func dialDataConn(ctx context.Context, addr string, clientID protocol.ClientId) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	c := protocol.NewConn(conn)
	if err := c.WriteHello(); err != nil {
		conn.Close()
		return nil, err
	}
	if err := c.WriteClientMessage(protocol.ClientMessage{Kind: protocol.CMAssociate, ClientId: clientID}); err != nil {
		conn.Close()
		return nil, err
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		metrics.TuneSendBuffer(tc, payload.Size*4)
	}
	return conn, nil
}

// logTCPInfo emits a best-effort retransmit diagnostic for a stream
// that just finished; unsupported platforms and transient syscall
// errors are silently ignored, since this is informational only and
// never part of RawResult.
func logTCPInfo(conn net.Conn, label string) {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	info, err := metrics.ReadTCPInfo(tc)
	if err != nil {
		return
	}
	slog.Default().Debug("stream tcp_info", "stream", label, "retransmits", info.Retransmits, "segments_sent", info.SegmentsSent)
}

// downloadLoader reads a server push firehose and counts bytes locally.
type downloadLoader struct {
	conn    net.Conn
	counter metrics.ByteCounter
	points  pointCollector
}

func newDownloadLoader(conn net.Conn) *downloadLoader {
	return &downloadLoader{conn: conn}
}

// run reads until stop is closed, ctx is cancelled, or the connection
// errors. It samples its own counter on interval and stops sampling
// only after the read loop exits, guaranteeing a final sample at the
// terminal byte count.
func (d *downloadLoader) run(ctx context.Context, setupStart time.Time, interval time.Duration, stop <-chan struct{}) {
	sampleStop := make(chan struct{})
	var samplerDone sync.WaitGroup
	samplerDone.Add(1)
	go func() {
		defer samplerDone.Done()
		metrics.RunSampler(interval, setupStart, &d.counter, sampleStop, func(s metrics.Sample) {
			d.points.add(time.Duration(s.TimeMicros)*time.Microsecond, s.Bytes)
		})
	}()

	buf := make([]byte, 32*1024)
loop:
	for {
		select {
		case <-stop:
			break loop
		case <-ctx.Done():
			break loop
		default:
		}
		_ = d.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, err := d.conn.Read(buf)
		if n > 0 {
			d.counter.Add(uint64(n))
		}
		if err != nil {
			if isTimeout(err) {
				continue
			}
			break
		}
	}
	close(sampleStop)
	samplerDone.Wait()
	logTCPInfo(d.conn, "download")
}

// uploadLoader writes the fixed payload as fast as the connection
// accepts it. It reports no bandwidth locally: the server owns the
// measurement and reports it back over the control channel.
type uploadLoader struct {
	conn   net.Conn
	points pointCollector
}

func newUploadLoader(conn net.Conn) *uploadLoader {
	return &uploadLoader{conn: conn}
}

// run writes the payload back-to-back; conn.Write is itself a
// scheduler park point once the socket buffer fills, giving the
// per-write yield the reference implementation takes explicitly.
func (u *uploadLoader) run(ctx context.Context, stop <-chan struct{}) {
	defer logTCPInfo(u.conn, "upload")
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		default:
		}
		if _, err := u.conn.Write(payload.Buffer); err != nil {
			return
		}
	}
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// loaderGroup is the completion quorum for one phase/direction's set
// of loaders: every spawned loader must return before wait unblocks,
// so the orchestrator never advances the phase sequencer while a
// stream is still mid-flight.
type loaderGroup struct {
	wg sync.WaitGroup
}

func (g *loaderGroup) spawn(f func()) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		f()
	}()
}

func (g *loaderGroup) wait() {
	g.wg.Wait()
}

// staggerDelay returns how long stream index i should wait before its
// first byte, so N parallel streams don't all slam the link in the
// same instant. offset shifts every stream in a group uniformly,
// used to separate the bidirectional phase's upload streams from its
// download streams (download starts at offset 0, upload at
// stagger/2) so the two directions don't ramp up together.
func staggerDelay(i int, stagger, offset time.Duration) time.Duration {
	return time.Duration(i)*stagger + offset
}
