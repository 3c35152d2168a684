package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/netq-project/netq/internal/protocol"
	"github.com/netq-project/netq/internal/util"
)

const (
	calibrationSamples  = 50
	calibrationInterval = 10 * time.Millisecond
	calibrationTimeout  = 200 * time.Millisecond
	doneDrainDelay      = 500 * time.Millisecond
	measureDrainDelay   = 150 * time.Millisecond
)

// measureRouter demultiplexes SMMeasure control messages, keyed by the
// TestStream the client assigned at CMLoadFromClient time, to the
// upload loader waiting on that stream's samples.
type measureRouter struct {
	mu         sync.Mutex
	collectors map[protocol.TestStream]*pointCollector
}

func newMeasureRouter() *measureRouter {
	return &measureRouter{collectors: make(map[protocol.TestStream]*pointCollector)}
}

func (r *measureRouter) register(s protocol.TestStream, c *pointCollector) {
	r.mu.Lock()
	r.collectors[s] = c
	r.mu.Unlock()
}

func (r *measureRouter) unregister(s protocol.TestStream) {
	r.mu.Lock()
	delete(r.collectors, s)
	r.mu.Unlock()
}

func (r *measureRouter) dispatch(msg protocol.ServerMessage) {
	if msg.Kind != protocol.SMMeasure {
		return
	}
	r.mu.Lock()
	c := r.collectors[msg.Stream]
	r.mu.Unlock()
	if c != nil {
		c.add(time.Duration(msg.TimeMicros)*time.Microsecond, msg.Bytes)
	}
}

// Run drives one complete test against host:cfg.Port and returns the
// assembled result. It owns the control connection, the UDP ping
// channel, and every bulk data connection for the run's lifetime.
func Run(ctx context.Context, host string, cfg Config, progress ProgressFunc, log *slog.Logger) (Result, error) {
	if log == nil {
		log = slog.Default()
	}
	if progress == nil {
		progress = func(Progress) {}
	}
	addr := util.NetJoin(host, int(cfg.Port))

	var dialer net.Dialer
	tcpConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}
	defer tcpConn.Close()

	ctrl := protocol.NewConn(tcpConn)
	if err := ctrl.WriteHello(); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}
	if err := ctrl.ReadHello(); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrHandshakeMismatch, err)
	}

	if err := ctrl.WriteClientMessage(protocol.ClientMessage{Kind: protocol.CMNewClient}); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}
	granted, err := ctrl.ReadServerMessage()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrProtocolViolation, err)
	}
	if granted.Kind != protocol.SMNewClient || !granted.Granted {
		return Result{}, ErrServerRejected
	}
	clientID := granted.ClientId
	log.Info("registered with server", "client_id", uint64(clientID), "addr", addr)

	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}
	udpConn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}
	defer udpConn.Close()

	ipv6 := udpAddr.IP.To4() == nil
	setupStart := time.Now()

	ping := newPingSession(udpConn, clientID, setupStart)
	calSamples, err := calibrate(ctx, calibrationSamples, calibrationInterval,
		func(_ context.Context, idx uint32) (calibrationSample, bool) {
			return ping.calibrateOne(idx, calibrationTimeout)
		})
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	offset, err := estimateClockOffset(calSamples)
	if err != nil {
		return Result{}, err
	}
	log.Info("latency calibrated", "server_latency", offset.serverLatency, "offset", offset.offset)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	ping.startReceiver(runCtx)
	pingStop := make(chan struct{})
	go ping.runSender(runCtx, cfg.PingInterval, pingStop)

	router := newMeasureRouter()
	controlErr := make(chan error, 1)
	go func() {
		for {
			msg, err := ctrl.ReadServerMessage()
			if err != nil {
				select {
				case controlErr <- err:
				default:
				}
				return
			}
			router.dispatch(msg)
		}
	}()

	if err := ctrl.WriteClientMessage(protocol.ClientMessage{Kind: protocol.CMGetMeasurements}); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}

	phases := newPhaseBroadcaster()
	report := func(p protocol.Phase, status string) {
		phases.set(p)
		progress(Progress{Phase: p, Status: status})
	}
	checkAborted := func() error {
		select {
		case err := <-controlErr:
			return fmt.Errorf("%w: %v", ErrLoadAborted, err)
		default:
			return nil
		}
	}
	sleepGrace := func() error {
		select {
		case <-time.After(cfg.GraceDuration):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	report(protocol.Setup, "")
	// loadStart is captured here, before Grace1, the same reference
	// point crusader's own start := Instant::now() uses immediately
	// ahead of its first grace sleep (test.rs:269) -- Duration below
	// spans that point through the EndPingRecv drain, not just the
	// loaded phases themselves.
	loadStart := time.Since(setupStart)

	var downloadGroup, uploadGroup, bothDownloadGroup, bothUploadGroup RawStreamGroup

	// Phases run download, then upload, then bidirectional, matching
	// crusader's test.rs ordering (LoadFromServer block, then
	// LoadFromClient, then LoadFromBoth) and spec §4.6/§4.8/S1/S2.
	if cfg.Download {
		report(protocol.Grace1, "")
		if err := sleepGrace(); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrCancelled, err)
		}
		report(protocol.LoadFromServer, "")
		g, err := runDownloadGroup(ctx, addr, clientID, ctrl, 0, 0, cfg, setupStart, progress)
		if err != nil {
			return Result{}, err
		}
		downloadGroup = g
		if err := checkAborted(); err != nil {
			return Result{}, err
		}
	}

	if cfg.Upload {
		report(protocol.Grace2, "")
		if err := sleepGrace(); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrCancelled, err)
		}
		report(protocol.LoadFromClient, "")
		g, err := runUploadGroup(ctx, addr, clientID, ctrl, router, 0, 0, cfg, progress)
		if err != nil {
			return Result{}, err
		}
		uploadGroup = g
		if err := checkAborted(); err != nil {
			return Result{}, err
		}
	}

	if cfg.Both {
		report(protocol.Grace3, "")
		if err := sleepGrace(); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrCancelled, err)
		}
		report(protocol.LoadFromBoth, "")

		var upErr, downErr error
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			// The upload side of the bidirectional phase starts
			// stream_stagger/2 after the download side, so the two
			// directions don't both ramp up in the same instant
			// (test.rs:181,587).
			bothUploadGroup, upErr = runUploadGroup(ctx, addr, clientID, ctrl, router, 1, cfg.StreamStagger/2, cfg, progress)
		}()
		go func() {
			defer wg.Done()
			bothDownloadGroup, downErr = runDownloadGroup(ctx, addr, clientID, ctrl, 1, 0, cfg, setupStart, progress)
		}()
		wg.Wait()
		if upErr != nil {
			return Result{}, upErr
		}
		if downErr != nil {
			return Result{}, downErr
		}
		bothDownloadGroup.Both = true
		bothUploadGroup.Both = true
		if err := checkAborted(); err != nil {
			return Result{}, err
		}
	}

	report(protocol.Grace4, "")
	if err := sleepGrace(); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	report(protocol.End, "")
	_ = ctrl.WriteClientMessage(protocol.ClientMessage{Kind: protocol.CMDone})

	select {
	case <-time.After(doneDrainDelay):
	case <-ctx.Done():
		return Result{}, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
	}

	report(protocol.EndPingRecv, "")
	close(pingStop)
	time.Sleep(measureDrainDelay)
	loadEnd := time.Since(setupStart)
	cancelRun()

	// StreamGroups are assembled download, both-download, upload,
	// both-upload (test.rs:371-400's add_down(false), add_down(true),
	// upload 0, upload 1); groups of disabled phases are omitted.
	var groups []RawStreamGroup
	if cfg.Download {
		groups = append(groups, downloadGroup)
	}
	if cfg.Both {
		groups = append(groups, bothDownloadGroup)
	}
	if cfg.Upload {
		groups = append(groups, uploadGroup)
	}
	if cfg.Both {
		groups = append(groups, bothUploadGroup)
	}

	return Result{
		Config: RawConfig{
			Stagger:           cfg.StreamStagger,
			LoadDuration:      cfg.LoadDuration,
			GraceDuration:     cfg.GraceDuration,
			PingInterval:      cfg.PingInterval,
			BandwidthInterval: cfg.BandwidthInterval,
		},
		IPv6:          ipv6,
		ServerLatency: offset.serverLatency,
		Start:         loadStart,
		Duration:      satSub(loadEnd, loadStart),
		StreamGroups:  groups,
		Pings:         ping.results(offset),
	}, nil
}

// runDownloadGroup dials cfg.Streams download connections, triggers the
// server push with a single LoadFromServer control message, and runs
// each connection's reader for cfg.LoadDuration before tearing down.
// staggerOffset is added to every stream's stagger delay, used to
// offset the bidirectional phase's two directions from each other.
func runDownloadGroup(ctx context.Context, addr string, clientID protocol.ClientId, ctrl *protocol.Conn, group uint32, staggerOffset time.Duration, cfg Config, setupStart time.Time, progress ProgressFunc) (RawStreamGroup, error) {
	n := int(cfg.Streams)
	loaders := make([]*downloadLoader, n)
	conns := make([]net.Conn, n)
	for i := 0; i < n; i++ {
		conn, err := dialDataConn(ctx, addr, clientID)
		if err != nil {
			closeAll(conns[:i])
			return RawStreamGroup{}, fmt.Errorf("%w: %v", ErrConnectFailed, err)
		}
		conns[i] = conn
		loaders[i] = newDownloadLoader(conn)
	}
	defer closeAll(conns)

	if err := ctrl.WriteClientMessage(protocol.ClientMessage{Kind: protocol.CMLoadFromServer}); err != nil {
		return RawStreamGroup{}, fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}

	return runLoadGroup(ctx, cfg, group, false, func(i int, stop <-chan struct{}) {
		time.Sleep(staggerDelay(i, cfg.StreamStagger, staggerOffset))
		loaders[i].run(ctx, setupStart, cfg.BandwidthInterval, stop)
	}, func(i int) []RawPoint {
		return loaders[i].points.snapshot()
	})
}

// runUploadGroup dials cfg.Streams upload connections, tells the server
// which logical stream each one is with a LoadFromClient message per
// stream, and writes to each for cfg.LoadDuration. Bandwidth samples
// come back over the control channel via router, since only the
// receiving end (the server) can report bytes actually delivered.
// staggerOffset is added to every stream's stagger delay, used to
// offset the bidirectional phase's two directions from each other.
func runUploadGroup(ctx context.Context, addr string, clientID protocol.ClientId, ctrl *protocol.Conn, router *measureRouter, group uint32, staggerOffset time.Duration, cfg Config, progress ProgressFunc) (RawStreamGroup, error) {
	n := int(cfg.Streams)
	loaders := make([]*uploadLoader, n)
	conns := make([]net.Conn, n)
	streams := make([]protocol.TestStream, n)

	for i := 0; i < n; i++ {
		conn, err := dialDataConn(ctx, addr, clientID)
		if err != nil {
			closeAll(conns[:i])
			return RawStreamGroup{}, fmt.Errorf("%w: %v", ErrConnectFailed, err)
		}
		conns[i] = conn
		loaders[i] = newUploadLoader(conn)
		streams[i] = protocol.TestStream{Group: group, Id: uint32(i)}
		router.register(streams[i], &loaders[i].points)

		if err := ctrl.WriteClientMessage(protocol.ClientMessage{
			Kind:                    protocol.CMLoadFromClient,
			Stream:                  streams[i],
			BandwidthIntervalMicros: uint64(cfg.BandwidthInterval.Microseconds()),
		}); err != nil {
			closeAll(conns[:i+1])
			return RawStreamGroup{}, fmt.Errorf("%w: %v", ErrConnectFailed, err)
		}
	}
	defer func() {
		for _, s := range streams {
			router.unregister(s)
		}
	}()
	defer closeAll(conns)

	return runLoadGroup(ctx, cfg, group, true, func(i int, stop <-chan struct{}) {
		time.Sleep(staggerDelay(i, cfg.StreamStagger, staggerOffset))
		loaders[i].run(ctx, stop)
	}, func(i int) []RawPoint {
		return loaders[i].points.snapshot()
	})
}

// runLoadGroup is the common per-direction body: spawn n stream
// goroutines under a loaderGroup quorum, hold the phase open for
// cfg.LoadDuration, then stop and collect each stream's series.
func runLoadGroup(ctx context.Context, cfg Config, group uint32, download bool, spawn func(i int, stop <-chan struct{}), collect func(i int) []RawPoint) (RawStreamGroup, error) {
	n := int(cfg.Streams)
	stop := make(chan struct{})
	var g loaderGroup
	for i := 0; i < n; i++ {
		i := i
		g.spawn(func() { spawn(i, stop) })
	}

	select {
	case <-time.After(cfg.LoadDuration):
	case <-ctx.Done():
		close(stop)
		g.wait()
		return RawStreamGroup{}, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
	}
	close(stop)
	g.wait()

	if !download {
		time.Sleep(measureDrainDelay)
	}

	streams := make([]RawStream, n)
	for i := 0; i < n; i++ {
		streams[i] = RawStream{Data: collect(i)}
	}
	return RawStreamGroup{Download: download, Streams: streams}, nil
}

func closeAll(conns []net.Conn) {
	for _, c := range conns {
		if c != nil {
			c.Close()
		}
	}
}
