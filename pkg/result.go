package probe

import "time"

// RawHeader carries the output format version, so a persister can
// reject or migrate older files.
type RawHeader struct {
	Version uint32
}

// CurrentVersion is the RawResult version this package produces.
const CurrentVersion = 2

// RawPoint is one sample of a per-stream bandwidth time series: time
// since the load phase's setup-start, and cumulative bytes observed by
// that point. Per-stream series are strictly non-decreasing in both
// coordinates.
type RawPoint struct {
	Time  time.Duration
	Bytes uint64
}

// RawStream is one bulk stream's complete bandwidth time series.
type RawStream struct {
	Data []RawPoint
}

// RawStreamGroup is a set of streams activated together in one
// phase-direction pair.
type RawStreamGroup struct {
	// Download is true for server->client groups, false for
	// client->server groups.
	Download bool
	// Both marks a group that ran during the bidirectional phase
	// rather than a pure upload/download phase.
	Both bool
	// Streams holds one RawStream per stream in the group.
	Streams []RawStream
}

// RawLatency decomposes a round trip into its upstream and downstream
// halves. Down is derivable as Total - Up and is not stored separately.
type RawLatency struct {
	Total time.Duration
	Up    time.Duration
}

// Down returns the downstream half of the round trip.
func (l RawLatency) Down() time.Duration {
	return l.Total - l.Up
}

// RawPing is one sent ping joined with its (possibly absent) arrival.
// A nil Latency denotes a sent-but-unreturned ping: loss.
type RawPing struct {
	Index   uint32
	Sent    time.Duration
	Latency *RawLatency
}

// RawResult is the complete, coherent output of one test run: the
// aggregate that C8 (result assembly) produces and every downstream
// consumer (plotter, file persister, remote-controller bridge) reads.
type RawResult struct {
	Version uint32
	Config  RawConfig
	// IPv6 is true when the server address family was IPv6.
	IPv6 bool
	// ServerLatency is the idle round-trip latency measured before any
	// load was applied (the clock-offset calibration's median sample).
	ServerLatency time.Duration
	// Start is when the phase sequence begins (just before the first
	// grace period), relative to setup-start.
	Start time.Duration
	// Duration runs from Start to the end of the test: it includes the
	// grace periods and the drain after End and EndPingRecv.
	Duration time.Duration
	// StreamGroups are assembled in a fixed order: download,
	// both-download, upload, both-upload, omitting disabled phases.
	StreamGroups []RawStreamGroup
	// Pings is indexed by send order; see RawPing.
	Pings []RawPing
}
