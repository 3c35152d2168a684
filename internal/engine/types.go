// Package engine implements the client side of the test: the phase
// sequencer (C6), the loader pool (C3), the ping channel (C4), the
// clock-offset estimator (C5), and result assembly (C8). The server
// side's mirror (C7) lives in internal/server.
package engine

import (
	"time"

	"github.com/netq-project/netq/internal/protocol"
)

// Config is the engine's view of the test's immutable options envelope.
type Config struct {
	Download          bool
	Upload            bool
	Both              bool
	Port              uint16
	LoadDuration      time.Duration
	GraceDuration     time.Duration
	Streams           uint64
	StreamStagger     time.Duration
	PingInterval      time.Duration
	BandwidthInterval time.Duration
}

// loadPhaseCount returns how many of the three load phases are enabled.
func (c Config) loadPhaseCount() int {
	n := 0
	if c.Download {
		n++
	}
	if c.Upload {
		n++
	}
	if c.Both {
		n++
	}
	return n
}

// RawPoint mirrors pkg.RawPoint without importing pkg (engine must not
// import the public package that imports engine).
type RawPoint struct {
	Time  time.Duration
	Bytes uint64
}

// RawStream is one stream's complete bandwidth time series.
type RawStream struct {
	Data []RawPoint
}

// RawStreamGroup mirrors pkg.RawStreamGroup.
type RawStreamGroup struct {
	Download bool
	Both     bool
	Streams  []RawStream
}

// RawLatency mirrors pkg.RawLatency.
type RawLatency struct {
	Total time.Duration
	Up    time.Duration
}

// Down returns the downstream half of the round trip.
func (l RawLatency) Down() time.Duration {
	return l.Total - l.Up
}

// RawPing mirrors pkg.RawPing.
type RawPing struct {
	Index   uint32
	Sent    time.Duration
	Latency *RawLatency
}

// RawConfig mirrors pkg.RawConfig.
type RawConfig struct {
	Stagger           time.Duration
	LoadDuration      time.Duration
	GraceDuration     time.Duration
	PingInterval      time.Duration
	BandwidthInterval time.Duration
}

// Result is the engine's complete test output, assembled by C8 and
// converted 1:1 into pkg.RawResult by the caller.
type Result struct {
	Config        RawConfig
	IPv6          bool
	ServerLatency time.Duration
	Start         time.Duration
	Duration      time.Duration
	StreamGroups  []RawStreamGroup
	Pings         []RawPing
}

// Progress reports a phase transition. The orchestrator emits one
// Progress per phase change, with an empty Status.
type Progress struct {
	Phase  protocol.Phase
	Status string
}

// ProgressFunc is invoked once at each phase transition.
type ProgressFunc func(Progress)
