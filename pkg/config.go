package probe

import "time"

const (
	// DefaultPort is the default TCP/UDP control port.
	DefaultPort = 35481
	// DefaultStreams is the default per-direction stream parallelism.
	DefaultStreams = 4
	// DefaultLoadDuration is the default wall time for each load phase.
	DefaultLoadDuration = 5 * time.Second
	// DefaultGraceDuration is the default quiet interval between phases.
	DefaultGraceDuration = time.Second
	// DefaultStreamStagger is the default per-stream start offset.
	DefaultStreamStagger = 100 * time.Millisecond
	// DefaultPingInterval is the default UDP ping pacing interval.
	DefaultPingInterval = 50 * time.Millisecond
	// DefaultBandwidthInterval is the default server-side counter
	// sampling period.
	DefaultBandwidthInterval = 50 * time.Millisecond
)

// Config is the single immutable options envelope a test is started
// with. It is never mutated once a test begins.
type Config struct {
	// Download enables the server->client load phase.
	Download bool
	// Upload enables the client->server load phase.
	Upload bool
	// Both enables the bidirectional load phase.
	Both bool
	// Port is the server's TCP and UDP control/data port.
	Port uint16
	// LoadDuration is the wall-clock duration of each load phase.
	LoadDuration time.Duration
	// GraceDuration is the quiet interval between phases.
	GraceDuration time.Duration
	// Streams is the per-direction stream parallelism.
	Streams uint64
	// StreamStagger is the per-stream start delay within a group.
	StreamStagger time.Duration
	// PingInterval is the UDP ping pacing interval.
	PingInterval time.Duration
	// BandwidthInterval is the server-side counter sampling period.
	BandwidthInterval time.Duration
}

// WithDefaults returns a copy of cfg with zero-valued fields replaced by
// their defaults. Port 0, Streams 0, and all durations of 0 are
// considered unset.
func (cfg Config) WithDefaults() Config {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Streams == 0 {
		cfg.Streams = DefaultStreams
	}
	if cfg.LoadDuration == 0 {
		cfg.LoadDuration = DefaultLoadDuration
	}
	if cfg.GraceDuration == 0 {
		cfg.GraceDuration = DefaultGraceDuration
	}
	if cfg.StreamStagger == 0 {
		cfg.StreamStagger = DefaultStreamStagger
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	if cfg.BandwidthInterval == 0 {
		cfg.BandwidthInterval = DefaultBandwidthInterval
	}
	return cfg
}

// RawConfig is the subset of Config recorded in a RawResult -- the
// phase-enable flags are implied by which stream groups are present, so
// only the timing parameters are retained.
type RawConfig struct {
	Stagger           time.Duration
	LoadDuration      time.Duration
	GraceDuration     time.Duration
	PingInterval      time.Duration
	BandwidthInterval time.Duration
}
