package probe

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/go-test/deep"
)

// TestRawResultJSONRoundTrip exercises invariant 5: a RawResult
// serialized to JSON and decoded back is deeply equal to the
// original, which is what lets a persisted result be replayed or
// diffed without loss.
func TestRawResultJSONRoundTrip(t *testing.T) {
	up := RawLatency{Total: 20 * time.Millisecond, Up: 8 * time.Millisecond}
	want := RawResult{
		Version: CurrentVersion,
		Config: RawConfig{
			Stagger:           100 * time.Millisecond,
			LoadDuration:      5 * time.Second,
			GraceDuration:     time.Second,
			PingInterval:      50 * time.Millisecond,
			BandwidthInterval: 50 * time.Millisecond,
		},
		IPv6:          false,
		ServerLatency: 12 * time.Millisecond,
		Start:         2 * time.Second,
		Duration:      5 * time.Second,
		StreamGroups: []RawStreamGroup{
			{
				Download: true,
				Both:     false,
				Streams: []RawStream{
					{Data: []RawPoint{
						{Time: 50 * time.Millisecond, Bytes: 65536},
						{Time: 100 * time.Millisecond, Bytes: 131072},
					}},
				},
			},
		},
		Pings: []RawPing{
			{Index: 0, Sent: 0, Latency: &up},
			{Index: 1, Sent: 50 * time.Millisecond, Latency: nil},
		},
	}

	encoded, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got RawResult
	if err := json.Unmarshal(encoded, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if diff := deep.Equal(want, got); diff != nil {
		t.Fatalf("round trip mismatch: %v", diff)
	}
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{}.WithDefaults()
	if cfg.Port != DefaultPort {
		t.Fatalf("Port = %d, want %d", cfg.Port, DefaultPort)
	}
	if cfg.Streams != DefaultStreams {
		t.Fatalf("Streams = %d, want %d", cfg.Streams, DefaultStreams)
	}
	if cfg.LoadDuration != DefaultLoadDuration {
		t.Fatalf("LoadDuration = %v, want %v", cfg.LoadDuration, DefaultLoadDuration)
	}
}

func TestConfigWithDefaultsPreservesSetFields(t *testing.T) {
	cfg := Config{Port: 9999, Streams: 2}.WithDefaults()
	if cfg.Port != 9999 {
		t.Fatalf("Port = %d, want 9999 (explicit value clobbered)", cfg.Port)
	}
	if cfg.Streams != 2 {
		t.Fatalf("Streams = %d, want 2 (explicit value clobbered)", cfg.Streams)
	}
	if cfg.GraceDuration != DefaultGraceDuration {
		t.Fatalf("GraceDuration = %v, want default", cfg.GraceDuration)
	}
}
