package engine

import (
	"testing"
	"time"
)

func TestEstimateClockOffsetMedianSample(t *testing.T) {
	// Three samples with round trips of 30ms, 10ms, 20ms; the median by
	// total is the 20ms sample (index 2).
	samples := []calibrationSample{
		{index: 0, sent: 0, recv: 30 * time.Millisecond, serverTime: 15 * time.Millisecond},
		{index: 1, sent: 100 * time.Millisecond, recv: 110 * time.Millisecond, serverTime: 205 * time.Millisecond},
		{index: 2, sent: 200 * time.Millisecond, recv: 220 * time.Millisecond, serverTime: 211 * time.Millisecond},
	}

	offset, err := estimateClockOffset(samples)
	if err != nil {
		t.Fatalf("estimateClockOffset: %v", err)
	}
	if offset.serverLatency != 20*time.Millisecond {
		t.Fatalf("serverLatency = %v, want 20ms", offset.serverLatency)
	}
	// serverPongClientClock = 200ms + 10ms = 210ms; offset = 210ms - 211ms = -1ms.
	if offset.offset != -1*time.Millisecond {
		t.Fatalf("offset = %v, want -1ms", offset.offset)
	}
}

func TestEstimateClockOffsetNoSamples(t *testing.T) {
	if _, err := estimateClockOffset(nil); err != ErrLatencyUnmeasurable {
		t.Fatalf("err = %v, want ErrLatencyUnmeasurable", err)
	}
}

func TestClockOffsetSplit(t *testing.T) {
	offset := clockOffset{offset: 5 * time.Millisecond}
	// sent=0, serverTime=100ms (->105ms client clock), recv=200ms.
	lat := offset.split(0, 200*time.Millisecond, 100*time.Millisecond)
	if lat.Total != 200*time.Millisecond {
		t.Fatalf("Total = %v, want 200ms", lat.Total)
	}
	if lat.Up != 105*time.Millisecond {
		t.Fatalf("Up = %v, want 105ms", lat.Up)
	}
	if lat.Down() != 95*time.Millisecond {
		t.Fatalf("Down = %v, want 95ms", lat.Down())
	}
}

func TestClockOffsetSplitClampsNegative(t *testing.T) {
	// recv before sent (clock jitter): total clamps to 0.
	lat := clockOffset{}.split(100*time.Millisecond, 50*time.Millisecond, 0)
	if lat.Total != 0 {
		t.Fatalf("Total = %v, want 0", lat.Total)
	}
	if lat.Up != 0 {
		t.Fatalf("Up = %v, want 0", lat.Up)
	}
}

func TestSatSub(t *testing.T) {
	if got := satSub(5, 10); got != 0 {
		t.Fatalf("satSub(5,10) = %v, want 0", got)
	}
	if got := satSub(10, 5); got != 5 {
		t.Fatalf("satSub(10,5) = %v, want 5", got)
	}
}
