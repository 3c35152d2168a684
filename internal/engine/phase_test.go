package engine

import (
	"context"
	"testing"
	"time"

	"github.com/netq-project/netq/internal/protocol"
)

func TestPhaseBroadcasterWaitAtLeast(t *testing.T) {
	b := newPhaseBroadcaster()
	if got := b.get(); got != protocol.Setup {
		t.Fatalf("initial phase = %v, want Setup", got)
	}

	done := make(chan error, 1)
	go func() {
		done <- b.waitAtLeast(context.Background(), protocol.LoadFromClient)
	}()

	select {
	case <-done:
		t.Fatal("waitAtLeast returned before the target phase was set")
	case <-time.After(20 * time.Millisecond):
	}

	b.set(protocol.Grace1)
	b.set(protocol.LoadFromClient)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("waitAtLeast: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waitAtLeast never returned")
	}
}

func TestPhaseBroadcasterWaitAtLeastAlreadyPast(t *testing.T) {
	b := newPhaseBroadcaster()
	b.set(protocol.End)
	if err := b.waitAtLeast(context.Background(), protocol.Grace1); err != nil {
		t.Fatalf("waitAtLeast: %v", err)
	}
}

func TestPhaseBroadcasterWaitAtLeastCancelled(t *testing.T) {
	b := newPhaseBroadcaster()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.waitAtLeast(ctx, protocol.End); err == nil {
		t.Fatal("expected context cancellation error")
	}
}
