package protocol

import (
	"bytes"
	"testing"
)

func TestHelloRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	c := NewConn(&buf)
	if err := c.WriteHello(); err != nil {
		t.Fatalf("write hello: %v", err)
	}
	c2 := NewConn(&buf)
	if err := c2.ReadHello(); err != nil {
		t.Fatalf("read hello: %v", err)
	}
}

func TestHelloMismatchIsFatal(t *testing.T) {
	var buf bytes.Buffer
	c := NewConn(&buf)
	if err := c.writeFrame([]byte("BOGUS")); err != nil {
		t.Fatalf("write: %v", err)
	}
	c2 := NewConn(&buf)
	if err := c2.ReadHello(); err == nil {
		t.Fatalf("expected mismatch error")
	}
}

func TestClientMessageRoundTrip(t *testing.T) {
	cases := []ClientMessage{
		{Kind: CMHello},
		{Kind: CMNewClient},
		{Kind: CMAssociate, ClientId: ClientId(0xdeadbeefcafef00d)},
		{Kind: CMGetMeasurements},
		{Kind: CMLoadFromServer},
		{Kind: CMLoadFromClient, Stream: TestStream{Group: 1, Id: 3}, BandwidthIntervalMicros: 250_000},
		{Kind: CMDone},
	}
	for _, want := range cases {
		var buf bytes.Buffer
		c := NewConn(&buf)
		if err := c.WriteClientMessage(want); err != nil {
			t.Fatalf("write %v: %v", want, err)
		}
		got, err := c.ReadClientMessage()
		if err != nil {
			t.Fatalf("read %v: %v", want, err)
		}
		if got != want {
			t.Fatalf("round trip mismatch: got %+v want %+v", got, want)
		}
	}
}

func TestServerMessageRoundTrip(t *testing.T) {
	cases := []ServerMessage{
		{Kind: SMHello},
		{Kind: SMNewClient, Granted: true, ClientId: ClientId(42)},
		{Kind: SMNewClient, Granted: false},
		{Kind: SMMeasure, Stream: TestStream{Group: 0, Id: 1}, TimeMicros: 123456, Bytes: 99999},
		{Kind: SMMeasureStreamDone, Stream: TestStream{Group: 1, Id: 0}},
		{Kind: SMMeasurementsDone},
	}
	for _, want := range cases {
		var buf bytes.Buffer
		c := NewConn(&buf)
		if err := c.WriteServerMessage(want); err != nil {
			t.Fatalf("write %v: %v", want, err)
		}
		got, err := c.ReadServerMessage()
		if err != nil {
			t.Fatalf("read %v: %v", want, err)
		}
		if got != want {
			t.Fatalf("round trip mismatch: got %+v want %+v", got, want)
		}
	}
}

func TestUnknownClientMessageKindIsProtocolViolation(t *testing.T) {
	var buf bytes.Buffer
	c := NewConn(&buf)
	if err := c.writeFrame([]byte{0xff}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := c.ReadClientMessage(); err == nil {
		t.Fatalf("expected protocol violation")
	}
}

func TestPingEncodeDecodeRoundTrip(t *testing.T) {
	p := Ping{Id: ClientId(7), Time: 123456789, Index: 42}
	buf := EncodePing(p)
	if len(buf) > MaxUDPPacketSize {
		t.Fatalf("ping packet %d bytes exceeds max %d", len(buf), MaxUDPPacketSize)
	}
	got, err := DecodePing(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != p {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, p)
	}
}

func TestDecodePingRejectsOversizePacket(t *testing.T) {
	buf := make([]byte, MaxUDPPacketSize+1)
	if _, err := DecodePing(buf); err == nil {
		t.Fatalf("expected oversize rejection")
	}
}

func TestDecodePingRejectsShortPacket(t *testing.T) {
	if _, err := DecodePing([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected short-packet rejection")
	}
}
