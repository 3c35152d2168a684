// Package protocol implements the wire codec shared by the client
// orchestrator and the server mirror: length-prefixed TCP framing for the
// control channel, and a fixed-layout UDP ping packet.
package protocol

import "fmt"

// ClientId is the opaque token the server mints on NewClient. It must
// accompany every associated TCP connection and every UDP ping for the
// lifetime of a test.
type ClientId uint64

// TestStream identifies one bulk TCP stream: group encodes the phase
// family (0 = pure upload/download, 1 = the bidirectional component) and
// id is the stream's ordinal within that group.
type TestStream struct {
	Group uint32
	Id    uint32
}

func (s TestStream) String() string {
	return fmt.Sprintf("stream(group=%d,id=%d)", s.Group, s.Id)
}

// Phase is the test state. Transitions are driven solely by the client's
// phase sequencer. The constants' numeric order is not the order in
// which the client runs the load phases: LoadFromServer runs first.
type Phase uint8

const (
	Setup Phase = iota
	Grace1
	LoadFromClient
	Grace2
	LoadFromServer
	Grace3
	LoadFromBoth
	Grace4
	End
	EndPingRecv
)

func (p Phase) String() string {
	switch p {
	case Setup:
		return "Setup"
	case Grace1:
		return "Grace1"
	case LoadFromClient:
		return "LoadFromClient"
	case Grace2:
		return "Grace2"
	case LoadFromServer:
		return "LoadFromServer"
	case Grace3:
		return "Grace3"
	case LoadFromBoth:
		return "LoadFromBoth"
	case Grace4:
		return "Grace4"
	case End:
		return "End"
	case EndPingRecv:
		return "EndPingRecv"
	default:
		return fmt.Sprintf("Phase(%d)", uint8(p))
	}
}
