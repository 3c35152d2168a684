package protocol

import (
	"encoding/binary"
	"errors"
)

// PingWireSize is the fixed encoded length of a Ping packet. It is well
// under the MaxUDPPacketSize ceiling DecodePing enforces.
const PingWireSize = 8 + 8 + 4

// MaxUDPPacketSize is the largest UDP datagram the echo server and the
// client receiver will accept; anything larger is a protocol violation.
const MaxUDPPacketSize = 64

// Ping is the wire record exchanged over UDP. Time is populated by the
// server on echo with its own setup-start-relative microsecond clock;
// the client never trusts a client-set Time field on receipt.
type Ping struct {
	Id    ClientId
	Time  uint64
	Index uint32
}

var ErrOversizePacket = errors.New("protocol: udp packet exceeds maximum size")

// EncodePing serializes a Ping into a fixed-size buffer.
func EncodePing(p Ping) []byte {
	buf := make([]byte, PingWireSize)
	binary.BigEndian.PutUint64(buf[0:8], uint64(p.Id))
	binary.BigEndian.PutUint64(buf[8:16], p.Time)
	binary.BigEndian.PutUint32(buf[16:20], p.Index)
	return buf
}

// DecodePing parses a Ping from a received datagram. Packets over
// MaxUDPPacketSize are rejected with ErrOversizePacket, and packets
// shorter than PingWireSize are rejected too.
func DecodePing(buf []byte) (Ping, error) {
	if len(buf) > MaxUDPPacketSize {
		return Ping{}, ErrOversizePacket
	}
	if len(buf) < PingWireSize {
		return Ping{}, errors.New("protocol: short ping packet")
	}
	return Ping{
		Id:    ClientId(binary.BigEndian.Uint64(buf[0:8])),
		Time:  binary.BigEndian.Uint64(buf[8:16]),
		Index: binary.BigEndian.Uint32(buf[16:20]),
	}, nil
}
