package protocol

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// HelloMagic and HelloVersion together make up the Hello handshake. Both
// directions must send byte-identical Hellos; any mismatch is fatal.
const (
	HelloMagic   = "NETQ"
	HelloVersion = 1
)

// MaxFrameBytes bounds a single length-prefixed control frame. It exists
// to fail fast on a corrupt peer rather than allocate unbounded memory.
const MaxFrameBytes = 1 << 20

// ErrProtocolViolation is returned when a peer sends a message kind this
// side does not understand, or a message is malformed.
var ErrProtocolViolation = errors.New("protocol: violation")

// ClientMsgKind discriminates ClientMessage variants.
type ClientMsgKind uint8

const (
	CMHello ClientMsgKind = iota
	CMNewClient
	CMAssociate
	CMGetMeasurements
	CMLoadFromServer
	CMLoadFromClient
	CMDone
)

// ClientMessage is the tagged union of client->server control messages.
// Only the fields relevant to Kind are meaningful.
type ClientMessage struct {
	Kind                    ClientMsgKind
	ClientId                ClientId
	Stream                  TestStream
	BandwidthIntervalMicros uint64
}

// ServerMsgKind discriminates ServerMessage variants.
type ServerMsgKind uint8

const (
	SMHello ServerMsgKind = iota
	SMNewClient
	SMMeasure
	SMMeasureStreamDone
	SMMeasurementsDone
)

// ServerMessage is the tagged union of server->client control messages.
type ServerMessage struct {
	Kind       ServerMsgKind
	ClientId   ClientId
	Granted    bool // valid for SMNewClient: false means ServerRejected
	Stream     TestStream
	TimeMicros uint64
	Bytes      uint64
}

// Conn wraps a byte stream with length-prefixed framing and the typed
// message encode/decode the control channel needs. Reads go through a
// buffered reader that only one goroutine may use at a time; writes go
// straight to the underlying writer with one Write call per frame, so
// one goroutine can read while others write frames on a net.Conn.
type Conn struct {
	r *bufio.Reader
	w io.Writer
}

// NewConn wraps rw for framed control-message exchange.
func NewConn(rw io.ReadWriter) *Conn {
	return &Conn{r: bufio.NewReader(rw), w: rw}
}

// NewConnHalves wraps a separate reader and writer, in the manner of
// tokio's FramedRead/FramedWrite split.
func NewConnHalves(r io.Reader, w io.Writer) *Conn {
	return &Conn{r: bufio.NewReader(r), w: w}
}

// Reader exposes the connection's buffered reader for callers that
// need to keep reading raw, unframed bytes after the handshake -- any
// bytes the handshake already pulled off the socket into the buffer
// are replayed from here first, so nothing is lost switching modes.
func (c *Conn) Reader() io.Reader {
	return c.r
}

func (c *Conn) writeFrame(payload []byte) error {
	// Length prefix and payload go out in one Write, so frames written
	// concurrently on a net.Conn never interleave.
	frame := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(payload)))
	copy(frame[4:], payload)
	_, err := c.w.Write(frame)
	return err
}

func (c *Conn) readFrame() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(c.r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxFrameBytes {
		return nil, fmt.Errorf("%w: frame of %d bytes exceeds limit", ErrProtocolViolation, n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteHello sends the Hello handshake frame.
func (c *Conn) WriteHello() error {
	return c.writeFrame(helloBytes())
}

// ReadHello reads and validates a peer's Hello frame against our own.
func (c *Conn) ReadHello() error {
	buf, err := c.readFrame()
	if err != nil {
		return err
	}
	if !bytes.Equal(buf, helloBytes()) {
		return fmt.Errorf("%w: mismatched hello, got %x", ErrProtocolViolation, buf)
	}
	return nil
}

func helloBytes() []byte {
	buf := make([]byte, len(HelloMagic)+1)
	copy(buf, HelloMagic)
	buf[len(HelloMagic)] = HelloVersion
	return buf
}

// WriteClientMessage encodes and sends a ClientMessage frame.
func (c *Conn) WriteClientMessage(m ClientMessage) error {
	var buf bytes.Buffer
	buf.WriteByte(byte(m.Kind))
	switch m.Kind {
	case CMAssociate:
		writeUint64(&buf, uint64(m.ClientId))
	case CMLoadFromClient:
		writeUint32(&buf, m.Stream.Group)
		writeUint32(&buf, m.Stream.Id)
		writeUint64(&buf, m.BandwidthIntervalMicros)
	case CMHello, CMNewClient, CMGetMeasurements, CMLoadFromServer, CMDone:
		// no additional fields
	default:
		return fmt.Errorf("%w: unknown client message kind %d", ErrProtocolViolation, m.Kind)
	}
	return c.writeFrame(buf.Bytes())
}

// ReadClientMessage reads and decodes one ClientMessage frame.
func (c *Conn) ReadClientMessage() (ClientMessage, error) {
	buf, err := c.readFrame()
	if err != nil {
		return ClientMessage{}, err
	}
	if len(buf) == 0 {
		return ClientMessage{}, fmt.Errorf("%w: empty client message", ErrProtocolViolation)
	}
	r := bytes.NewReader(buf[1:])
	m := ClientMessage{Kind: ClientMsgKind(buf[0])}
	switch m.Kind {
	case CMAssociate:
		id, err := readUint64(r)
		if err != nil {
			return ClientMessage{}, err
		}
		m.ClientId = ClientId(id)
	case CMLoadFromClient:
		group, err := readUint32(r)
		if err != nil {
			return ClientMessage{}, err
		}
		id, err := readUint32(r)
		if err != nil {
			return ClientMessage{}, err
		}
		interval, err := readUint64(r)
		if err != nil {
			return ClientMessage{}, err
		}
		m.Stream = TestStream{Group: group, Id: id}
		m.BandwidthIntervalMicros = interval
	case CMHello, CMNewClient, CMGetMeasurements, CMLoadFromServer, CMDone:
		// no additional fields
	default:
		return ClientMessage{}, fmt.Errorf("%w: unknown client message kind %d", ErrProtocolViolation, m.Kind)
	}
	return m, nil
}

// WriteServerMessage encodes and sends a ServerMessage frame.
func (c *Conn) WriteServerMessage(m ServerMessage) error {
	var buf bytes.Buffer
	buf.WriteByte(byte(m.Kind))
	switch m.Kind {
	case SMNewClient:
		if m.Granted {
			buf.WriteByte(1)
			writeUint64(&buf, uint64(m.ClientId))
		} else {
			buf.WriteByte(0)
		}
	case SMMeasure:
		writeUint32(&buf, m.Stream.Group)
		writeUint32(&buf, m.Stream.Id)
		writeUint64(&buf, m.TimeMicros)
		writeUint64(&buf, m.Bytes)
	case SMMeasureStreamDone:
		writeUint32(&buf, m.Stream.Group)
		writeUint32(&buf, m.Stream.Id)
	case SMHello, SMMeasurementsDone:
		// no additional fields
	default:
		return fmt.Errorf("%w: unknown server message kind %d", ErrProtocolViolation, m.Kind)
	}
	return c.writeFrame(buf.Bytes())
}

// ReadServerMessage reads and decodes one ServerMessage frame.
func (c *Conn) ReadServerMessage() (ServerMessage, error) {
	buf, err := c.readFrame()
	if err != nil {
		return ServerMessage{}, err
	}
	if len(buf) == 0 {
		return ServerMessage{}, fmt.Errorf("%w: empty server message", ErrProtocolViolation)
	}
	r := bytes.NewReader(buf[1:])
	m := ServerMessage{Kind: ServerMsgKind(buf[0])}
	switch m.Kind {
	case SMNewClient:
		granted, err := r.ReadByte()
		if err != nil {
			return ServerMessage{}, err
		}
		if granted == 1 {
			id, err := readUint64(r)
			if err != nil {
				return ServerMessage{}, err
			}
			m.ClientId = ClientId(id)
			m.Granted = true
		}
	case SMMeasure:
		group, err := readUint32(r)
		if err != nil {
			return ServerMessage{}, err
		}
		id, err := readUint32(r)
		if err != nil {
			return ServerMessage{}, err
		}
		t, err := readUint64(r)
		if err != nil {
			return ServerMessage{}, err
		}
		b, err := readUint64(r)
		if err != nil {
			return ServerMessage{}, err
		}
		m.Stream = TestStream{Group: group, Id: id}
		m.TimeMicros = t
		m.Bytes = b
	case SMMeasureStreamDone:
		group, err := readUint32(r)
		if err != nil {
			return ServerMessage{}, err
		}
		id, err := readUint32(r)
		if err != nil {
			return ServerMessage{}, err
		}
		m.Stream = TestStream{Group: group, Id: id}
	case SMHello, SMMeasurementsDone:
		// no additional fields
	default:
		return ServerMessage{}, fmt.Errorf("%w: unknown server message kind %d", ErrProtocolViolation, m.Kind)
	}
	return m, nil
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}
