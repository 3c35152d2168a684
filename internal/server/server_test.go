package server

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/netq-project/netq/internal/payload"
	"github.com/netq-project/netq/internal/protocol"
)

// startTestServer runs Serve on addr in the background and returns a
// cancel func that stops it. It gives Serve a brief moment to bind
// before returning so callers can dial immediately.
func startTestServer(t *testing.T, addr string) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- Serve(ctx, Options{Addr: addr})
	}()
	time.Sleep(50 * time.Millisecond)
	select {
	case err := <-errCh:
		t.Fatalf("server exited early: %v", err)
	default:
	}
	return cancel
}

func dialControl(t *testing.T, addr string) (*protocol.Conn, net.Conn) {
	t.Helper()
	raw, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial control: %v", err)
	}
	c := protocol.NewConn(raw)
	if err := c.WriteHello(); err != nil {
		t.Fatalf("write hello: %v", err)
	}
	if err := c.ReadHello(); err != nil {
		t.Fatalf("read hello: %v", err)
	}
	return c, raw
}

func registerClient(t *testing.T, c *protocol.Conn) protocol.ClientId {
	t.Helper()
	if err := c.WriteClientMessage(protocol.ClientMessage{Kind: protocol.CMNewClient}); err != nil {
		t.Fatalf("write new client: %v", err)
	}
	m, err := c.ReadServerMessage()
	if err != nil {
		t.Fatalf("read new client reply: %v", err)
	}
	if m.Kind != protocol.SMNewClient || !m.Granted {
		t.Fatalf("registration not granted: %+v", m)
	}
	return m.ClientId
}

func dialAssociate(t *testing.T, addr string, id protocol.ClientId) net.Conn {
	t.Helper()
	raw, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial data conn: %v", err)
	}
	c := protocol.NewConn(raw)
	if err := c.WriteHello(); err != nil {
		t.Fatalf("write hello: %v", err)
	}
	if err := c.ReadHello(); err != nil {
		t.Fatalf("read hello: %v", err)
	}
	if err := c.WriteClientMessage(protocol.ClientMessage{Kind: protocol.CMAssociate, ClientId: id}); err != nil {
		t.Fatalf("write associate: %v", err)
	}
	return raw
}

func TestServeDownloadGroupPushesPayload(t *testing.T) {
	addr := "127.0.0.1:18901"
	stop := startTestServer(t, addr)
	defer stop()

	ctrl, ctrlRaw := dialControl(t, addr)
	defer ctrlRaw.Close()
	id := registerClient(t, ctrl)

	data := dialAssociate(t, addr, id)
	defer data.Close()

	if err := ctrl.WriteClientMessage(protocol.ClientMessage{Kind: protocol.CMLoadFromServer}); err != nil {
		t.Fatalf("write load from server: %v", err)
	}

	buf := make([]byte, payload.Size)
	_ = data.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, err := io.ReadFull(data, buf); err != nil {
		t.Fatalf("reading pushed payload: %v", err)
	}
}

func TestServeUploadStreamReportsMeasure(t *testing.T) {
	addr := "127.0.0.1:18902"
	stop := startTestServer(t, addr)
	defer stop()

	ctrl, ctrlRaw := dialControl(t, addr)
	defer ctrlRaw.Close()
	id := registerClient(t, ctrl)

	data := dialAssociate(t, addr, id)
	defer data.Close()

	stream := protocol.TestStream{Group: 0, Id: 0}
	if err := ctrl.WriteClientMessage(protocol.ClientMessage{
		Kind:                    protocol.CMLoadFromClient,
		Stream:                  stream,
		BandwidthIntervalMicros: uint64(20 * time.Millisecond / time.Microsecond),
	}); err != nil {
		t.Fatalf("write load from client: %v", err)
	}

	go func() {
		for i := 0; i < 8; i++ {
			if _, err := data.Write(payload.Buffer[:64*1024]); err != nil {
				return
			}
		}
	}()

	_ = ctrlRaw.SetReadDeadline(time.Now().Add(3 * time.Second))
	m, err := ctrl.ReadServerMessage()
	if err != nil {
		t.Fatalf("read measure: %v", err)
	}
	if m.Kind != protocol.SMMeasure {
		t.Fatalf("Kind = %v, want SMMeasure", m.Kind)
	}
	if m.Stream != stream {
		t.Fatalf("Stream = %+v, want %+v", m.Stream, stream)
	}
}

func TestServeRejectsAssociateForUnknownClient(t *testing.T) {
	addr := "127.0.0.1:18903"
	stop := startTestServer(t, addr)
	defer stop()

	raw, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	c := protocol.NewConn(raw)
	if err := c.WriteHello(); err != nil {
		t.Fatalf("write hello: %v", err)
	}
	if err := c.ReadHello(); err != nil {
		t.Fatalf("read hello: %v", err)
	}
	if err := c.WriteClientMessage(protocol.ClientMessage{Kind: protocol.CMAssociate, ClientId: protocol.ClientId(999)}); err != nil {
		t.Fatalf("write associate: %v", err)
	}

	buf := make([]byte, 1)
	_ = raw.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := raw.Read(buf); err == nil {
		t.Fatal("expected connection to be closed for unknown client")
	}
}
