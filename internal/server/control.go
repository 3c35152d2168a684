package server

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/netq-project/netq/internal/protocol"
)

const (
	associateClaimTimeout = 2 * time.Second
	claimSettle           = 30 * time.Millisecond
)

// handleConn is the first thing run on every accepted TCP connection.
// Hello establishes the wire version; the first ClientMessage decides
// whether this connection becomes a long-lived control channel or a
// bulk data connection associated with an already-registered client.
func handleConn(raw net.Conn, reg *registry, start time.Time, log *slog.Logger) {
	c := protocol.NewConn(raw)
	if err := c.ReadHello(); err != nil {
		log.Warn("hello failed", "err", err, "remote", raw.RemoteAddr())
		raw.Close()
		return
	}
	if err := c.WriteHello(); err != nil {
		raw.Close()
		return
	}

	msg, err := c.ReadClientMessage()
	if err != nil {
		log.Warn("first message failed", "err", err, "remote", raw.RemoteAddr())
		raw.Close()
		return
	}

	switch msg.Kind {
	case protocol.CMNewClient:
		serveControl(c, raw, reg, start, log)
	case protocol.CMAssociate:
		cs, ok := reg.get(msg.ClientId)
		if !ok {
			log.Warn("associate for unknown client", "client_id", uint64(msg.ClientId))
			raw.Close()
			return
		}
		cs.addPending(&dataConn{Conn: raw, r: c.Reader()})
	default:
		log.Warn("unexpected first message kind", "kind", msg.Kind)
		raw.Close()
	}
}

// serveControl owns one client's control connection for its whole
// lifetime: it replies to NewClient, then dispatches every subsequent
// control message until the client disconnects.
func serveControl(c *protocol.Conn, raw net.Conn, reg *registry, start time.Time, log *slog.Logger) {
	cs := reg.create()
	cs.setControl(c)
	defer func() {
		raw.Close()
		reg.remove(cs.id)
	}()

	if err := c.WriteServerMessage(protocol.ServerMessage{
		Kind: protocol.SMNewClient, Granted: true, ClientId: cs.id,
	}); err != nil {
		return
	}
	log.Info("client registered", "client_id", uint64(cs.id), "remote", raw.RemoteAddr())

	for {
		msg, err := c.ReadClientMessage()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug("control connection closed", "client_id", uint64(cs.id), "err", err)
			}
			return
		}

		switch msg.Kind {
		case protocol.CMGetMeasurements:
			// Acknowledged implicitly: measurement reporting runs for
			// every stream from the moment it is claimed.
		case protocol.CMLoadFromServer:
			go serveDownloadGroup(cs, log)
		case protocol.CMLoadFromClient:
			go serveUploadStream(cs, msg.Stream, msg.BandwidthIntervalMicros, start)
		case protocol.CMDone:
			_ = cs.sendMeasure(protocol.ServerMessage{Kind: protocol.SMMeasurementsDone})
		default:
			log.Warn("unexpected control message", "client_id", uint64(cs.id), "kind", msg.Kind)
		}
	}
}

func serveDownloadGroup(cs *clientState, log *slog.Logger) {
	conns := cs.claimAllWait(associateClaimTimeout, claimSettle)
	if len(conns) == 0 {
		log.Warn("load-from-server with no associated connections", "client_id", uint64(cs.id))
		return
	}
	for _, conn := range conns {
		go pushDownload(conn)
	}
}

func serveUploadStream(cs *clientState, stream protocol.TestStream, intervalMicros uint64, start time.Time) {
	conn, ok := cs.claimOneWait(associateClaimTimeout)
	if !ok {
		return
	}
	readUpload(conn, cs, stream, intervalMicros, start)
}
