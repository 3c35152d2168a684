package server

import (
	"net"
	"time"

	"github.com/netq-project/netq/internal/metrics"
	"github.com/netq-project/netq/internal/payload"
	"github.com/netq-project/netq/internal/protocol"
)

// pushDownload writes the payload buffer to conn until a write fails,
// which is how the client signals it is done: it simply closes the
// connection once its own load duration elapses.
func pushDownload(conn net.Conn) {
	defer conn.Close()
	if tc, ok := underlyingTCPConn(conn); ok {
		metrics.TuneSendBuffer(tc, payload.Size*4)
	}
	for {
		n, err := conn.Write(payload.Buffer)
		bytesDownloaded.Add(float64(n))
		if err != nil {
			return
		}
	}
}

// readUpload reads conn to EOF, sampling its cumulative byte count at
// intervalMicros and reporting each sample to the client as an
// SMMeasure message, since only the receiving end (this server) can
// say how many bytes actually arrived.
func readUpload(conn net.Conn, cs *clientState, stream protocol.TestStream, intervalMicros uint64, start time.Time) {
	defer conn.Close()

	interval := time.Duration(intervalMicros) * time.Microsecond
	var counter metrics.ByteCounter
	stop := make(chan struct{})

	go metrics.RunSampler(interval, start, &counter, stop, func(s metrics.Sample) {
		_ = cs.sendMeasure(protocol.ServerMessage{
			Kind:       protocol.SMMeasure,
			Stream:     stream,
			TimeMicros: s.TimeMicros,
			Bytes:      s.Bytes,
		})
	})

	buf := make([]byte, 32*1024)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			counter.Add(uint64(n))
			bytesUploaded.Add(float64(n))
		}
		if err != nil {
			break
		}
	}
	close(stop)
	_ = cs.sendMeasure(protocol.ServerMessage{Kind: protocol.SMMeasureStreamDone, Stream: stream})
}
