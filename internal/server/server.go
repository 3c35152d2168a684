// Package server implements the server-side mirror of the test: it
// accepts registrations, associates bulk data connections with their
// client, pushes or reads the fixed payload on each, and echoes UDP
// ping probes with its own clock stamped in.
package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options configures a server run.
type Options struct {
	// Addr is the "host:port" the TCP control/data listener and the UDP
	// ping listener both bind.
	Addr string
	// MetricsAddr, if non-empty, serves Prometheus metrics at /metrics
	// on a separate listener.
	MetricsAddr string
	Log         *slog.Logger
}

// Serve runs the server until ctx is cancelled or a listener fails.
func Serve(ctx context.Context, opts Options) error {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	tcpLn, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return err
	}
	defer tcpLn.Close()

	udpAddr, err := net.ResolveUDPAddr("udp", opts.Addr)
	if err != nil {
		return err
	}
	udpConn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return err
	}
	defer udpConn.Close()

	start := time.Now()
	reg := newRegistry()

	pingDone := make(chan struct{})
	go servePing(udpConn, start, pingDone)
	defer close(pingDone)

	if opts.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv := &http.Server{Addr: opts.MetricsAddr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn("metrics server stopped", "err", err)
			}
		}()
		go func() {
			<-ctx.Done()
			_ = metricsSrv.Close()
		}()
	}

	go func() {
		<-ctx.Done()
		tcpLn.Close()
	}()

	log.Info("server listening", "addr", opts.Addr)
	for {
		conn, err := tcpLn.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		go handleConn(conn, reg, start, log)
	}
}
