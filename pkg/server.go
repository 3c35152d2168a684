package probe

import (
	"context"
	"log/slog"

	"github.com/netq-project/netq/internal/server"
	"github.com/netq-project/netq/internal/util"
)

// ServerOptions configures Serve.
type ServerOptions struct {
	// Port is the TCP and UDP port to bind for control, data, and ping
	// traffic.
	Port uint16
	// MetricsAddr, if non-empty, serves Prometheus metrics on a
	// separate "host:port" listener, e.g. ":9090".
	MetricsAddr string
	Log         *slog.Logger
}

// Serve runs the server side of the test until ctx is cancelled.
func Serve(ctx context.Context, opts ServerOptions) error {
	port := opts.Port
	if port == 0 {
		port = DefaultPort
	}
	return server.Serve(ctx, server.Options{
		Addr:        util.NetJoin("", int(port)),
		MetricsAddr: opts.MetricsAddr,
		Log:         opts.Log,
	})
}
