// Command netq runs either side of a network quality test: a server
// that waits for clients, or a client that drives one test run against
// a server and prints the result.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/netq-project/netq/internal/util"
	"github.com/netq-project/netq/pkg"
)

func main() {
	mode := flag.String("mode", "client", "client or server")
	host := flag.String("host", "localhost", "server host (client mode)")
	port := flag.Uint("port", probe.DefaultPort, "control/data/ping port")
	metricsAddr := flag.String("metrics-addr", "", "address to serve Prometheus metrics on (server mode), e.g. :9090")
	streams := flag.Uint("streams", probe.DefaultStreams, "streams per direction")
	loadDuration := flag.Duration("load-duration", probe.DefaultLoadDuration, "duration of each load phase")
	graceDuration := flag.Duration("grace-duration", probe.DefaultGraceDuration, "quiet interval between phases")
	download := flag.Bool("download", true, "run the download phase")
	upload := flag.Bool("upload", true, "run the upload phase")
	both := flag.Bool("both", true, "run the bidirectional phase")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch *mode {
	case "server":
		err = runServer(ctx, uint16(*port), *metricsAddr, log)
	case "client":
		err = runClient(ctx, *host, uint16(*port), *streams, *loadDuration, *graceDuration, *download, *upload, *both)
	default:
		fmt.Fprintf(os.Stderr, "unknown -mode %q: must be client or server\n", *mode)
		os.Exit(2)
	}
	if err != nil {
		log.Error("exiting", "err", err)
		os.Exit(1)
	}
}

func runServer(ctx context.Context, port uint16, metricsAddr string, log *slog.Logger) error {
	log.Info("starting server", "port", port, "addr", util.FormatPort(int(port)))
	return probe.Serve(ctx, probe.ServerOptions{
		Port:        port,
		MetricsAddr: metricsAddr,
		Log:         log,
	})
}

func runClient(ctx context.Context, host string, port uint16, streams uint, loadDuration, graceDuration time.Duration, download, upload, both bool) error {
	cfg := probe.Config{
		Download:      download,
		Upload:        upload,
		Both:          both,
		Port:          port,
		LoadDuration:  loadDuration,
		GraceDuration: graceDuration,
		Streams:       uint64(streams),
	}.WithDefaults()

	result, err := probe.RunWithProgress(ctx, host, cfg, func(p probe.Progress) {
		slog.Default().Info("progress", "phase", p.Phase, "status", p.Status)
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
