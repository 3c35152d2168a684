package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/netq-project/netq/internal/engine"
)

// Progress reports a phase transition; Phase is one of the engine's
// phase names ("LoadFromServer", "Grace2", ...) and Status is empty.
type Progress struct {
	Phase  string
	Status string
}

// ProgressFunc is invoked once at each phase transition of a test.
type ProgressFunc func(Progress)

// Run drives a complete test against host and returns its result.
func Run(ctx context.Context, host string, cfg Config) (RawResult, error) {
	return RunWithProgress(ctx, host, cfg, nil)
}

// RunWithProgress is Run with a callback invoked at each phase transition.
func RunWithProgress(ctx context.Context, host string, cfg Config, progress ProgressFunc) (RawResult, error) {
	cfg = cfg.WithDefaults()
	ecfg := engine.Config{
		Download:          cfg.Download,
		Upload:            cfg.Upload,
		Both:              cfg.Both,
		Port:              cfg.Port,
		LoadDuration:      cfg.LoadDuration,
		GraceDuration:     cfg.GraceDuration,
		Streams:           cfg.Streams,
		StreamStagger:     cfg.StreamStagger,
		PingInterval:      cfg.PingInterval,
		BandwidthInterval: cfg.BandwidthInterval,
	}

	var pf engine.ProgressFunc
	if progress != nil {
		pf = func(p engine.Progress) {
			progress(Progress{Phase: p.Phase.String(), Status: p.Status})
		}
	}

	res, err := engine.Run(ctx, host, ecfg, pf, slog.Default())
	if err != nil {
		return RawResult{}, convertErr(err)
	}
	return convertResult(res), nil
}

// convertErr maps internal/engine's sentinel errors onto this
// package's public ones with errors.Is, so internal/engine never
// leaks through the public API's error values.
func convertErr(err error) error {
	wrap := func(pub error) error { return fmt.Errorf("%w: %v", pub, err) }
	switch {
	case errors.Is(err, engine.ErrConnectFailed):
		return wrap(ErrConnectFailed)
	case errors.Is(err, engine.ErrHandshakeMismatch):
		return wrap(ErrHandshakeMismatch)
	case errors.Is(err, engine.ErrServerRejected):
		return wrap(ErrServerRejected)
	case errors.Is(err, engine.ErrProtocolViolation):
		return wrap(ErrProtocolViolation)
	case errors.Is(err, engine.ErrLatencyUnmeasurable):
		return wrap(ErrLatencyUnmeasurable)
	case errors.Is(err, engine.ErrLoadAborted):
		return wrap(ErrLoadAborted)
	case errors.Is(err, engine.ErrCancelled):
		return wrap(ErrCancelled)
	case errors.Is(err, engine.ErrInternalTimeout):
		return wrap(ErrInternalTimeout)
	default:
		return err
	}
}

func convertResult(r engine.Result) RawResult {
	groups := make([]RawStreamGroup, len(r.StreamGroups))
	for i, g := range r.StreamGroups {
		streams := make([]RawStream, len(g.Streams))
		for j, s := range g.Streams {
			points := make([]RawPoint, len(s.Data))
			for k, p := range s.Data {
				points[k] = RawPoint{Time: p.Time, Bytes: p.Bytes}
			}
			streams[j] = RawStream{Data: points}
		}
		groups[i] = RawStreamGroup{Download: g.Download, Both: g.Both, Streams: streams}
	}

	pings := make([]RawPing, len(r.Pings))
	for i, p := range r.Pings {
		rp := RawPing{Index: p.Index, Sent: p.Sent}
		if p.Latency != nil {
			rp.Latency = &RawLatency{Total: p.Latency.Total, Up: p.Latency.Up}
		}
		pings[i] = rp
	}

	return RawResult{
		Version:       CurrentVersion,
		Config:        RawConfig(r.Config),
		IPv6:          r.IPv6,
		ServerLatency: r.ServerLatency,
		Start:         r.Start,
		Duration:      r.Duration,
		StreamGroups:  groups,
		Pings:         pings,
	}
}
