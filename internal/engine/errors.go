package engine

import "errors"

// Sentinel errors the orchestrator can fail with. pkg/client.go maps
// these 1:1 onto the public probe.Err* sentinels with errors.Is, so
// callers never see an internal/engine type.
var (
	ErrConnectFailed       = errors.New("engine: connect failed")
	ErrHandshakeMismatch   = errors.New("engine: handshake mismatch")
	ErrServerRejected      = errors.New("engine: server rejected new client")
	ErrProtocolViolation   = errors.New("engine: protocol violation")
	ErrLatencyUnmeasurable = errors.New("engine: latency unmeasurable")
	ErrLoadAborted         = errors.New("engine: load aborted")
	ErrCancelled           = errors.New("engine: cancelled")
	ErrInternalTimeout     = errors.New("engine: internal timeout")
)
