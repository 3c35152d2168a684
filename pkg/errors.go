package probe

import "errors"

// Error kinds a test run can fail with. Callers distinguish them with
// errors.Is; all are wrapped with additional context via fmt.Errorf at
// the point they're raised.
var (
	// ErrConnectFailed indicates a TCP connect or UDP bind failed.
	// Fatal, no retry.
	ErrConnectFailed = errors.New("probe: connect failed")
	// ErrHandshakeMismatch indicates the two sides' Hello bytes
	// differed. Fatal.
	ErrHandshakeMismatch = errors.New("probe: handshake mismatch")
	// ErrServerRejected indicates the server replied NewClient(none).
	// Fatal.
	ErrServerRejected = errors.New("probe: server rejected new client")
	// ErrProtocolViolation indicates an unexpected or malformed control
	// message. Fatal.
	ErrProtocolViolation = errors.New("probe: protocol violation")
	// ErrLatencyUnmeasurable indicates no calibration pings were
	// matched. Fatal, raised before any load phase runs.
	ErrLatencyUnmeasurable = errors.New("probe: latency unmeasurable")
	// ErrLoadAborted indicates the control connection was lost during
	// a load phase. The partial result is discarded.
	ErrLoadAborted = errors.New("probe: load aborted")
	// ErrCancelled indicates the caller cancelled the run.
	ErrCancelled = errors.New("probe: cancelled")
	// ErrInternalTimeout indicates the test-wide deadline was exceeded.
	// Fatal, partial counters discarded.
	ErrInternalTimeout = errors.New("probe: internal timeout")
)
