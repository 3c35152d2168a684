package engine

import "time"

// satSub subtracts b from a, clamping at zero instead of going negative.
// Clock jitter between client and server samples can otherwise produce
// a small negative split that has no physical meaning.
func satSub(a, b time.Duration) time.Duration {
	if b >= a {
		return 0
	}
	return a - b
}
