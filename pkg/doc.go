// Package probe is the public API of netq: a network quality test
// harness that saturates a link between a client and a cooperating
// server while sampling one-way and round-trip latency over an
// unloaded auxiliary UDP channel.
//
// Run or RunWithProgress drive a complete test and return a RawResult,
// the coherent time-series-plus-summary record consumers (a plotter, a
// results file writer, a remote-controller bridge) build on. The core
// does not prescribe persistence format or presentation; it only
// produces RawResult and hands it to the caller.
package probe
