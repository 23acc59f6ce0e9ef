// Package progress provides the event primitives, non-blocking hub, and
// emitter interfaces the crawl orchestrator uses to report run progress. The
// hub batches events on a background goroutine and fans them out to pluggable
// sinks such as Prometheus metrics or the run-history store.
package progress
