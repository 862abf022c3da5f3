// Package progress provides the event primitives and non-blocking hub the
// crawl orchestrator uses to report runs, content types, batches and tag
// outcomes. Events are batched on a background goroutine and fanned out to
// pluggable sinks such as Prometheus metrics or the crawl-run ledger.
package progress
