// Package api hosts the ops HTTP server that runs next to a crawl. Routes:
//   - GET /healthz and /readyz for probes; readiness pings the run ledger.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/runs and /v1/runs/{run_id} for the crawl-run ledger.
package api
