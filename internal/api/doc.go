// Package api hosts the HTTP server, middleware, and REST handlers for
// operator access. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/runs to queue a crawl run; GET /v1/runs and /v1/runs/{run_id}
//     (+ /leagues) for run history via the runs.Repository interface.
//   - GET /v1/pool/stats and /v1/cache/stats for live engine introspection.
package api
