// Package api hosts the HTTP status server and middleware for operator
// access during long runs. Notable routes:
//   - GET /healthz and /readyz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/runs/{run_id} and /v1/runs/{run_id}/batches for run
//     progress backed by the journal.
package api
