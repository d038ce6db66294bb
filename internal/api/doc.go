// Package api hosts the HTTP server, middleware, and REST handlers.
// Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/analyses/deep to queue a deep site analysis, then
//     GET /v1/analyses/{job_id}/status|result and POST .../cancel.
//   - POST /v1/pages/score to run the page rubric on a single PageSignal.
package api
