// Package api hosts the HTTP surface over a finished crawl. Notable routes:
//   - GET /healthz and /readyz for probes. readyz turns ready once an index
//     has been installed with SetIndex.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/search?q=&limit= for term lookups against the index.
//   - GET /v1/runs, /v1/runs/{run_id} and /v1/runs/{run_id}/feeds for run
//     progress via the store.RunRepository interface.
package api
