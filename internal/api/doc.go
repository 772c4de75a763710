// Package api hosts the HTTP server, middleware, and read-only handlers for
// the stock snapshot. Notable routes:
//   - GET / for the full snapshot, GET /gear, /egg and /seeds for one section.
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//
// Data routes never answer with a 5xx because upstream is broken: until a
// snapshot exists they return 200 with an {"error": "..."} body.
package api
