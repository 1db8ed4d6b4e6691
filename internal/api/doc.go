// Package api hosts the admin HTTP server. Notable routes:
//   - GET /healthz and /readyz for health checks; readyz pings the store.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/schedules and /v1/schedules/{category} for per-category schedule state.
package api
