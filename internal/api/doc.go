// Package api hosts the HTTP server, middleware, and REST handlers. Notable
// routes:
//   - GET and POST /health for the cached source health snapshot.
//   - POST /search, /pages, /chapters and /info for adapter operations.
//   - GET /sources for the registered descriptors.
//   - GET /proxy/html for the HTML proxy endpoint other instances use.
//   - GET /healthz, /readyz and /metrics for operators.
package api
