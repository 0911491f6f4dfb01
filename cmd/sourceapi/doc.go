// Package main hosts the source API entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes /health, /search, /pages, /chapters, /info and /sources plus
//     /healthz, /readyz and /metrics. Request bodies are JSON; errors are {"error": "..."} with a 4xx for caller
//     mistakes and a 5xx for upstream failures.
//   - Adapters: internal/sources holds one package per site. Each embeds sources.Base, which binds the shared
//     retrieval client to the adapter's strategy and carries a per-host throttle for serial detail fetches.
//   - Retrieval: a direct Colly fetch, then a proxy stage (an HTTP relay or headless Chrome) when the direct stage
//     fails or returns a bot-wall challenge. Retry strategies wrap either. The terminal error names the failing stage.
//   - Health: every source is probed concurrently; the full cycle is cached for the configured TTL in memory or in
//     Redis, and optionally written to Postgres for the /health/history endpoint.
//
// Quick checklist:
//   - Configure env vars: SOURCEAPI_SERVER_PORT, SOURCEAPI_PROXY_MODE (none|http|headless),
//     SOURCEAPI_PROXY_ENDPOINT, SOURCEAPI_HEALTH_CACHE (memory|redis), SOURCEAPI_REDIS_ADDR, SOURCEAPI_DB_DSN.
//   - Run locally: go run ./cmd/sourceapi serve --config config.yaml
//   - One-off checks: sourceapi health, sourceapi search "solo leveling" --source asurascan
package main
