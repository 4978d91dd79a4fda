// Package api implements the labeldash HTTP API and WebSocket server.
//
// This package provides:
//   - REST endpoints for the session snapshot, subscriptions and print jobs
//   - The dashboard configuration document at /config/config.json
//   - A WebSocket hub that pushes every session snapshot to browsers
//   - Prometheus metrics at /metrics
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// The server never talks to the broker itself. Reads come from session
// snapshots, writes are posted to the session (Subscribe, Unsubscribe) or
// the print job submitter. Submitting a job is fire-and-forget: the handler
// answers 202 Accepted once the job is queued, connected or not.
//
// # Graceful Degradation
//
// History and metrics are optional. Without a history repository
// /api/v1/jobs answers 503; without metrics /metrics is not mounted.
package api
