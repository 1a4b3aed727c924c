// Package api implements the HTTP REST API and WebSocket server for emubot.
//
// This package provides:
//   - REST endpoints for script and bot catalog CRUD
//   - Run control: start a bot, list and inspect runs, stop a run
//   - A read-only view of instance reservations
//   - The operator audit trail (admin only)
//   - WebSocket hub broadcasting run status changes
//   - Middleware stack (request ID, logging, recovery, CORS, JWT auth)
//
// # Security
//
// When security.jwt.secret is set, every route except /health requires a
// bearer token issued by the auth package. The token role decides what the
// caller may do. WebSocket clients pass the token as the token query
// parameter since browsers cannot set headers on the upgrade request.
// With no secret configured the API is open; bind it to loopback.
package api
