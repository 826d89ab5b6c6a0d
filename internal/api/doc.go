// Package api serves the read-only HTTP status surface of the daemon.
//
// # Routes
//
//	GET /api/health             liveness, no auth
//	GET /api/status             uptime, last cycle report, ledger summary
//	GET /api/attempts?limit=N   newest ledger rows (default 20, max 500)
//
// # Design Notes
//
// DTOs use camelCase JSON tags like the rest of the transport layer and
// timestamps use RFC3339 with milliseconds. The router is a chi mux; when a
// token is configured every route except /api/health requires
// "Authorization: Bearer <token>".
package api
