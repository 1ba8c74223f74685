// Package api documents the HTTP surface of the A2A Agent Host.
//
// # API Overview
//
// The host exposes a small, fixed set of endpoints:
//
//	GET  /.well-known/agent.json   Agent Card (discovery)
//	POST /api/messages             message exchange (path and method come from the card)
//	GET  /health                   liveness plus agent_initialized flag
//	GET  /ready                    readiness, 503 while the runtime is initializing
//	GET  /version                  build information
//	GET  /                         service summary
//
// Prometheus metrics are served on a separate listener (server.metrics_port).
//
// # Authentication
//
// When server.api_keys is configured, requests must carry the X-API-Key header.
// When server.jwt is configured, requests must carry a bearer token instead.
// Discovery and health endpoints are always public:
//
//	X-API-Key: your-api-key
//	Authorization: Bearer <token>
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8000
//
// # Errors
//
// Every non-2xx reply has the same body:
//
//	{"error": "No user message found", "code": "CLIENT_INPUT"}
//
// Codes map to statuses one-to-one: CLIENT_INPUT 400, NOT_READY 503,
// RUNTIME_FAILURE 500.
//
// Handlers live in package api/handlers.
package api
