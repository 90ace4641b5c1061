// Package api defines the wire types of the FlowDecompose HTTP API.
//
// # API Overview
//
// FlowDecompose exposes:
//   - Job submission and status for learn and compare decompositions
//   - A websocket stream of job progress and partial results
//   - Virtual motion preview sub-jobs
//   - The shot terminology catalogue
//   - Health, readiness and version endpoints
//
// # Authentication
//
// When API keys are configured, requests must carry the X-API-Key header:
//
//	X-API-Key: your-api-key
//
// When a JWT secret is configured instead, an Authorization: Bearer token
// is required.
//
// # Base URL
//
//	http://localhost:8080
//
// Every JSON response uses the envelope
//
//	{"success": bool, "data": ..., "error": {"code", "message"}, "timestamp", "request_id"}
package api
