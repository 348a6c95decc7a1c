// Package handlers implements the HTTP surface described in spec §6:
// GET /health, GET /healthz, GET /ready, GET /version, and the router's
// only functional endpoint, POST /query.
//
// Core types:
//
//   - QueryHandler  — dispatches POST /query through internal/dispatcher
//   - HealthHandler — liveness/readiness probing with pluggable HealthCheck
//   - Response      — generic JSON envelope for every endpoint except
//     POST /query, whose response shape is pinned by spec §6
//
// POST /query never returns a non-200 status for a dispatch outcome,
// success or structured error alike; only a malformed request body
// does. See WriteRouterError and DecodeJSONBody.
package handlers
