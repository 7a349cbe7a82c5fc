// Package server implements the HTTP server for the homesite website.
//
// This package provides:
//   - Site pages, the blog and the gallery, rendered from internal/site
//   - Authenticated gallery uploads and read-only API endpoints
//   - The update webhook endpoint with HMAC signature verification
//   - Health and Prometheus metrics endpoints
//   - Structured logging of all HTTP requests
//
// The server integrates with other packages:
//   - internal/site: template, blog and gallery caches
//   - internal/update: pulling, artifact download and release installation
//   - internal/visits: visit counter
//   - internal/history: update history tracking
//
// Security features:
//   - HMAC-SHA256 webhook signature verification
//   - Payload size limits (1MB max for webhooks)
//   - Bearer token capabilities for uploads and the API
//   - Per-IP rate limiting of the webhook and uploads
//   - One update at a time
//
// The server never exits the process itself. When an update installs a new
// release it sends a RestartRequest, and the host decides how to exit.
package server
