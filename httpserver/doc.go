// Package httpserver implements a development stub of the platform status
// service. It serves the GET /info wire shape from scriptable per-app status
// sequences, so the CLI and the end-to-end tests can exercise the polling
// watchers without a live platform. Standard liveness, readiness, and drain
// endpoints are included.
package httpserver
