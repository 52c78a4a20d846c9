// Package tracing wraps OpenTelemetry so that dispatch, callbacks and API calls can open spans
// without importing the SDK directly.
package tracing
