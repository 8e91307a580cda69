// Package utils contains small shared helpers used across scout: JSON-over-HTTP
// request helpers for provider backends, an SSE scanner for streaming responses,
// and string utilities for log output.
package utils
