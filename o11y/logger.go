// Package o11y carries the service's observability helpers: the structured
// logger, prometheus metrics and the instrumented outbound HTTP client.
package o11y

import (
	"github.com/go-chi/httplog"
	"github.com/rs/zerolog"
)

// NewLogger builds the service logger. Local mode logs human-readable debug
// output; everything else logs JSON at info.
func NewLogger(service string, local bool) zerolog.Logger {
	level := zerolog.LevelInfoValue
	if local {
		level = zerolog.LevelDebugValue
	}
	return httplog.NewLogger(service, httplog.Options{
		LogLevel: level,
		Concise:  local,
		JSON:     !local,
	})
}
