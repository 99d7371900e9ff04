//go:build !otel

package cmd

import (
	"context"

	"github.com/nextlevelbuilder/runloop/internal/config"
)

// exportRunTelemetry is a no-op when built without the "otel" tag.
// Build with `go build -tags otel` to enable OpenTelemetry export.
func exportRunTelemetry(_ context.Context, _ *config.Config, _, _, _ string) {
}
