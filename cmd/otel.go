//go:build otel

package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/runloop/internal/config"
	"github.com/nextlevelbuilder/runloop/internal/runlog"
	"github.com/nextlevelbuilder/runloop/internal/telemetry"
)

// exportRunTelemetry ships the finished run's event stream to the
// configured OTLP backend. Only compiled with -tags otel.
func exportRunTelemetry(ctx context.Context, cfg *config.Config, runID, status, eventsPath string) {
	if cfg.Telemetry == nil || cfg.Telemetry.Endpoint == "" {
		slog.Debug("OTel export available but not configured (set telemetry.endpoint)")
		return
	}

	exp, err := telemetry.New(ctx, *cfg.Telemetry)
	if err != nil {
		slog.Warn("otel exporter unavailable", "error", err)
		return
	}

	events, err := runlog.ReadEvents(eventsPath)
	if err != nil {
		slog.Warn("event stream partially readable for export", "error", err)
	}
	exp.ExportRun(ctx, runID, status, events)

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := exp.Shutdown(shutdownCtx); err != nil {
		slog.Warn("otel exporter shutdown", "error", err)
	}
	slog.Info("run telemetry exported", "run", runID, "endpoint", cfg.Telemetry.Endpoint)
}
