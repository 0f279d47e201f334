//go:build otel

package cmd

import (
	"context"
	"log/slog"

	"github.com/nextlevelbuilder/hedgewatch/internal/config"
	"github.com/nextlevelbuilder/hedgewatch/internal/tracing/otelexport"
)

const otelBuild = true

// initOTelExporter installs the OTLP exporter as the global tracer provider
// when telemetry is enabled. Only compiled with -tags otel. The returned
// func flushes and stops the exporter.
func initOTelExporter(ctx context.Context, cfg *config.Config) func(context.Context) {
	tc := cfg.Telemetry
	if !tc.Enabled || tc.Endpoint == "" {
		slog.Debug("otel.disabled", "hint", "set telemetry.enabled and telemetry.endpoint")
		return func(context.Context) {}
	}

	exp, err := otelexport.New(ctx, otelexport.Config{
		Endpoint:    tc.Endpoint,
		Protocol:    tc.Protocol,
		Insecure:    tc.Insecure,
		ServiceName: tc.ServiceName,
		Version:     Version,
		Headers:     tc.Headers,
	})
	if err != nil {
		slog.Warn("otel.exporter_failed", "error", err)
		return func(context.Context) {}
	}
	exp.Install()
	slog.Info("otel.export_enabled", "endpoint", tc.Endpoint, "protocol", tc.Protocol)

	return func(ctx context.Context) {
		if err := exp.Shutdown(ctx); err != nil {
			slog.Warn("otel.shutdown_failed", "error", err)
		}
	}
}
