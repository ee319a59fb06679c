package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/teemow/inboxagent/internal/instrumentation"
	"github.com/teemow/inboxagent/internal/logging"
)

const telemetryShutdownTimeout = 10 * time.Second

// startInstrumentation creates the telemetry provider from the environment.
// The returned stop function flushes exporters.
func startInstrumentation(ctx context.Context, logger *slog.Logger) (*instrumentation.Provider, instrumentation.Config, func(), error) {
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return nil, instrConfig, nil, fmt.Errorf("failed to create instrumentation provider: %w", err)
	}

	stop := func() {
		// ctx is usually cancelled by now; give exporters their own deadline.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("error during instrumentation shutdown", logging.Err(err))
		}
	}
	return provider, instrConfig, stop, nil
}
