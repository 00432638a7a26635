package commands

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"visitcounter/internal/components/telemetry"
	"visitcounter/internal/counterapi"
	sessiondb "visitcounter/internal/session/db"
	"visitcounter/lib/restyutil"
	libtelemetry "visitcounter/lib/telemetry"
)

// setupTelemetry returns a shutdown func, a missing telemetry.json5 only
// disables exporting.
func setupTelemetry(ctx context.Context) func() {
	t, err := libtelemetry.SetupFromEnv(ctx, "visitcounter")
	if errors.Is(err, os.ErrNotExist) {
		slog.Debug("no telemetry.json5 found, telemetry export disabled")
		return func() {}
	}
	if err != nil {
		slog.Warn("failed to setup telemetry", "err", err)
		return func() {}
	}
	return func() {
		err := t.Shutdown(context.Background())
		if err != nil {
			slog.Warn("failed to shutdown telemetry", "err", err)
		}
	}
}

func createClient(cfg Config, tel telemetry.API) (counterapi.Client, error) {
	if cfg.EndpointUrl == "" {
		return counterapi.Client{}, fmt.Errorf("endpoint_url is not configured (set it in %s or %sENDPOINT_URL)", *configPath, envPrefix)
	}

	options := []counterapi.ClientOption{counterapi.WithTelemetry(tel)}
	if cfg.Debug && cfg.DumpDir != "" {
		output, err := restyutil.NewFilesystemOutput(cfg.DumpDir)
		if err != nil {
			return counterapi.Client{}, err
		}
		options = append(options, counterapi.WithInstrumentOutput(output))
	}
	return counterapi.NewClient(cfg.EndpointUrl, options...)
}

// openSessions returns nil when no session database is configured.
func openSessions(cfg Config) (*sql.DB, error) {
	if !cfg.Sessions.Configured() {
		return nil, nil
	}
	return cfg.Sessions.OpenDB(sessiondb.Schema)
}
