package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"visitcounter/internal/components/telemetry"
	"visitcounter/lib/configutil"
	"visitcounter/lib/serviceutil"
	libtelemetry "visitcounter/lib/telemetry"
	"visitcounter/services/counter"
	counterdb "visitcounter/services/counter/db"
)

func main() {
	ctx := serviceutil.SignalContext()

	config, err := configutil.Read[Config]("counterd.json5", configutil.WithEnvPrefix("COUNTERD_"))
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}
	libtelemetry.InitSlog(config.Debug)

	db, err := config.Database.OpenDB(counterdb.Schema)
	if err != nil {
		serviceutil.Fatal("failed to open database", err)
	}
	defer db.Close()

	t, err := libtelemetry.SetupFromEnv(ctx, "counterd")
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		serviceutil.Fatal("failed to setup telemetry", err)
	}
	if err == nil {
		defer t.Shutdown(context.Background())
	}
	libtelemetry.InstrumentPerfStats(ctx, time.Second*30)

	options := []counter.Option{counter.WithTelemetryAPI(telemetry.SlogAPI{})}
	if config.CounterID != "" {
		options = append(options, counter.WithCounterID(config.CounterID))
	}
	if config.AllowedOrigin != "" {
		options = append(options, counter.WithAllowedOrigin(config.AllowedOrigin))
	}
	switch {
	case config.CacheSeconds < 0:
		options = append(options, counter.WithCacheTTL(0))
	case config.CacheSeconds > 0:
		options = append(options, counter.WithCacheTTL(time.Duration(config.CacheSeconds)*time.Second))
	}

	service := counter.NewService(db, options...)
	slog.Info("serving visit counter", "counter_id", service.CounterID())
	serviceutil.StartHttpServer(ctx, config.port(), service)
}
