package main

import (
	"context"
	"fmt"
	"time"

	"netmig/internal/config"
	"netmig/internal/engine"
	"netmig/internal/logging"
	"netmig/internal/monitor"
	"netmig/internal/observability"
)

// Container holds the wired-up application services for one CLI run.
type Container struct {
	Settings *config.Manager
	Logger   *observability.Logger
	Metrics  *observability.MetricsCollector
	Tracer   *observability.TracerProvider
	Client   *engine.Client
	Monitor  *monitor.Monitor
}

// buildOptions carries command-line overrides into the container build.
// Zero values defer to the configuration file and its defaults.
type buildOptions struct {
	engineURL string
	token     string
	poll      bool
}

// componentLogger fans diagnostics out to the structured stderr stream and
// the debug file.
func componentLogger(obs *observability.Logger, component string) logging.Logger {
	return logging.Multi(
		logging.FromObservabilityWithComponent(obs, component),
		logging.NewComponentLogger(component),
	)
}

func buildContainer(opts buildOptions) (*Container, error) {
	settings, err := config.NewManager()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	obsConfig, err := observability.LoadConfig(settings.ObservabilityPath())
	if err != nil {
		return nil, fmt.Errorf("load observability config: %w", err)
	}

	// Logs go to stderr; stdout is reserved for command output.
	logger := observability.NewLogger(observability.LogConfig{
		Level:  obsConfig.Logging.Level,
		Format: obsConfig.Logging.Format,
	})

	metrics, err := observability.NewMetricsCollector(obsConfig.Metrics)
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	tracer, err := observability.NewTracerProvider(obsConfig.Tracing)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	engineURL := opts.engineURL
	if engineURL == "" {
		engineURL = settings.EngineURL()
	}
	token := opts.token
	if token == "" {
		token = settings.Token()
	}

	client, err := engine.NewClient(engine.Config{
		BaseURL: engineURL,
		Token:   token,
		Timeout: settings.RequestTimeout(),
		Logger:  componentLogger(logger, "engine"),
		Metrics: metrics,
		Tracer:  tracer,
	})
	if err != nil {
		return nil, err
	}

	mode := monitor.ModeStream
	if opts.poll || !settings.StreamEnabled() {
		mode = monitor.ModePoll
	}

	mon, err := monitor.New(monitor.Config{
		Client:       client,
		Mode:         mode,
		PollInterval: settings.PollInterval(),
		MaxWait:      settings.MaxWait(),
		Logger:       componentLogger(logger, "monitor"),
		Metrics:      metrics,
		Tracer:       tracer,
	})
	if err != nil {
		return nil, err
	}

	return &Container{
		Settings: settings,
		Logger:   logger,
		Metrics:  metrics,
		Tracer:   tracer,
		Client:   client,
		Monitor:  mon,
	}, nil
}

// Cleanup stops watchers and flushes telemetry. Safe to call once at exit.
func (c *Container) Cleanup() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var firstErr error
	if c.Monitor != nil {
		if err := c.Monitor.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.Tracer != nil {
		if err := c.Tracer.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.Metrics != nil {
		if err := c.Metrics.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
