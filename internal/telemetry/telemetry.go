// Package telemetry installs the OpenTelemetry meter provider and exposes it
// to Prometheus.
package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// Options describes the process being instrumented.
type Options struct {
	ServiceName string
	Environment string
}

// Setup installs a global meter provider backed by a Prometheus exporter.
// The returned handler serves the scrape endpoint; it is nil when the
// exporter could not be created, in which case metrics are still recorded
// but not exported.
func Setup(ctx context.Context, opts Options, logger *log.Logger) (func(context.Context) error, http.Handler, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", opts.ServiceName),
			attribute.String("deployment.environment", opts.Environment),
		),
	)
	if err != nil {
		return nil, nil, err
	}

	var handler http.Handler
	var provider *sdkmetric.MeterProvider
	promExporter, err := prometheus.New()
	if err != nil {
		logger.Warn("failed to initialize prometheus exporter", "error", err)
		provider = sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))
	} else {
		provider = sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(promExporter),
			sdkmetric.WithResource(res),
		)
		handler = promhttp.Handler()
	}
	otel.SetMeterProvider(provider)
	logger.Info("telemetry initialized", "exporter", "prometheus", "service", opts.ServiceName)

	return provider.Shutdown, handler, nil
}

// Serve exposes handler on addr under /metrics until ctx is done.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *log.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving metrics", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Meter returns a meter from the global provider. Instruments created
// before Setup forward to the provider installed later.
func Meter(name string) metric.Meter {
	return otel.Meter("github.com/glasscast/glasscast/" + name)
}

// Counter creates a counter, falling back to a no-op instrument.
func Counter(m metric.Meter, name, desc string) metric.Int64Counter {
	c, err := m.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		log.Debug("counter unavailable", "name", name, "error", err)
		return noop.Int64Counter{}
	}
	return c
}

// Histogram creates a float histogram in seconds, falling back to a no-op
// instrument.
func Histogram(m metric.Meter, name, desc string) metric.Float64Histogram {
	h, err := m.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("s"))
	if err != nil {
		log.Debug("histogram unavailable", "name", name, "error", err)
		return noop.Float64Histogram{}
	}
	return h
}
