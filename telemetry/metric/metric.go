//
// Tencent is pleased to support the open source community by making hybridrag available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// hybridrag is licensed under the Apache License Version 2.0.
//
//

// Package metric exports retrieval metrics over OTLP.
//
// Until Start succeeds the package records into no-op instruments, so callers
// can instrument unconditionally.
package metric

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	noopm "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	serviceName    = "hybridrag"
	serviceVersion = "v0.1.0"
	instrumentName = "trpc.hybridrag"
)

// Meter is the global OpenTelemetry meter for the retrieval engine.
var Meter metric.Meter = noopm.Meter{}

var (
	searchCounter   metric.Int64Counter     = noopm.Int64Counter{}
	searchLatency   metric.Float64Histogram = noopm.Float64Histogram{}
	documentCounter metric.Int64Counter     = noopm.Int64Counter{}
)

// Option is a function that configures meter options.
type Option func(*options)

// options holds the configuration options for the meter.
type options struct {
	metricsEndpoint string
}

// WithEndpoint sets the collector endpoint, e.g. "example.com:4317" (no
// scheme or path). When unset, the OTEL_EXPORTER_OTLP_METRICS_ENDPOINT and
// OTEL_EXPORTER_OTLP_ENDPOINT environment variables are consulted in that
// order.
func WithEndpoint(endpoint string) Option {
	return func(opts *options) {
		opts.metricsEndpoint = endpoint
	}
}

// Start initializes the OTLP meter provider and the retrieval instruments.
// The returned clean function flushes and shuts the provider down.
func Start(ctx context.Context, opts ...Option) (clean func() error, err error) {
	options := &options{metricsEndpoint: metricsEndpoint()}
	for _, opt := range opts {
		opt(options)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	conn, err := grpc.NewClient(options.metricsEndpoint,
		// Note the use of insecure transport here. TLS is recommended in production.
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection to collector: %w", err)
	}

	exporter, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(provider)
	Meter = otel.Meter(instrumentName)

	if err := initInstruments(); err != nil {
		return nil, err
	}
	return func() error {
		if err := provider.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("failed to shutdown MeterProvider: %w", err)
		}
		return nil
	}, nil
}

func metricsEndpoint() string {
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"); endpoint != "" {
		return endpoint
	}
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		return endpoint
	}
	return "localhost:4317"
}

func initInstruments() error {
	var err error
	searchCounter, err = Meter.Int64Counter("hybridrag.search.count",
		metric.WithDescription("Number of search calls"))
	if err != nil {
		return fmt.Errorf("create search counter: %w", err)
	}
	searchLatency, err = Meter.Float64Histogram("hybridrag.search.duration",
		metric.WithDescription("Search wall-clock time"),
		metric.WithUnit("s"))
	if err != nil {
		return fmt.Errorf("create search histogram: %w", err)
	}
	documentCounter, err = Meter.Int64Counter("hybridrag.documents.added",
		metric.WithDescription("Number of documents added"))
	if err != nil {
		return fmt.Errorf("create document counter: %w", err)
	}
	return nil
}

// RecordSearch records one search call.
func RecordSearch(ctx context.Context, mode string, results int, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.Bool("has_results", results > 0),
	)
	searchCounter.Add(ctx, 1, attrs)
	searchLatency.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordAdd records one added document.
func RecordAdd(ctx context.Context, namespace string) {
	documentCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("namespace", namespace),
	))
}
