//
// Tencent is pleased to support the open source community by making trpc-pipeline-agent available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-pipeline-agent is licensed under the Apache License Version 2.0.
//
//

// Package telemetry wires the global OpenTelemetry tracer and meter used by
// the pipeline agent client. Both default to no-ops; Start replaces them
// with OTLP-exporting providers.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	noopm "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
	"go.opentelemetry.io/otel/trace"
	noopt "go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// instrumentationName identifies spans and metrics emitted by this module.
const instrumentationName = "trpc.pipeline.agent"

var (
	// Tracer is the global OpenTelemetry tracer for the pipeline agent.
	Tracer trace.Tracer = noopt.Tracer{}
	// Meter is the global OpenTelemetry meter for the pipeline agent.
	Meter metric.Meter = noopm.Meter{}
)

// Protocol selects the OTLP transport used by the exporters.
type Protocol string

// Exporter protocols.
const (
	// ProtocolGRPC exports over OTLP/gRPC (default).
	ProtocolGRPC Protocol = "grpc"
	// ProtocolHTTP exports over OTLP/HTTP.
	ProtocolHTTP Protocol = "http"
)

// Option configures telemetry startup.
type Option func(*options)

type options struct {
	endpoint       string
	protocol       Protocol
	serviceName    string
	serviceVersion string
}

// WithEndpoint sets the collector endpoint (host and port, no scheme) the
// exporters connect to. When not passed, OTEL_EXPORTER_OTLP_ENDPOINT is
// consulted, then a localhost default.
func WithEndpoint(endpoint string) Option {
	return func(o *options) { o.endpoint = endpoint }
}

// WithProtocol selects the OTLP transport, grpc or http.
func WithProtocol(p Protocol) Option {
	return func(o *options) { o.protocol = p }
}

// WithServiceName sets the reported service name.
func WithServiceName(name string) Option {
	return func(o *options) { o.serviceName = name }
}

// WithServiceVersion sets the reported service version.
func WithServiceVersion(version string) Option {
	return func(o *options) { o.serviceVersion = version }
}

// Start initializes the OTLP trace and metric providers and swaps the
// package globals. The returned clean function flushes and shuts both down.
func Start(ctx context.Context, opts ...Option) (clean func() error, err error) {
	o := &options{
		endpoint:       defaultEndpoint(),
		protocol:       ProtocolGRPC,
		serviceName:    "trpc-pipeline-agent",
		serviceVersion: "v0.1.0",
	}
	for _, opt := range opts {
		opt(o)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(o.serviceName),
			semconv.ServiceVersion(o.serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create telemetry resource: %w", err)
	}

	traceExporter, metricExporter, err := newExporters(ctx, o)
	if err != nil {
		return nil, err
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(traceExporter)),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)

	Tracer = otel.Tracer(instrumentationName)
	Meter = otel.Meter(instrumentationName)

	clean = func() error {
		var err error
		if traceErr := tracerProvider.Shutdown(context.Background()); traceErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown tracer provider: %w", traceErr))
		}
		if meterErr := meterProvider.Shutdown(context.Background()); meterErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown meter provider: %w", meterErr))
		}
		return err
	}
	return clean, nil
}

func newExporters(ctx context.Context, o *options) (sdktrace.SpanExporter, sdkmetric.Exporter, error) {
	switch o.protocol {
	case ProtocolHTTP:
		traceExporter, err := otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(o.endpoint), otlptracehttp.WithInsecure())
		if err != nil {
			return nil, nil, fmt.Errorf("create OTLP/HTTP trace exporter: %w", err)
		}
		metricExporter, err := otlpmetrichttp.New(ctx,
			otlpmetrichttp.WithEndpoint(o.endpoint), otlpmetrichttp.WithInsecure())
		if err != nil {
			return nil, nil, fmt.Errorf("create OTLP/HTTP metric exporter: %w", err)
		}
		return traceExporter, metricExporter, nil
	default:
		conn, err := grpc.NewClient(o.endpoint,
			// Insecure transport by default; fronting collectors usually
			// run alongside the pipeline worker.
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("create gRPC connection to collector: %w", err)
		}
		traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
		if err != nil {
			return nil, nil, fmt.Errorf("create OTLP/gRPC trace exporter: %w", err)
		}
		metricExporter, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(conn))
		if err != nil {
			return nil, nil, fmt.Errorf("create OTLP/gRPC metric exporter: %w", err)
		}
		return traceExporter, metricExporter, nil
	}
}

func defaultEndpoint() string {
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		return endpoint
	}
	return "localhost:4317"
}
