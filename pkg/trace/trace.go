// Package trace sets up OpenTelemetry for livevoice and instruments live
// sessions. Until Initialize is called spans go to the global no-op
// provider.
package trace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of every livevoice span.
const TracerName = "github.com/realtime-ai/livevoice"

// Exporters
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// ErrInitialized is returned by a second Initialize without Shutdown.
var ErrInitialized = errors.New("trace: already initialized")

// Config selects where spans go.
type Config struct {
	ServiceName    string
	ServiceVersion string

	// Exporter 可选 none / stdout / otlp，默认 none
	Exporter string
	// OTLPEndpoint 是 otlp gRPC 地址，例如 localhost:4317
	OTLPEndpoint string
	// SampleRatio 取值 0 到 1；0 表示全部采样
	SampleRatio float64

	// Writer 接收 stdout 导出器的输出，默认 os.Stderr（终端界面占用 stdout）
	Writer io.Writer
}

func (c *Config) applyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "livevoice"
	}
	if c.Exporter == "" {
		c.Exporter = ExporterNone
	}
	if c.SampleRatio <= 0 || c.SampleRatio > 1 {
		c.SampleRatio = 1
	}
	if c.Writer == nil {
		c.Writer = os.Stderr
	}
}

var (
	mu       sync.RWMutex
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
)

// Initialize installs a tracer provider for cfg as the global provider.
func Initialize(ctx context.Context, cfg Config) error {
	cfg.applyDefaults()

	mu.Lock()
	defer mu.Unlock()
	if provider != nil {
		return ErrInitialized
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return err
	}

	// 不带 schema URL，避免与 resource.Default() 的 semconv 版本冲突
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return fmt.Errorf("trace resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	}
	// none 时不挂导出器，span 仍然生成（trace id 可用于日志）但不输出
	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	provider = sdktrace.NewTracerProvider(opts...)
	tracer = provider.Tracer(TracerName)
	otel.SetTracerProvider(provider)

	log.Printf("[Trace] initialized, exporter: %s", cfg.Exporter)
	return nil
}

func newExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case ExporterNone:
		return nil, nil
	case ExporterStdout:
		exp, err := stdouttrace.New(stdouttrace.WithWriter(cfg.Writer), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("stdout exporter: %w", err)
		}
		return exp, nil
	case ExporterOTLP:
		exp, err := otlptrace.New(ctx, otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		))
		if err != nil {
			return nil, fmt.Errorf("otlp exporter: %w", err)
		}
		return exp, nil
	default:
		return nil, fmt.Errorf("trace: unsupported exporter %q", cfg.Exporter)
	}
}

// Shutdown flushes pending spans and uninstalls the provider. It is a
// no-op when tracing was never initialized.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	defer mu.Unlock()
	if provider == nil {
		return nil
	}
	err := provider.Shutdown(ctx)
	provider, tracer = nil, nil
	if err != nil {
		return fmt.Errorf("trace shutdown: %w", err)
	}
	return nil
}

// Tracer returns the livevoice tracer.
func Tracer() trace.Tracer {
	mu.RLock()
	defer mu.RUnlock()
	if tracer == nil {
		return otel.Tracer(TracerName)
	}
	return tracer
}

func startSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}
