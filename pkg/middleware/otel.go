package middleware

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fundsavy/fundsavy/pkg/fetch"
)

// Default tracer name for fundsavy retrievals.
const defaultTracerName = "fundsavy"

// OTelConfig configures the OpenTelemetry middleware.
type OTelConfig struct {
	// TracerName is the name of the tracer (default: "fundsavy").
	TracerName string

	// IncludeLocator records the locator as a span attribute.
	// Enabled by default.
	IncludeLocator bool

	// AttributeExtractor adds custom attributes for a locator.
	AttributeExtractor func(ctx context.Context, locator string) []attribute.KeyValue

	// TracerProvider overrides the global provider.
	TracerProvider trace.TracerProvider
}

// OTelOption configures the OpenTelemetry middleware.
type OTelOption func(*OTelConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) OTelOption {
	return func(c *OTelConfig) {
		c.TracerName = name
	}
}

// WithIncludeLocator enables/disables the locator attribute.
func WithIncludeLocator(include bool) OTelOption {
	return func(c *OTelConfig) {
		c.IncludeLocator = include
	}
}

// WithAttributeExtractor sets a custom attribute extractor.
func WithAttributeExtractor(extractor func(ctx context.Context, locator string) []attribute.KeyValue) OTelOption {
	return func(c *OTelConfig) {
		c.AttributeExtractor = extractor
	}
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) OTelOption {
	return func(c *OTelConfig) {
		c.TracerProvider = tp
	}
}

// OpenTelemetry returns retrieval middleware that traces every retrieval.
//
// The middleware:
//   - Creates a client span per retrieval with the locator
//   - Propagates the span context to the wrapped retriever
//   - Records errors with their kind and status code
//
// The tracer uses the global OpenTelemetry tracer provider unless
// WithTracerProvider is given. Configure it in main() before serving.
func OpenTelemetry(opts ...OTelOption) fetch.Middleware {
	config := OTelConfig{
		TracerName:     defaultTracerName,
		IncludeLocator: true,
	}
	for _, opt := range opts {
		opt(&config)
	}

	tp := config.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	tracer := tp.Tracer(config.TracerName)

	return func(next fetch.Retriever) fetch.Retriever {
		return fetch.RetrieverFunc(func(ctx context.Context, locator string) ([]byte, error) {
			var attrs []attribute.KeyValue
			if config.IncludeLocator {
				attrs = append(attrs, attribute.String("fundsavy.locator", locator))
			}
			if config.AttributeExtractor != nil {
				attrs = append(attrs, config.AttributeExtractor(ctx, locator)...)
			}

			ctx, span := tracer.Start(ctx, "fundsavy.fetch",
				trace.WithSpanKind(trace.SpanKindClient),
				trace.WithAttributes(attrs...),
			)
			defer span.End()

			body, err := next.Retrieve(ctx, locator)
			if err != nil {
				var fe *fetch.Error
				if kind, ok := fetch.KindOf(err); ok {
					span.SetAttributes(attribute.String("fundsavy.error_kind", kind.String()))
				}
				if errors.As(err, &fe) && fe.StatusCode != 0 {
					span.SetAttributes(attribute.Int("http.response.status_code", fe.StatusCode))
				}
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return nil, err
			}

			span.SetAttributes(attribute.Int("fundsavy.body_bytes", len(body)))
			span.SetStatus(codes.Ok, "")
			return body, nil
		})
	}
}
