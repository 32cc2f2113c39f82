package observability

import (
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// httpStatusServerError is the lowest status marking the span as failed.
// 4xx answers such as a missing ref are expected lookups.
const httpStatusServerError = 500

// Transport is an [http.RoundTripper] that creates a client span per request
// and propagates the trace context in the outgoing headers.
type Transport struct {
	base   http.RoundTripper
	tracer trace.Tracer
}

// NewTransport wraps base. A nil base uses [http.DefaultTransport].
func NewTransport(base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}

	return &Transport{base: base, tracer: otel.Tracer(tracerName)}
}

// NewHTTPClient returns an *http.Client using a Transport over the default transport.
func NewHTTPClient() *http.Client {
	return &http.Client{Transport: NewTransport(nil)}
}

// RoundTrip implements [http.RoundTripper].
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx, span := t.tracer.Start(req.Context(), req.Method+" "+req.URL.Path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.HTTPRequestMethodKey.String(req.Method),
			attribute.String("server.address", req.URL.Host),
		),
	)
	defer span.End()

	out := req.Clone(ctx)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(out.Header))

	resp, err := t.base.RoundTrip(out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return nil, fmt.Errorf("round trip %s %s: %w", req.Method, req.URL.Path, err)
	}

	span.SetAttributes(semconv.HTTPResponseStatusCode(resp.StatusCode))

	if resp.StatusCode >= httpStatusServerError {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
	}

	return resp, nil
}
