package vectorstore

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("ragdocs.vectorstore")

var (
	// OperationsTotal counts store operations.
	// Labels: provider, operation, result (success, error)
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragdocs",
			Subsystem: "vectorstore",
			Name:      "operations_total",
			Help:      "Total number of vector store operations",
		},
		[]string{"provider", "operation", "result"},
	)

	// OperationDuration tracks store operation latency.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragdocs",
			Subsystem: "vectorstore",
			Name:      "operation_duration_seconds",
			Help:      "Duration of vector store operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider", "operation"},
	)

	// ConnectsTotal counts connector attempts.
	// Labels: result (connected, unavailable, error)
	ConnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragdocs",
			Subsystem: "vectorstore",
			Name:      "connects_total",
			Help:      "Total number of store connection attempts by result",
		},
		[]string{"result"},
	)
)

// op is an in-flight store operation with a span and metrics.
type op struct {
	provider string
	name     string
	start    time.Time
	span     trace.Span
}

func startOp(ctx context.Context, provider, name string, attrs ...attribute.KeyValue) (context.Context, *op) {
	ctx, span := tracer.Start(ctx, provider+"."+name, trace.WithAttributes(attrs...))
	return ctx, &op{provider: provider, name: name, start: time.Now(), span: span}
}

// end records the outcome of the operation and returns err unchanged.
func (o *op) end(err error) error {
	result := "success"
	if err != nil {
		result = "error"
		o.span.RecordError(err)
		o.span.SetStatus(codes.Error, err.Error())
	} else {
		o.span.SetStatus(codes.Ok, "")
	}
	o.span.End()
	OperationsTotal.WithLabelValues(o.provider, o.name, result).Inc()
	OperationDuration.WithLabelValues(o.provider, o.name).Observe(time.Since(o.start).Seconds())
	return err
}
