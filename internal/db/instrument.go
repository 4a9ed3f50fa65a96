package db

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/thebtf/placefeed/internal/db"

// Query timeout constants.
const (
	// DefaultQueryTimeout bounds a single store round-trip.
	DefaultQueryTimeout = 5 * time.Second
	// SlowQueryThreshold is the latency above which a query is logged as slow.
	SlowQueryThreshold = 100 * time.Millisecond
)

// Instrumented bounds every query with a timeout and reports it as a span,
// a latency histogram sample and, when slow, a log line.
type Instrumented struct {
	next     Client
	tracer   trace.Tracer
	duration metric.Float64Histogram
	failures metric.Int64Counter
	timeout  time.Duration
}

// Instrument wraps next. A zero timeout uses DefaultQueryTimeout.
func Instrument(next Client, timeout time.Duration) *Instrumented {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}

	meter := otel.Meter(instrumentationName)
	duration, err := meter.Float64Histogram("db.client.query.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Duration of store queries"))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create query duration histogram")
	}
	failures, err := meter.Int64Counter("db.client.query.failures",
		metric.WithDescription("Store queries that returned an error"))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create query failure counter")
	}

	return &Instrumented{
		next:     next,
		tracer:   otel.Tracer(instrumentationName),
		duration: duration,
		failures: failures,
		timeout:  timeout,
	}
}

// Select runs q with a timeout inside a client span.
func (c *Instrumented) Select(ctx context.Context, q Query, dest any) error {
	ctx, span := c.tracer.Start(ctx, "db.select "+q.Table,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.collection.name", q.Table),
			attribute.Int("db.query.limit", q.Limit),
		))
	defer span.End()

	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := c.next.Select(timeoutCtx, q, dest)
	elapsed := time.Since(start)

	attrs := metric.WithAttributes(attribute.String("db.collection.name", q.Table))
	if c.duration != nil {
		c.duration.Record(ctx, elapsed.Seconds(), attrs)
	}

	if err != nil {
		if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) && !IsUnavailable(err) {
			err = Unavailable(err)
		}
		if c.failures != nil {
			c.failures.Add(ctx, 1, attrs)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	if elapsed > SlowQueryThreshold {
		log.Warn().
			Str("query", q.String()).
			Dur("elapsed", elapsed).
			Dur("timeout", c.timeout).
			Msg("Slow store query")
	} else {
		log.Debug().Str("query", q.String()).Dur("elapsed", elapsed).Msg("Store query")
	}

	return err
}

// Ping checks the store with the same timeout.
func (c *Instrumented) Ping(ctx context.Context) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.next.Ping(timeoutCtx)
}
