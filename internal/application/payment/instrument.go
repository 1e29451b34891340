package payment

import (
	"context"
	"time"

	"github.com/Zhima-Mochi/paylink/internal/observability"
	"github.com/Zhima-Mochi/paylink/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	paymentService = "payment-service"
	spanPrefix     = "UC."

	peerGateway     = "payment_gateway"
	peerObjectStore = "object_store"
	peerOutbox      = "outbox"
	peerCache       = "product_cache"

	outcomeSuccess  = "success"
	outcomeError    = "error"
	outcomeCanceled = "canceled"
)

// instruments holds the RED metrics and base logger shared by the payment use cases.
type instruments struct {
	log          observability.Logger
	tracer       observability.Tracer
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
	shortfall    observability.Counter   // inventory_shortfall_total{product_id}
}

func newInstruments(tel observability.Observability) *instruments {
	if tel == nil {
		tel = observability.Nop()
	}
	metrics := tel.Metrics()
	return &instruments{
		log:          tel.Logger().With(observability.F("service", paymentService)),
		tracer:       tel.Tracer(),
		reqCounter:   metrics.Counter(observability.MUsecaseRequests),
		durHistogram: metrics.Histogram(observability.MUsecaseDuration),
		extCounter:   metrics.Counter(observability.MExternalRequests),
		extHistogram: metrics.Histogram(observability.MExternalRequestDuration),
		shortfall:    metrics.Counter(observability.MInventoryShortfall),
	}
}

// run tracks a single use case execution from span start to the use_case_done log.
type run struct {
	in         *instruments
	useCase    string
	ctx        context.Context
	span       trace.Span
	logger     observability.Logger
	start      time.Time
	outcome    string
	statusText string
	fields     []observability.Field
}

func (in *instruments) begin(ctx context.Context, useCase, spanName string, fields []observability.Field, attrs ...attribute.KeyValue) (context.Context, *run) {
	logger := logctx.FromOr(ctx, in.log).With(
		append([]observability.Field{observability.F("use_case", useCase)}, fields...)...,
	)
	ctx, span := in.tracer.Start(ctx, spanPrefix+spanName,
		append([]attribute.KeyValue{attribute.String("use_case", useCase)}, attrs...)...,
	)
	ctx = logctx.With(ctx, logger)
	return ctx, &run{
		in:         in,
		useCase:    useCase,
		ctx:        ctx,
		span:       span,
		logger:     logger,
		start:      time.Now(),
		outcome:    outcomeSuccess,
		statusText: "OK",
	}
}

// fail marks the run as failed with a stable, low-cardinality status text.
func (r *run) fail(statusText string) {
	r.outcome, r.statusText = outcomeError, statusText
}

// status overrides the status text of a successful run.
func (r *run) status(statusText string) {
	r.statusText = statusText
}

func (r *run) note(fields ...observability.Field) {
	r.fields = append(r.fields, fields...)
}

func (r *run) event(name string, attrs ...attribute.KeyValue) {
	if r.span != nil {
		r.span.AddEvent(name, trace.WithAttributes(attrs...))
	}
}

func (r *run) end(err error) {
	if r.span != nil {
		if err != nil {
			r.span.RecordError(err)
			r.span.SetStatus(codes.Error, r.statusText)
		} else {
			r.span.SetStatus(codes.Ok, r.statusText)
		}
		r.span.End()
	}

	latency := time.Since(r.start).Seconds()
	r.in.reqCounter.Add(1,
		observability.L("use_case", r.useCase),
		observability.L("outcome", r.outcome),
	)
	r.in.durHistogram.Observe(latency,
		observability.L("use_case", r.useCase),
	)

	fields := append([]observability.Field{
		observability.F("outcome", r.outcome),
		observability.F("status", r.statusText),
		observability.F("latency_seconds", latency),
	}, r.fields...)
	if sc := trace.SpanContextFromContext(r.ctx); sc.IsValid() {
		fields = append(fields,
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}
	if err != nil {
		fields = append(fields, observability.F("error", err.Error()))
	}
	r.logger.Info("use_case_done", fields...)
}

// external records one call to a peer system.
func (in *instruments) external(ctx context.Context, peer, endpoint string, start time.Time, err error) {
	outcome := outcomeSuccess
	if err != nil {
		outcome = outcomeError
		if ctx.Err() != nil {
			outcome = outcomeCanceled
		}
	}
	in.extCounter.Add(1,
		observability.L("peer", peer),
		observability.L("endpoint", endpoint),
		observability.L("outcome", outcome),
	)
	in.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", peer),
		observability.L("endpoint", endpoint),
	)
}
