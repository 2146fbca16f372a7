package main

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/matheusmosca/vending-machine/vending"
)

const (
	modeDirect = "direct"
	modeSaga   = "saga"

	outcomeSuccess = "success"
	outcomeError   = "error"
)

// Metrics agrupa os instrumentos OTel da máquina
type Metrics struct {
	purchases   metric.Int64Counter
	changeCoins metric.Int64Counter
	deposits    metric.Int64Counter
	refunds     metric.Int64Counter
}

// NewMetrics registers the machine instruments on meter. The inventory gauge
// reads the machine on every collection.
func NewMetrics(meter metric.Meter, machine *vending.Machine) (*Metrics, error) {
	purchases, err := meter.Int64Counter("vending.purchases",
		metric.WithDescription("Purchase attempts by mode and outcome"))
	if err != nil {
		return nil, err
	}

	changeCoins, err := meter.Int64Counter("vending.change.coins",
		metric.WithDescription("Coins handed back as change"))
	if err != nil {
		return nil, err
	}

	deposits, err := meter.Int64Counter("vending.deposits",
		metric.WithDescription("Coins loaded without a sale"))
	if err != nil {
		return nil, err
	}

	refunds, err := meter.Int64Counter("vending.refunds",
		metric.WithDescription("Receipts reversed by saga compensation"))
	if err != nil {
		return nil, err
	}

	_, err = meter.Int64ObservableGauge("vending.inventory.coins",
		metric.WithDescription("Coins held by the machine"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			for d, n := range machine.Inventory() {
				o.Observe(int64(n), metric.WithAttributes(denominationAttr(d)))
			}
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		purchases:   purchases,
		changeCoins: changeCoins,
		deposits:    deposits,
		refunds:     refunds,
	}, nil
}

func (m *Metrics) RecordPurchase(ctx context.Context, mode, outcome string) {
	m.purchases.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) RecordChange(ctx context.Context, change vending.Coins) {
	for d, n := range change {
		if n > 0 {
			m.changeCoins.Add(ctx, int64(n), metric.WithAttributes(denominationAttr(d)))
		}
	}
}

func (m *Metrics) RecordDeposit(ctx context.Context, coins int) {
	m.deposits.Add(ctx, int64(coins))
}

func (m *Metrics) RecordRefund(ctx context.Context) {
	m.refunds.Add(ctx, 1)
}

func denominationAttr(d vending.Denomination) attribute.KeyValue {
	return attribute.String("denomination", strconv.Itoa(int(d)))
}

// outcomeOf returns the rejection reason, or a generic outcome
func outcomeOf(err error) string {
	if err == nil {
		return outcomeSuccess
	}
	if reason := vending.Reason(err); reason != "" {
		return reason
	}
	return outcomeError
}

// startSpanFromPayload creates a child span linked to the propagated trace context
func startSpanFromPayload(ctx context.Context, operationName string, req SagaActionRequest) (context.Context, trace.Span) {
	if req.TraceID != "" && req.SpanID != "" {
		parsedTraceID, _ := trace.TraceIDFromHex(req.TraceID)
		parsedSpanID, _ := trace.SpanIDFromHex(req.SpanID)

		spanContext := trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    parsedTraceID,
			SpanID:     parsedSpanID,
			TraceFlags: trace.FlagsSampled,
			Remote:     true,
		})

		ctx = trace.ContextWithSpanContext(ctx, spanContext)
	}

	return otel.Tracer(tracerName).Start(ctx, operationName)
}

// getOrStartSpanFromPayload garante que sempre retorna um span filho do tracing atual (ou cria um novo se não houver)
func getOrStartSpanFromPayload(ctx context.Context, operationName string, req SagaActionRequest) (context.Context, trace.Span) {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return startSpanFromPayload(ctx, operationName, req)
	}
	return otel.Tracer(tracerName).Start(ctx, operationName)
}
