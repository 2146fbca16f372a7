package main

import (
	"context"
	"fmt"

	"github.com/dtm-labs/client/dtmcli"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// SagaOrchestrator abstrai as operações SAGA do DTM
type SagaOrchestrator interface {
	PurchaseSaga(ctx context.Context, req PurchaseRequest) (string, string, error)
}

// DTMSagaOrchestrator implementa SagaOrchestrator usando DTM
type DTMSagaOrchestrator struct {
	dtmServer  string
	serviceURL string
	logger     *zap.SugaredLogger
}

// NewDTMSagaOrchestrator cria uma nova instância do orquestrador SAGA
func NewDTMSagaOrchestrator(cfg Config, logger *zap.SugaredLogger) *DTMSagaOrchestrator {
	return &DTMSagaOrchestrator{
		dtmServer:  cfg.DTMServer,
		serviceURL: cfg.ServiceURL,
		logger:     logger,
	}
}

// PurchaseSaga submits a saga of three branches: the pending sale, the coin
// dispense (compensated by a refund) and the sale completion.
func (so *DTMSagaOrchestrator) PurchaseSaga(ctx context.Context, req PurchaseRequest) (orderID string, gid string, err error) {
	orderID = uuid.New().String()
	span := trace.SpanFromContext(ctx)

	var traceID, spanID string
	if span.SpanContext().IsValid() {
		traceID = span.SpanContext().TraceID().String()
		spanID = span.SpanContext().SpanID().String()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dtm unavailable: %v", r)
			span.RecordError(err)
			span.SetStatus(codes.Error, "panic in MustGenGid due to unavailable dtm")
		}
	}()
	gid = dtmcli.MustGenGid(so.dtmServer)

	span.SetAttributes(
		attribute.String("saga.gid", gid),
		attribute.String("saga.order_id", orderID),
	)
	so.logger.Infof("🚀 Starting SAGA | TraceID: %s | GID: %s | OrderID: %s", traceID, gid, orderID)

	payload := &SagaActionRequest{
		OrderID:   orderID,
		ProductID: req.ProductID,
		Coins:     req.Coins,
		TraceID:   traceID,
		SpanID:    spanID,
	}

	saga := dtmcli.NewSaga(so.dtmServer, gid).
		Add(so.serviceURL+"/api/sales/create", so.serviceURL+"/api/sales/compensate", payload).
		Add(so.serviceURL+"/api/machine/dispense", so.serviceURL+"/api/machine/refund", payload).
		Add(so.serviceURL+"/api/sales/complete", "", payload)

	if err := saga.Submit(); err != nil {
		so.logger.Errorf("❌ SAGA failed: %v", err)
		return orderID, gid, fmt.Errorf("failed to submit purchase saga: %w", err)
	}

	so.logger.Infof("✅ SAGA submitted successfully - GID: %s, OrderID: %s", gid, orderID)
	return orderID, gid, nil
}
