package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/matheusmosca/vending-machine/vending"
)

// MachineUseCase contém a lógica de negócio da máquina: o motor de
// transações, o ledger de vendas e as ações da SAGA
type MachineUseCase struct {
	machine          *vending.Machine
	repository       Repository
	sagaOrchestrator SagaOrchestrator
	metrics          *Metrics
	tracer           trace.Tracer
	logger           *zap.SugaredLogger
}

// NewMachineUseCase cria uma nova instância de MachineUseCase
func NewMachineUseCase(
	machine *vending.Machine,
	repository Repository,
	sagaOrchestrator SagaOrchestrator,
	metrics *Metrics,
	tracer trace.Tracer,
	logger *zap.SugaredLogger,
) *MachineUseCase {
	return &MachineUseCase{
		machine:          machine,
		repository:       repository,
		sagaOrchestrator: sagaOrchestrator,
		metrics:          metrics,
		tracer:           tracer,
		logger:           logger,
	}
}

func (uc *MachineUseCase) Products(ctx context.Context) []vending.Product {
	return uc.machine.Products()
}

func (uc *MachineUseCase) Inventory(ctx context.Context) vending.Coins {
	return uc.machine.Inventory()
}

// Deposit carrega moedas na máquina sem venda
func (uc *MachineUseCase) Deposit(ctx context.Context, coins []int) (vending.Coins, error) {
	ctx, span := uc.tracer.Start(ctx, "machine.deposit")
	defer span.End()

	span.SetAttributes(attribute.Int("coins", len(coins)))

	if err := uc.machine.DepositBatch(coins); err != nil {
		span.RecordError(err)
		uc.logger.Infof("ℹ️ [DEPOSIT] Rejected: %v", err)
		return nil, err
	}

	uc.metrics.RecordDeposit(ctx, len(coins))
	uc.logger.Infof("✅ [DEPOSIT] Success: %d coins", len(coins))
	return uc.machine.Inventory(), nil
}

// Purchase runs a purchase outside any saga and records it as a completed
// sale. A ledger failure refunds the receipt so inventory and ledger agree.
func (uc *MachineUseCase) Purchase(ctx context.Context, req PurchaseRequest) (*Sale, error) {
	ctx, span := uc.tracer.Start(ctx, "machine.purchase")
	defer span.End()

	orderID := uuid.New().String()
	span.SetAttributes(
		attribute.String("order_id", orderID),
		attribute.Int("product_id", req.ProductID),
	)
	uc.logger.Infof("➡️ [PURCHASE] OrderID: %s | ProductID: %d | Coins: %v", orderID, req.ProductID, req.Coins)

	sale := NewSale(orderID, req.ProductID, req.Coins)

	receipt, err := uc.machine.Purchase(req.ProductID, req.Coins)
	uc.metrics.RecordPurchase(ctx, modeDirect, outcomeOf(err))
	if err != nil {
		span.RecordError(err)
		uc.logger.Infof("ℹ️ [PURCHASE] Rejected: OrderID=%s | %v", orderID, err)
		if reason := vending.Reason(err); reason != "" {
			_ = sale.Reject(reason)
			if saveErr := uc.saveSale(ctx, sale); saveErr != nil {
				uc.logger.Errorf("❌ [PURCHASE] Failed to record rejected sale: OrderID=%s | %v", orderID, saveErr)
			}
		}
		return nil, err
	}

	_ = sale.Dispense(receipt)
	_ = sale.Complete()

	if err := uc.saveSale(ctx, sale); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to record sale")
		uc.logger.Errorf("❌ [PURCHASE] Failed to record sale: OrderID=%s | %v", orderID, err)
		if refundErr := uc.machine.Refund(receipt); refundErr != nil {
			uc.logger.Errorf("❌ [PURCHASE] Failed to refund unrecorded sale: OrderID=%s | %v", orderID, refundErr)
		}
		return nil, fmt.Errorf("failed to record sale: %w", err)
	}

	uc.metrics.RecordChange(ctx, receipt.Change)
	uc.logger.Infof("✅ [PURCHASE] Success: OrderID=%s | Change: %d", orderID, receipt.ChangeTotal())
	return sale, nil
}

// StartPurchaseSaga orquestra a compra como uma SAGA do DTM
func (uc *MachineUseCase) StartPurchaseSaga(ctx context.Context, req PurchaseRequest) (string, string, error) {
	orderID, gid, err := uc.sagaOrchestrator.PurchaseSaga(ctx, req)
	if err != nil {
		return "", "", fmt.Errorf("starting purchase saga: %w", err)
	}
	return orderID, gid, nil
}

func (uc *MachineUseCase) GetSale(ctx context.Context, id string) (*Sale, error) {
	return uc.repository.GetSale(ctx, id)
}

// CreateSale é a ação SAGA que registra a venda pendente
func (uc *MachineUseCase) CreateSale(ctx context.Context, req SagaActionRequest) error {
	uc.logger.Infof("➡️ [CREATE SALE] TraceID: %s | OrderID: %s", req.TraceID, req.OrderID)

	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = uc.repository.GetSaleForUpdate(ctx, tx, req.OrderID)
	switch {
	case err == nil:
		uc.logger.Infof("ℹ️ [IDEMPOTENCY] Sale already created for OrderID=%s", req.OrderID)
		return nil
	case !errors.Is(err, ErrSaleNotFound):
		return err
	}

	if err := uc.repository.CreateSale(ctx, tx, NewSale(req.OrderID, req.ProductID, req.Coins)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sale creation: %w", err)
	}

	uc.logger.Infof("✅ [CREATE SALE] Success: OrderID=%s", req.OrderID)
	return nil
}

// DispenseSale runs the engine purchase for a pending sale. A rejection is
// recorded on the sale and returned so the saga rolls back.
func (uc *MachineUseCase) DispenseSale(ctx context.Context, req SagaActionRequest) error {
	uc.logger.Infof("➡️ [DISPENSE] TraceID: %s | OrderID: %s", req.TraceID, req.OrderID)

	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sale, err := uc.repository.GetSaleForUpdate(ctx, tx, req.OrderID)
	if err != nil {
		uc.logger.Errorf("❌ DISPENSE FAILED: GetSaleForUpdate | OrderID=%s | Error=%v", req.OrderID, err)
		return err
	}

	if sale.Status != SaleStatusPending {
		uc.logger.Infof("ℹ️ [IDEMPOTENCY] Sale %s already %s", req.OrderID, sale.Status)
		return nil
	}

	receipt, err := uc.machine.Purchase(sale.ProductID, sale.Paid)
	uc.metrics.RecordPurchase(ctx, modeSaga, outcomeOf(err))
	if err != nil {
		uc.logger.Infof("ℹ️ [DISPENSE] Rejected: OrderID=%s | %v", req.OrderID, err)
		sale.Reason = vending.Reason(err)
		if updateErr := uc.repository.UpdateSale(ctx, tx, sale); updateErr != nil {
			uc.logger.Errorf("❌ [DISPENSE] Failed to record rejection: OrderID=%s | %v", req.OrderID, updateErr)
			return err
		}
		if commitErr := tx.Commit(); commitErr != nil {
			uc.logger.Errorf("❌ [DISPENSE] Failed to commit rejection: OrderID=%s | %v", req.OrderID, commitErr)
		}
		return err
	}

	_ = sale.Dispense(receipt)
	if err := uc.repository.UpdateSale(ctx, tx, sale); err != nil {
		uc.refundUnrecorded(req.OrderID, receipt)
		return err
	}

	if err := tx.Commit(); err != nil {
		uc.refundUnrecorded(req.OrderID, receipt)
		return fmt.Errorf("failed to commit dispense: %w", err)
	}

	uc.metrics.RecordChange(ctx, receipt.Change)
	uc.logger.Infof("✅ [DISPENSE] Success: OrderID=%s | Change: %d", req.OrderID, receipt.ChangeTotal())
	return nil
}

// RefundSale é a compensação da ação de dispensa: devolve as moedas pagas
// e recolhe o troco, com idempotência e lock pessimista.
// O ledger só é alterado depois que o estoque aceitou o estorno.
func (uc *MachineUseCase) RefundSale(ctx context.Context, req SagaActionRequest) error {
	uc.logger.Infof("↩️ [REFUND] TraceID: %s | OrderID: %s", req.TraceID, req.OrderID)

	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sale, err := uc.repository.GetSaleForUpdate(ctx, tx, req.OrderID)
	if errors.Is(err, ErrSaleNotFound) {
		uc.logger.Infof("ℹ️ [REFUND] Nothing to refund for OrderID=%s", req.OrderID)
		return nil
	}
	if err != nil {
		return err
	}

	if sale.Status != SaleStatusDispensed {
		uc.logger.Infof("ℹ️ [IDEMPOTENCY] Sale %s is %s, nothing to refund", req.OrderID, sale.Status)
		return nil
	}

	receipt, err := sale.Receipt()
	if err != nil {
		return fmt.Errorf("failed to rebuild receipt: %w", err)
	}

	if err := uc.machine.Refund(receipt); err != nil {
		uc.logger.Errorf("❌ [REFUND] OrderID=%s | %v", req.OrderID, err)
		return err
	}

	_ = sale.Refund()
	if err := uc.repository.UpdateSale(ctx, tx, sale); err != nil {
		uc.reapplyUnrecorded(req.OrderID, receipt)
		return err
	}

	if err := tx.Commit(); err != nil {
		uc.reapplyUnrecorded(req.OrderID, receipt)
		return fmt.Errorf("failed to commit refund: %w", err)
	}

	uc.metrics.RecordRefund(ctx)
	uc.logger.Infof("✅ [REFUND] Success: OrderID=%s", req.OrderID)
	return nil
}

// CompleteSale marca a venda como concluída
func (uc *MachineUseCase) CompleteSale(ctx context.Context, req SagaActionRequest) error {
	uc.logger.Infof("✅ [COMPLETE SALE] OrderID: %s", req.OrderID)

	return uc.transition(ctx, req.OrderID, func(sale *Sale) (bool, error) {
		if sale.Status == SaleStatusCompleted {
			return false, nil
		}
		return true, sale.Complete()
	})
}

// CompensateSale marca a venda como rejeitada (compensação)
func (uc *MachineUseCase) CompensateSale(ctx context.Context, req SagaActionRequest) error {
	uc.logger.Infof("↩️ [COMPENSATE SALE] OrderID: %s", req.OrderID)

	err := uc.transition(ctx, req.OrderID, func(sale *Sale) (bool, error) {
		if sale.Status == SaleStatusRejected {
			return false, nil
		}
		return true, sale.Reject("")
	})
	if errors.Is(err, ErrSaleNotFound) {
		return nil
	}
	return err
}

// transition applies change to the locked sale and persists it when change
// reports a modification
func (uc *MachineUseCase) transition(ctx context.Context, orderID string, change func(*Sale) (bool, error)) error {
	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sale, err := uc.repository.GetSaleForUpdate(ctx, tx, orderID)
	if err != nil {
		return err
	}

	changed, err := change(sale)
	if err != nil || !changed {
		return err
	}

	if err := uc.repository.UpdateSale(ctx, tx, sale); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sale %s: %w", orderID, err)
	}
	return nil
}

func (uc *MachineUseCase) saveSale(ctx context.Context, sale *Sale) error {
	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := uc.repository.CreateSale(ctx, tx, sale); err != nil {
		return err
	}
	return tx.Commit()
}

func (uc *MachineUseCase) refundUnrecorded(orderID string, receipt vending.Receipt) {
	if err := uc.machine.Refund(receipt); err != nil {
		uc.logger.Errorf("❌ [DISPENSE] Failed to refund unrecorded sale: OrderID=%s | %v", orderID, err)
	}
}

func (uc *MachineUseCase) reapplyUnrecorded(orderID string, receipt vending.Receipt) {
	if err := uc.machine.Reapply(receipt); err != nil {
		uc.logger.Errorf("❌ [REFUND] Inventory and ledger diverged for OrderID=%s: %v", orderID, err)
	}
}
