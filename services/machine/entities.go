package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/matheusmosca/vending-machine/vending"
)

var (
	ErrSaleNotFound      = errors.New("sale not found")
	ErrInvalidTransition = errors.New("invalid sale status transition")
)

// SaleStatus representa os possíveis status de uma venda
const (
	SaleStatusPending   = "pending"
	SaleStatusDispensed = "dispensed"
	SaleStatusCompleted = "completed"
	SaleStatusRefunded  = "refunded"
	SaleStatusRejected  = "rejected"
)

// Sale is one ledger entry for a purchase attempt
type Sale struct {
	ID          string        `json:"id" db:"id"`
	ProductID   int           `json:"product_id" db:"product_id"`
	ProductName string        `json:"product_name" db:"product_name"`
	Price       int           `json:"price" db:"price"`
	Paid        []int         `json:"paid" db:"paid"`
	Change      vending.Coins `json:"change" db:"change"`
	Status      string        `json:"status" db:"status"`
	Reason      string        `json:"reason,omitempty" db:"reason"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at" db:"updated_at"`
}

// NewSale cria uma nova venda pendente
func NewSale(id string, productID int, paid []int) *Sale {
	now := time.Now()
	return &Sale{
		ID:        id,
		ProductID: productID,
		Paid:      append([]int(nil), paid...),
		Change:    vending.NewCoins(),
		Status:    SaleStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Dispense records the receipt of a committed purchase
func (s *Sale) Dispense(r vending.Receipt) error {
	if s.Status != SaleStatusPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, SaleStatusDispensed)
	}

	s.ProductName = r.Product.Name
	s.Price = r.Product.Price
	s.Change = r.Change.Clone()
	s.Reason = ""
	s.moveTo(SaleStatusDispensed)
	return nil
}

func (s *Sale) Complete() error {
	if s.Status != SaleStatusDispensed {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, SaleStatusCompleted)
	}
	s.moveTo(SaleStatusCompleted)
	return nil
}

func (s *Sale) Refund() error {
	if s.Status != SaleStatusDispensed {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, SaleStatusRefunded)
	}
	s.moveTo(SaleStatusRefunded)
	return nil
}

// Reject closes a sale that never dispensed or was refunded.
// An empty reason keeps the one already recorded.
func (s *Sale) Reject(reason string) error {
	if s.Status != SaleStatusPending && s.Status != SaleStatusRefunded {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, SaleStatusRejected)
	}
	if reason != "" {
		s.Reason = reason
	}
	s.moveTo(SaleStatusRejected)
	return nil
}

// Receipt rebuilds the engine receipt of a dispensed sale
func (s *Sale) Receipt() (vending.Receipt, error) {
	paid, err := vending.ParseCoins(s.Paid)
	if err != nil {
		return vending.Receipt{}, err
	}
	return vending.Receipt{
		Product: vending.Product{ID: s.ProductID, Name: s.ProductName, Price: s.Price},
		Paid:    paid,
		Change:  s.Change.Clone(),
	}, nil
}

func (s *Sale) moveTo(status string) {
	s.Status = status
	s.UpdatedAt = time.Now()
}

// PurchaseRequest representa a requisição de compra
type PurchaseRequest struct {
	ProductID int   `json:"product_id"`
	Coins     []int `json:"coins"`
}

// DepositRequest loads coins into the machine
type DepositRequest struct {
	Coins []int `json:"coins" binding:"required"`
}

// SagaActionRequest representa a requisição para ações da SAGA
type SagaActionRequest struct {
	OrderID   string `json:"order_id" binding:"required"`
	ProductID int    `json:"product_id"`
	Coins     []int  `json:"coins"`
	// Manual trace context propagation (DTM doesn't propagate W3C headers)
	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`
}

// PurchaseResponse is returned for a committed purchase
type PurchaseResponse struct {
	OrderID     string          `json:"order_id"`
	Product     vending.Product `json:"product"`
	PaidTotal   int             `json:"paid_total"`
	Change      vending.Coins   `json:"change"`
	ChangeTotal int             `json:"change_total"`
}

func newPurchaseResponse(sale *Sale) PurchaseResponse {
	paid := 0
	for _, c := range sale.Paid {
		paid += c
	}
	return PurchaseResponse{
		OrderID:     sale.ID,
		Product:     vending.Product{ID: sale.ProductID, Name: sale.ProductName, Price: sale.Price},
		PaidTotal:   paid,
		Change:      sale.Change,
		ChangeTotal: sale.Change.Total(),
	}
}
