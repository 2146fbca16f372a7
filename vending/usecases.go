package vending

import (
	"fmt"
	"sync"
)

// ProductLookup resolves a product selection
type ProductLookup interface {
	Lookup(id int) (Product, error)
}

type productLister interface {
	Products() []Product
}

// Machine is the transaction engine. It owns the inventory and runs every
// purchase as one unit of work under its lock.
type Machine struct {
	mu        sync.Mutex
	catalog   ProductLookup
	inventory *Inventory
}

// NewMachine creates a machine selling from catalog and making change from inventory
func NewMachine(catalog ProductLookup, inventory *Inventory) *Machine {
	return &Machine{
		catalog:   catalog,
		inventory: inventory,
	}
}

// Purchase sells productID against the coin batch.
//
// Checks run in order and the first failure is returned: coin validity,
// product existence, sufficient payment and change feasibility. Change
// feasibility is judged on the inventory as it was before the batch is
// added. Nothing is mutated unless every check passes.
func (m *Machine) Purchase(productID int, coins []int) (Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	batch, err := ParseCoins(coins)
	if err != nil {
		return Receipt{}, err
	}

	product, err := m.catalog.Lookup(productID)
	if err != nil {
		return Receipt{}, err
	}

	paid := CountCoins(batch).Total()
	if paid < product.Price {
		return Receipt{}, fmt.Errorf("%w: paid %d, price %d", ErrInsufficientMoney, paid, product.Price)
	}

	due := paid - product.Price
	if !m.inventory.CanDispense(due) {
		return Receipt{}, fmt.Errorf("%w: cannot return %d", ErrInsufficientChange, due)
	}

	// The paid coins join the inventory before change is taken, so the
	// breakdown may differ from the one simulated above.
	m.inventory.DepositBatch(batch)
	change, err := m.inventory.Dispense(due)
	if err != nil {
		if werr := m.inventory.Withdraw(CountCoins(batch)); werr != nil {
			return Receipt{}, fmt.Errorf("%w: returning paid coins failed: %w", err, werr)
		}
		return Receipt{}, err
	}

	return Receipt{
		Product: product,
		Paid:    batch,
		Change:  change,
	}, nil
}

// DepositBatch loads coins into the machine without a sale
func (m *Machine) DepositBatch(coins []int) error {
	batch, err := ParseCoins(coins)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.inventory.DepositBatch(batch)
	return nil
}

// Refund reverses a committed receipt: the paid coins leave the machine and
// the change comes back. It fails without touching the inventory when the
// paid coins were handed out since.
func (m *Machine) Refund(r Receipt) error {
	paid, err := checkReceipt(r)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.inventory.exchange(r.Change, paid); err != nil {
		return fmt.Errorf("%w: %w", ErrRefundUnavailable, err)
	}
	return nil
}

// Reapply commits a refunded receipt again, taking back the exact change
func (m *Machine) Reapply(r Receipt) error {
	paid, err := checkReceipt(r)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.inventory.exchange(paid, r.Change); err != nil {
		return fmt.Errorf("%w: %w", ErrInsufficientChange, err)
	}
	return nil
}

// Inventory returns a snapshot of the coins held
func (m *Machine) Inventory() Coins {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.inventory.Snapshot()
}

// Products lists the catalog when it can be listed
func (m *Machine) Products() []Product {
	if l, ok := m.catalog.(productLister); ok {
		return l.Products()
	}
	return nil
}

func checkReceipt(r Receipt) (Coins, error) {
	for d := range r.Change {
		if !d.Valid() {
			return nil, &InvalidCoinError{Value: int(d)}
		}
	}
	for _, d := range r.Paid {
		if !d.Valid() {
			return nil, &InvalidCoinError{Value: int(d)}
		}
	}

	paid := CountCoins(r.Paid)
	if paid.Total()-r.Product.Price != r.Change.Total() {
		return nil, fmt.Errorf("%w: receipt for product %d does not balance", ErrRefundUnavailable, r.Product.ID)
	}
	return paid, nil
}
