package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/matheusmosca/vending-machine/vending"
)

// MemoryRepository keeps the ledger in process. A transaction holds the
// whole store lock until it commits or rolls back, which stands in for the
// row lock taken by GetSaleForUpdate in Postgres. Writes stay in the
// transaction and reach the store only on Commit.
type MemoryRepository struct {
	mu       sync.Mutex
	sales    map[string]Sale
	products []vending.Product
}

// NewMemoryRepository cria um repositório em memória com o catálogo informado
func NewMemoryRepository(products []vending.Product) *MemoryRepository {
	return &MemoryRepository{
		sales:    make(map[string]Sale),
		products: append([]vending.Product(nil), products...),
	}
}

type memoryTx struct {
	repo    *MemoryRepository
	pending map[string]Sale
	done    bool
}

func (t *memoryTx) Commit() error {
	if t.done {
		return errTxDone
	}
	for id, sale := range t.pending {
		t.repo.sales[id] = sale
	}
	t.release()
	return nil
}

func (t *memoryTx) Rollback() error {
	t.release()
	return nil
}

func (t *memoryTx) release() {
	if t.done {
		return
	}
	t.done = true
	t.pending = nil
	t.repo.mu.Unlock()
}

// lookup reads the transaction view: pending writes first, then the store
func (t *memoryTx) lookup(id string) (Sale, bool) {
	if sale, ok := t.pending[id]; ok {
		return sale, true
	}
	sale, ok := t.repo.sales[id]
	return sale, ok
}

var errTxDone = errors.New("transaction already committed or rolled back")

func (r *MemoryRepository) BeginTx(ctx context.Context) (Tx, error) {
	r.mu.Lock()
	return &memoryTx{repo: r, pending: make(map[string]Sale)}, nil
}

func (r *MemoryRepository) CreateSale(ctx context.Context, tx Tx, sale *Sale) error {
	mtx, err := r.openTx(tx)
	if err != nil {
		return err
	}
	if _, exists := mtx.lookup(sale.ID); exists {
		return fmt.Errorf("failed to insert sale: duplicated id %s", sale.ID)
	}
	mtx.pending[sale.ID] = cloneSale(sale)
	return nil
}

func (r *MemoryRepository) GetSale(ctx context.Context, id string) (*Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sale, ok := r.sales[id]
	if !ok {
		return nil, ErrSaleNotFound
	}
	out := cloneSale(&sale)
	return &out, nil
}

func (r *MemoryRepository) GetSaleForUpdate(ctx context.Context, tx Tx, id string) (*Sale, error) {
	mtx, err := r.openTx(tx)
	if err != nil {
		return nil, err
	}
	sale, ok := mtx.lookup(id)
	if !ok {
		return nil, ErrSaleNotFound
	}
	out := cloneSale(&sale)
	return &out, nil
}

func (r *MemoryRepository) UpdateSale(ctx context.Context, tx Tx, sale *Sale) error {
	mtx, err := r.openTx(tx)
	if err != nil {
		return err
	}
	if _, exists := mtx.lookup(sale.ID); !exists {
		return fmt.Errorf("%w: %s", ErrSaleNotFound, sale.ID)
	}
	mtx.pending[sale.ID] = cloneSale(sale)
	return nil
}

func (r *MemoryRepository) ListProducts(ctx context.Context) ([]vending.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]vending.Product(nil), r.products...), nil
}

func (r *MemoryRepository) openTx(tx Tx) (*memoryTx, error) {
	mtx, ok := tx.(*memoryTx)
	if !ok || mtx.repo != r {
		return nil, fmt.Errorf("memory repository: foreign transaction %T", tx)
	}
	if mtx.done {
		return nil, errTxDone
	}
	return mtx, nil
}

func cloneSale(s *Sale) Sale {
	out := *s
	out.Paid = append([]int(nil), s.Paid...)
	out.Change = s.Change.Clone()
	return out
}
