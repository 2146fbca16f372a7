package main

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/matheusmosca/vending-machine/vending"
)

// MockRepository para testes que não precisam de banco real
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) BeginTx(ctx context.Context) (Tx, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(Tx), args.Error(1)
}

func (m *MockRepository) CreateSale(ctx context.Context, tx Tx, sale *Sale) error {
	args := m.Called(ctx, tx, sale)
	return args.Error(0)
}

func (m *MockRepository) GetSale(ctx context.Context, id string) (*Sale, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Sale), args.Error(1)
}

func (m *MockRepository) GetSaleForUpdate(ctx context.Context, tx Tx, id string) (*Sale, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Sale), args.Error(1)
}

func (m *MockRepository) UpdateSale(ctx context.Context, tx Tx, sale *Sale) error {
	args := m.Called(ctx, tx, sale)
	return args.Error(0)
}

func (m *MockRepository) ListProducts(ctx context.Context) ([]vending.Product, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]vending.Product), args.Error(1)
}

// MockTx simula uma transação
type MockTx struct {
	mock.Mock
}

func (m *MockTx) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockTx) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

func TestNewPostgresRepository(t *testing.T) {
	repo := NewPostgresRepository(nil)

	assert.NotNil(t, repo)
	assert.IsType(t, &PostgresRepository{}, repo)
}

func TestInsertSaleSQL(t *testing.T) {
	sale := NewSale("order-1", 1, []int{50, 50, 10})

	query, args, err := insertSaleSQL(sale)

	require.NoError(t, err)
	assert.Contains(t, query, `INSERT INTO "sales"`)
	assert.Contains(t, query, `"paid"`)
	assert.Contains(t, query, `"change"`)
	assert.Contains(t, query, "$10")
	assert.Len(t, args, 10)
	assert.Contains(t, args, "order-1")
	assert.Contains(t, args, "[50,50,10]")
}

func TestSelectSaleSQL(t *testing.T) {
	tests := []struct {
		name      string
		forUpdate bool
	}{
		{name: "plain read", forUpdate: false},
		{name: "locking read", forUpdate: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args, err := selectSaleSQL("order-1", tt.forUpdate)

			require.NoError(t, err)
			assert.Contains(t, query, `FROM "sales"`)
			assert.Contains(t, query, `"id" = $1`)
			assert.Equal(t, tt.forUpdate, strings.Contains(query, "FOR UPDATE"))
			assert.Equal(t, []interface{}{"order-1"}, args)
		})
	}
}

func TestUpdateSaleSQL(t *testing.T) {
	sale := NewSale("order-1", 1, []int{50, 50, 10})
	sale.Status = SaleStatusRejected
	sale.Reason = "insufficient_change"

	query, args, err := updateSaleSQL(sale)

	require.NoError(t, err)
	assert.Contains(t, query, `UPDATE "sales" SET`)
	assert.Contains(t, query, `"status"`)
	assert.NotContains(t, query, `"paid"`)
	assert.Len(t, args, 7)
	assert.Contains(t, args, SaleStatusRejected)
	assert.Contains(t, args, "insufficient_change")
	assert.Equal(t, "order-1", args[len(args)-1])
}

func TestSelectProductsSQL(t *testing.T) {
	query, args, err := selectProductsSQL()

	require.NoError(t, err)
	assert.Contains(t, query, `FROM "products"`)
	assert.Contains(t, query, `ORDER BY "id" ASC`)
	assert.Empty(t, args)
}

func TestEncodeDecodeCoins(t *testing.T) {
	sale := NewSale("order-1", 1, []int{200, 10})
	sale.Change[vending.Coin100] = 1
	sale.Change[vending.Coin5] = 2

	paid, change, err := encodeCoins(sale)
	require.NoError(t, err)
	assert.Equal(t, "[200,10]", paid)
	assert.Contains(t, change, `{"denomination":100,"count":1}`)

	var decoded Sale
	require.NoError(t, decodeCoins(&decoded, []byte(paid), []byte(change)))

	assert.Equal(t, sale.Paid, decoded.Paid)
	assert.Equal(t, sale.Change, decoded.Change)
}

func TestDecodeCoins_Invalid(t *testing.T) {
	var sale Sale

	assert.Error(t, decodeCoins(&sale, []byte("{"), []byte("[]")))
	assert.Error(t, decodeCoins(&sale, []byte("[]"), []byte("nope")))
}

func TestMemoryRepository_SaleLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository(vending.DefaultProducts())

	tx, err := repo.BeginTx(ctx)
	require.NoError(t, err)
	sale := NewSale("order-1", 1, []int{100})
	require.NoError(t, repo.CreateSale(ctx, tx, sale))
	assert.Error(t, repo.CreateSale(ctx, tx, sale))
	require.NoError(t, tx.Commit())
	require.NoError(t, tx.Rollback())

	stored, err := repo.GetSale(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, SaleStatusPending, stored.Status)

	stored.Paid[0] = 5
	again, err := repo.GetSale(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, []int{100}, again.Paid)

	tx, err = repo.BeginTx(ctx)
	require.NoError(t, err)
	locked, err := repo.GetSaleForUpdate(ctx, tx, "order-1")
	require.NoError(t, err)
	require.NoError(t, locked.Reject("insufficient_money"))
	require.NoError(t, repo.UpdateSale(ctx, tx, locked))
	require.NoError(t, tx.Commit())

	stored, err = repo.GetSale(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, SaleStatusRejected, stored.Status)
	assert.Equal(t, "insufficient_money", stored.Reason)
}

func TestMemoryRepository_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository(nil)

	_, err := repo.GetSale(ctx, "missing")
	assert.ErrorIs(t, err, ErrSaleNotFound)

	tx, err := repo.BeginTx(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	_, err = repo.GetSaleForUpdate(ctx, tx, "missing")
	assert.ErrorIs(t, err, ErrSaleNotFound)
	assert.ErrorIs(t, repo.UpdateSale(ctx, tx, NewSale("missing", 1, nil)), ErrSaleNotFound)
}

func TestMemoryRepository_ListProducts(t *testing.T) {
	repo := NewMemoryRepository(vending.DefaultProducts())

	products, err := repo.ListProducts(context.Background())

	require.NoError(t, err)
	assert.Equal(t, vending.DefaultProducts(), products)
}

func TestMemoryRepository_RollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository(nil)

	tx, err := repo.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, repo.CreateSale(ctx, tx, NewSale("order-1", 4, []int{200})))
	require.NoError(t, tx.Commit())

	tx, err = repo.BeginTx(ctx)
	require.NoError(t, err)
	locked, err := repo.GetSaleForUpdate(ctx, tx, "order-1")
	require.NoError(t, err)
	require.NoError(t, locked.Reject("insufficient_change"))
	require.NoError(t, repo.UpdateSale(ctx, tx, locked))
	require.NoError(t, repo.CreateSale(ctx, tx, NewSale("order-2", 1, []int{100})))

	seen, err := repo.GetSaleForUpdate(ctx, tx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, SaleStatusRejected, seen.Status)
	require.NoError(t, tx.Rollback())

	stored, err := repo.GetSale(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, SaleStatusPending, stored.Status)
	assert.Empty(t, stored.Reason)

	_, err = repo.GetSale(ctx, "order-2")
	assert.ErrorIs(t, err, ErrSaleNotFound)
}

func TestMemoryRepository_FinishedTx(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository(nil)

	tx, err := repo.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.Error(t, tx.Commit())
	assert.Error(t, repo.CreateSale(ctx, tx, NewSale("order-1", 1, nil)))
	assert.Error(t, repo.CreateSale(ctx, new(MockTx), NewSale("order-1", 1, nil)))
}
