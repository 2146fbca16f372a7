package vending

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMachine(t *testing.T, seed Coins) *Machine {
	t.Helper()

	catalog, err := NewCatalog(DefaultProducts()...)
	require.NoError(t, err)

	return NewMachine(catalog, NewInventory(seed))
}

type lookupFunc func(id int) (Product, error)

func (f lookupFunc) Lookup(id int) (Product, error) { return f(id) }

func TestMachine_PurchaseWithChange(t *testing.T) {
	// Arrange
	m := newTestMachine(t, DefaultSeed())

	// Act
	receipt, err := m.Purchase(1, []int{50, 50, 10})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "Coca Cola", receipt.Product.Name)
	assert.Equal(t, Coins{Coin200: 0, Coin100: 0, Coin50: 0, Coin10: 1, Coin5: 0}, receipt.Change)
	assert.Equal(t, []Denomination{Coin50, Coin50, Coin10}, receipt.Paid)
	assert.Equal(t, 110, receipt.PaidTotal())
	assert.Equal(t, 10, receipt.ChangeTotal())

	inv := m.Inventory()
	assert.Equal(t, 52, inv[Coin50])
	assert.Equal(t, 100, inv[Coin10]) // one paid in, one handed back
	assert.Equal(t, 100, inv[Coin5])
}

func TestMachine_PurchaseExactPayment(t *testing.T) {
	m := newTestMachine(t, DefaultSeed())

	receipt, err := m.Purchase(1, []int{100})

	require.NoError(t, err)
	assert.Equal(t, NewCoins(), receipt.Change)
	assert.Equal(t, 0, receipt.ChangeTotal())
	assert.Equal(t, 11, m.Inventory()[Coin100])
}

func TestMachine_PurchaseRejections(t *testing.T) {
	tests := []struct {
		name      string
		seed      Coins
		productID int
		coins     []int
		wantErr   error
		reason    string
	}{
		{
			name:      "unknown coin",
			seed:      DefaultSeed(),
			productID: 1,
			coins:     []int{100, 20},
			wantErr:   ErrInvalidCoin,
			reason:    "invalid_coin",
		},
		{
			name:      "invalid coin wins over unknown product",
			seed:      DefaultSeed(),
			productID: 99,
			coins:     []int{1},
			wantErr:   ErrInvalidCoin,
			reason:    "invalid_coin",
		},
		{
			name:      "unknown product",
			seed:      DefaultSeed(),
			productID: 99,
			coins:     []int{200, 200},
			wantErr:   ErrProductNotFound,
			reason:    "product_not_found",
		},
		{
			name:      "not enough money",
			seed:      DefaultSeed(),
			productID: 4,
			coins:     []int{100, 10, 10},
			wantErr:   ErrInsufficientMoney,
			reason:    "insufficient_money",
		},
		{
			name:      "no coins at all",
			seed:      DefaultSeed(),
			productID: 5,
			coins:     nil,
			wantErr:   ErrInsufficientMoney,
			reason:    "insufficient_money",
		},
		{
			name:      "no change available",
			seed:      Coins{Coin200: 10, Coin100: 10},
			productID: 2,
			coins:     []int{100},
			wantErr:   ErrInsufficientChange,
			reason:    "insufficient_change",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMachine(t, tt.seed)
			before := m.Inventory()

			receipt, err := m.Purchase(tt.productID, tt.coins)

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.reason, Reason(err))
			assert.Equal(t, Receipt{}, receipt)
			assert.Equal(t, before, m.Inventory())
		})
	}
}

func TestMachine_InvalidCoinCarriesValue(t *testing.T) {
	m := newTestMachine(t, DefaultSeed())

	_, err := m.Purchase(1, []int{50, 25, 3})

	var coinErr *InvalidCoinError
	require.ErrorAs(t, err, &coinErr)
	assert.Equal(t, 25, coinErr.Value)
}

func TestMachine_PaidCoinsAreNotUsedForFeasibility(t *testing.T) {
	// Water costs 15. Paying 10+5+5 leaves 5 due, and the 5s being paid
	// cannot make their own change.
	m := newTestMachine(t, Coins{Coin10: 5})
	before := m.Inventory()

	_, err := m.Purchase(5, []int{10, 5, 5})
	assert.ErrorIs(t, err, ErrInsufficientChange)
	assert.Equal(t, before, m.Inventory())

	_, err = m.Purchase(5, []int{10, 5})
	require.NoError(t, err, "exact payment needs no change")

	receipt, err := m.Purchase(5, []int{10, 5, 5})
	require.NoError(t, err, "the 5 paid in the previous sale is available now")
	assert.Equal(t, 1, receipt.Change[Coin5])
	assert.Equal(t, 2, m.Inventory()[Coin5])
}

func TestMachine_DrainingFivesLeadsToInsufficientChange(t *testing.T) {
	seed := DefaultSeed()
	seed[Coin5] = 2
	m := newTestMachine(t, seed)

	for i := 0; i < 2; i++ {
		receipt, err := m.Purchase(5, []int{10, 10})
		require.NoError(t, err)
		assert.Equal(t, 1, receipt.Change[Coin5])
	}
	require.Equal(t, 0, m.Inventory()[Coin5])
	before := m.Inventory()

	_, err := m.Purchase(5, []int{10, 10})

	assert.ErrorIs(t, err, ErrInsufficientChange)
	assert.Equal(t, before, m.Inventory())
}

func TestMachine_CommitMayPickPaidCoins(t *testing.T) {
	// The check simulates 50 due with five 10s; the commit sees the
	// 50 just paid and hands that back instead.
	m := newTestMachine(t, Coins{Coin10: 5})

	receipt, err := m.Purchase(1, []int{100, 50})

	require.NoError(t, err)
	assert.Equal(t, 1, receipt.Change[Coin50])
	assert.Equal(t, 0, receipt.Change[Coin10])
	assert.Equal(t, 5, m.Inventory()[Coin10])
	assert.Equal(t, 0, m.Inventory()[Coin50])
	assert.Equal(t, 1, m.Inventory()[Coin100])
}

func TestMachine_DepositBatch(t *testing.T) {
	m := newTestMachine(t, DefaultSeed())

	require.NoError(t, m.DepositBatch([]int{5, 5, 200}))
	assert.Equal(t, 102, m.Inventory()[Coin5])
	assert.Equal(t, 11, m.Inventory()[Coin200])

	before := m.Inventory()
	err := m.DepositBatch([]int{5, 7})
	assert.ErrorIs(t, err, ErrInvalidCoin)
	assert.Equal(t, before, m.Inventory(), "a batch with an invalid coin is refused whole")
}

func TestMachine_RefundRestoresInventory(t *testing.T) {
	m := newTestMachine(t, DefaultSeed())
	before := m.Inventory()

	receipt, err := m.Purchase(4, []int{200, 10})
	require.NoError(t, err)
	require.NotEqual(t, before, m.Inventory())

	require.NoError(t, m.Refund(receipt))
	assert.Equal(t, before, m.Inventory())

	require.NoError(t, m.Reapply(receipt))
	assert.Equal(t, before[Coin200]+1, m.Inventory()[Coin200])
}

func TestMachine_RefundUnavailable(t *testing.T) {
	m := newTestMachine(t, Coins{Coin10: 10, Coin5: 10})
	receipt := Receipt{
		Product: Product{ID: 4, Name: "Sprite", Price: 125},
		Paid:    []Denomination{Coin200},
		Change:  Coins{Coin50: 1, Coin10: 2, Coin5: 1},
	}
	before := m.Inventory()

	err := m.Refund(receipt)

	assert.ErrorIs(t, err, ErrRefundUnavailable)
	assert.ErrorIs(t, err, ErrInsufficientCoins)
	assert.Equal(t, "refund_unavailable", Reason(err))
	assert.Equal(t, before, m.Inventory())
}

func TestMachine_RefundRejectsUnbalancedReceipt(t *testing.T) {
	m := newTestMachine(t, DefaultSeed())
	receipt := Receipt{
		Product: Product{ID: 1, Name: "Coca Cola", Price: 100},
		Paid:    []Denomination{Coin200},
		Change:  Coins{Coin5: 1},
	}

	assert.ErrorIs(t, m.Refund(receipt), ErrRefundUnavailable)
	assert.ErrorIs(t, m.Reapply(Receipt{Paid: []Denomination{Denomination(3)}}), ErrInvalidCoin)
}

func TestMachine_Products(t *testing.T) {
	m := newTestMachine(t, DefaultSeed())
	assert.Len(t, m.Products(), 5)

	custom := NewMachine(lookupFunc(func(id int) (Product, error) {
		return Product{ID: id, Name: "Anything", Price: 5}, nil
	}), NewInventory(nil))
	assert.Nil(t, custom.Products())

	receipt, err := custom.Purchase(77, []int{5})
	require.NoError(t, err)
	assert.Equal(t, 77, receipt.Product.ID)
}

// Random batches against random seeds: every outcome keeps counts
// non-negative, conserves value and hands back exact change.
func TestMachine_PurchaseInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	products := DefaultProducts()
	values := []int{5, 10, 50, 100, 200}

	for round := 0; round < 200; round++ {
		seed := NewCoins()
		for _, d := range Denominations() {
			seed[d] = rng.Intn(4)
		}
		m := newTestMachine(t, seed)

		for i := 0; i < 20; i++ {
			product := products[rng.Intn(len(products))]
			coins := make([]int, rng.Intn(5))
			for j := range coins {
				coins[j] = values[rng.Intn(len(values))]
			}
			paid := 0
			for _, c := range coins {
				paid += c
			}

			before := m.Inventory()
			receipt, err := m.Purchase(product.ID, coins)
			after := m.Inventory()

			for d, n := range after {
				require.GreaterOrEqual(t, n, 0, "count of %d went negative", d)
			}

			if err != nil {
				require.Equal(t, before, after)
				if paid < product.Price {
					require.ErrorIs(t, err, ErrInsufficientMoney)
				} else {
					require.ErrorIs(t, err, ErrInsufficientChange)
				}
				continue
			}

			require.Equal(t, paid-product.Price, receipt.ChangeTotal())
			require.Equal(t, before.Total()+product.Price, after.Total())
		}
	}
}

func TestMachine_InvalidCoinNeverMutates(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	m := newTestMachine(t, DefaultSeed())
	before := m.Inventory()

	for i := 0; i < 100; i++ {
		coins := []int{200, 100, 50, 10, 5}
		bad := rng.Intn(1000)
		if Denomination(bad).Valid() {
			bad++
		}
		pos := rng.Intn(len(coins) + 1)
		coins = append(coins[:pos], append([]int{bad}, coins[pos:]...)...)

		_, err := m.Purchase(1+rng.Intn(5), coins)

		require.ErrorIs(t, err, ErrInvalidCoin)
	}
	assert.Equal(t, before, m.Inventory())
}

func TestMachine_ConcurrentPurchases(t *testing.T) {
	m := newTestMachine(t, Coins{Coin10: 20, Coin5: 20})
	initial := m.Inventory().Total()

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		taken int
	)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			receipt, err := m.Purchase(2, []int{50, 50})
			if err != nil {
				assert.ErrorIs(t, err, ErrInsufficientChange)
				return
			}
			mu.Lock()
			taken += receipt.Product.Price
			mu.Unlock()
		}()
	}
	wg.Wait()

	inv := m.Inventory()
	for d, n := range inv {
		assert.GreaterOrEqual(t, n, 0, "count of %d went negative", d)
	}
	assert.Equal(t, initial+taken, inv.Total())
}
