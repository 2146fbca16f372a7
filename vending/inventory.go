package vending

import "fmt"

// Inventory tracks the coins held by the machine.
// It is not safe for concurrent use; Machine serializes access to it.
type Inventory struct {
	counts Coins
}

// NewInventory starts an inventory from seed. Unknown denominations and
// negative counts in seed are ignored.
func NewInventory(seed Coins) *Inventory {
	counts := NewCoins()
	for d, n := range seed {
		if d.Valid() && n > 0 {
			counts[d] = n
		}
	}
	return &Inventory{counts: counts}
}

// DefaultSeed is the coin load of a freshly serviced machine
func DefaultSeed() Coins {
	return Coins{
		Coin5:   100,
		Coin10:  100,
		Coin50:  50,
		Coin100: 10,
		Coin200: 10,
	}
}

// DepositBatch adds every coin of batch. The batch must already be validated.
func (i *Inventory) DepositBatch(batch []Denomination) {
	for _, d := range batch {
		if d.Valid() {
			i.counts[d]++
		}
	}
}

// CanDispense reports whether amount can be handed back from the current counts
func (i *Inventory) CanDispense(amount int) bool {
	_, ok := makeChange(amount, i.counts.Clone())
	return ok
}

// Dispense removes coins worth exactly amount and returns the breakdown.
// The counts are left untouched when the amount cannot be reached.
func (i *Inventory) Dispense(amount int) (Coins, error) {
	remaining := i.counts.Clone()
	change, ok := makeChange(amount, remaining)
	if !ok {
		return nil, fmt.Errorf("%w: cannot return %d", ErrInsufficientChange, amount)
	}
	i.counts = remaining
	return change, nil
}

// Withdraw removes an exact breakdown, all or nothing
func (i *Inventory) Withdraw(coins Coins) error {
	for d, n := range coins {
		if n < 0 || i.counts[d] < n {
			return fmt.Errorf("%w: need %d of %d, have %d", ErrInsufficientCoins, n, d, i.counts[d])
		}
	}
	for d, n := range coins {
		if d.Valid() {
			i.counts[d] -= n
		}
	}
	return nil
}

func (i *Inventory) Count(d Denomination) int {
	return i.counts[d]
}

// Snapshot returns a copy of the counts
func (i *Inventory) Snapshot() Coins {
	return i.counts.Clone()
}

// Total returns the value of all coins held
func (i *Inventory) Total() int {
	return i.counts.Total()
}

// exchange adds in and removes out in one step, refusing when any count
// would go negative
func (i *Inventory) exchange(in, out Coins) error {
	for _, d := range denominations {
		if i.counts[d]+in[d]-out[d] < 0 {
			return fmt.Errorf("%w: need %d of %d, have %d", ErrInsufficientCoins, out[d]-in[d], d, i.counts[d])
		}
	}
	for _, d := range denominations {
		i.counts[d] += in[d] - out[d]
	}
	return nil
}
