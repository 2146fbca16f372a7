package vending

import (
	"errors"
	"fmt"
	"sort"
)

// Denomination is the face value of an accepted coin
type Denomination int

const (
	Coin5   Denomination = 5
	Coin10  Denomination = 10
	Coin50  Denomination = 50
	Coin100 Denomination = 100
	Coin200 Denomination = 200
)

// denominations lists the accepted coins from largest to smallest.
// The change algorithm walks it in this order.
var denominations = [...]Denomination{Coin200, Coin100, Coin50, Coin10, Coin5}

// Denominations returns the accepted coins from largest to smallest
func Denominations() []Denomination {
	out := make([]Denomination, len(denominations))
	copy(out, denominations[:])
	return out
}

// Valid reports whether d belongs to the accepted set
func (d Denomination) Valid() bool {
	for _, known := range denominations {
		if d == known {
			return true
		}
	}
	return false
}

var (
	ErrInvalidCoin        = errors.New("invalid coin")
	ErrProductNotFound    = errors.New("product not found")
	ErrInsufficientMoney  = errors.New("insufficient money")
	ErrInsufficientChange = errors.New("insufficient change")
	ErrInsufficientCoins  = errors.New("insufficient coins in inventory")
	ErrRefundUnavailable  = errors.New("refund unavailable")
	ErrInvalidProduct     = errors.New("invalid product")
)

// InvalidCoinError reports a coin outside the accepted set
type InvalidCoinError struct {
	Value int
}

func (e *InvalidCoinError) Error() string {
	return fmt.Sprintf("invalid coin: %d, only 5, 10, 50, 100 and 200 are accepted", e.Value)
}

func (e *InvalidCoinError) Is(target error) bool {
	return target == ErrInvalidCoin
}

// ParseCoins validates a raw coin batch, failing on the first unknown value
func ParseCoins(values []int) ([]Denomination, error) {
	batch := make([]Denomination, 0, len(values))
	for _, v := range values {
		d := Denomination(v)
		if !d.Valid() {
			return nil, &InvalidCoinError{Value: v}
		}
		batch = append(batch, d)
	}
	return batch, nil
}

// Coins maps each denomination to a count
type Coins map[Denomination]int

// NewCoins returns a breakdown holding every denomination at zero
func NewCoins() Coins {
	c := make(Coins, len(denominations))
	for _, d := range denominations {
		c[d] = 0
	}
	return c
}

// CountCoins tallies a batch into a breakdown
func CountCoins(batch []Denomination) Coins {
	c := NewCoins()
	for _, d := range batch {
		c[d]++
	}
	return c
}

// Total returns the value held by the breakdown
func (c Coins) Total() int {
	total := 0
	for d, n := range c {
		total += int(d) * n
	}
	return total
}

// Clone returns an independent copy with every denomination present
func (c Coins) Clone() Coins {
	out := NewCoins()
	for d, n := range c {
		out[d] = n
	}
	return out
}

// Product is a catalog entry
type Product struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Price int    `json:"price"`
}

func (p Product) validate() error {
	switch {
	case p.ID <= 0:
		return fmt.Errorf("%w: id must be positive, got %d", ErrInvalidProduct, p.ID)
	case p.Name == "":
		return fmt.Errorf("%w: product %d has no name", ErrInvalidProduct, p.ID)
	case p.Price <= 0:
		return fmt.Errorf("%w: product %d price must be positive, got %d", ErrInvalidProduct, p.ID, p.Price)
	}
	return nil
}

// Receipt is the outcome of a committed purchase
type Receipt struct {
	Product Product        `json:"product"`
	Paid    []Denomination `json:"paid"`
	Change  Coins          `json:"change"`
}

// PaidTotal returns the value of the coins inserted for the purchase
func (r Receipt) PaidTotal() int {
	return CountCoins(r.Paid).Total()
}

// ChangeTotal returns the value handed back to the buyer
func (r Receipt) ChangeTotal() int {
	return r.Change.Total()
}

// Reason maps an engine error to a stable reason code.
// It returns an empty string for errors the engine does not produce.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCoin):
		return "invalid_coin"
	case errors.Is(err, ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, ErrInsufficientMoney):
		return "insufficient_money"
	case errors.Is(err, ErrInsufficientChange):
		return "insufficient_change"
	case errors.Is(err, ErrRefundUnavailable):
		return "refund_unavailable"
	}
	return ""
}

func sortProducts(products []Product) {
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
}
