package client

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/matheusmosca/vending-machine/vending"
)

// ErrSaleNotFound is reported for an unknown order id
var ErrSaleNotFound = errors.New("sale not found")

// RejectedError is a purchase or deposit the machine refused. It unwraps to
// the matching vending sentinel, so errors.Is works across the wire.
type RejectedError struct {
	Reason  string
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("rejected (%s): %s", e.Reason, e.Message)
}

func (e *RejectedError) Unwrap() error {
	switch e.Reason {
	case "invalid_coin":
		return vending.ErrInvalidCoin
	case "product_not_found":
		return vending.ErrProductNotFound
	case "insufficient_money":
		return vending.ErrInsufficientMoney
	case "insufficient_change":
		return vending.ErrInsufficientChange
	case "refund_unavailable":
		return vending.ErrRefundUnavailable
	}
	return nil
}

// StatusError is any other non-2xx answer
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("machine service returned %d: %s", e.StatusCode, e.Message)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrSaleNotFound && e.StatusCode == http.StatusNotFound
}
