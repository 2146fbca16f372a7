// Package vending implements the transaction engine of a coin-operated
// vending machine: coin validation, change feasibility and greedy change
// dispensing over a finite coin inventory.
//
// A Machine accepts a product selection and a coin batch, and either
// returns a Receipt with the exact change or rejects the purchase with one of
// ErrInvalidCoin, ErrProductNotFound, ErrInsufficientMoney or
// ErrInsufficientChange. A rejected purchase never touches the inventory.
package vending
