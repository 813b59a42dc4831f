// Copyright 2025 Certen Protocol
//
// Package ledger provides sentinel and structured errors for account
// execution. F.4-style remediation: explicit errors instead of nil, nil
// returns, with the caller-relevant fields attached where the spec's
// error taxonomy calls for them (§7).

package ledger

import (
	"errors"
	"fmt"
)

// Sentinel errors not carrying caller-relevant fields.
var (
	ErrFeeTooLow          = errors.New("ledger: fee below minimum")
	ErrTransactionExpired = errors.New("ledger: transaction expired")
	ErrAmountExceedsMax   = errors.New("ledger: amount exceeds maximum transaction amount")
	ErrOverflow           = errors.New("ledger: checked arithmetic overflow")
)

// InvalidNonce is returned when a transaction's nonce does not match the
// sender's current committed (or pending-buffer) nonce exactly.
type InvalidNonce struct {
	Expected uint64
	Got      uint64
}

func (e *InvalidNonce) Error() string {
	return fmt.Sprintf("ledger: invalid nonce: expected %d, got %d", e.Expected, e.Got)
}

// InsufficientBalance is returned when sender.balance < amount+fee.
type InsufficientBalance struct {
	Required  Amount
	Available Amount
}

func (e *InsufficientBalance) Error() string {
	return fmt.Sprintf("ledger: insufficient balance: required %s, available %s", e.Required, e.Available)
}
