// Copyright 2025 Certen Protocol
//
// Ledger is the account-balance engine: a thin execution layer over
// pkg/state's versioned KV store. It stages every touched account in an
// in-memory pending buffer during proposal construction and only flushes
// to the backing store on commit, so a rejected or abandoned proposal
// never mutates committed state.
//
// CONCURRENCY: Ledger assumes single-writer access, called from the
// node's proposal-construction path only. Reads of committed state
// (GetBalance/GetNonce outside an in-flight proposal) may be called
// concurrently with that writer; pending-buffer reads may not.
package ledger

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Zarethos/Rainsonet/pkg/state"
)

// Ledger executes transactions against a versioned KV store.
type Ledger struct {
	mu      sync.Mutex
	store   state.Store
	burnPct uint64
	pending map[Address]AccountState
	burned  Amount
	reward  Amount
}

// NewLedger creates a Ledger backed by store, burning burnPercent of
// every transaction fee.
func NewLedger(store state.Store, burnPercent uint64) *Ledger {
	return &Ledger{
		store:   store,
		burnPct: burnPercent,
		pending: make(map[Address]AccountState),
	}
}

// GetAccount loads an account's state, preferring the pending buffer
// over the committed store. A missing key is the zero AccountState.
func (l *Ledger) GetAccount(addr Address) (AccountState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.getAccountLocked(addr)
}

func (l *Ledger) getAccountLocked(addr Address) (AccountState, error) {
	if s, ok := l.pending[addr]; ok {
		return s, nil
	}
	raw, found, err := l.store.Get(AccountKey(addr))
	if err != nil {
		return AccountState{}, fmt.Errorf("ledger: load account %s: %w", addr.Hex(), err)
	}
	if !found {
		return AccountState{}, nil
	}
	var s AccountState
	if err := json.Unmarshal(raw, &s); err != nil {
		return AccountState{}, fmt.Errorf("ledger: decode account %s: %w", addr.Hex(), err)
	}
	return s, nil
}

// GetBalance returns an account's committed-or-staged balance.
func (l *Ledger) GetBalance(addr Address) (Amount, error) {
	s, err := l.GetAccount(addr)
	if err != nil {
		return Amount{}, err
	}
	return s.Balance, nil
}

// GetNonce returns an account's committed-or-staged nonce.
func (l *Ledger) GetNonce(addr Address) (uint64, error) {
	s, err := l.GetAccount(addr)
	if err != nil {
		return 0, err
	}
	return s.Nonce, nil
}

// ExecuteTransaction runs the §4.2 execution protocol for an
// already-signature-verified transaction, staging both touched accounts
// in the pending buffer and returning the resulting state changes.
func (l *Ledger) ExecuteTransaction(tx *Transaction) ([]StateChange, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	sender, err := l.getAccountLocked(tx.From)
	if err != nil {
		return nil, err
	}

	if tx.Nonce != sender.Nonce {
		return nil, &InvalidNonce{Expected: sender.Nonce, Got: tx.Nonce}
	}

	total, overflow := tx.Amount.Add(tx.Fee)
	if overflow {
		return nil, ErrOverflow
	}
	if sender.Balance.LessThan(total) {
		return nil, &InsufficientBalance{Required: total, Available: sender.Balance}
	}

	burn, overflow := tx.Fee.MulPercent(l.burnPct)
	if overflow {
		return nil, ErrOverflow
	}
	reward, underflow := tx.Fee.Sub(burn)
	if underflow {
		reward = ZeroAmount()
	}

	senderAfter := sender
	newSenderBalance, underflow := sender.Balance.Sub(total)
	if underflow {
		// Unreachable given the balance check above; guarded for safety.
		return nil, ErrOverflow
	}
	senderAfter.Balance = newSenderBalance
	senderAfter.Nonce = sender.Nonce + 1
	l.pending[tx.From] = senderAfter

	// Self-transfer: the recipient's starting point is the sender's
	// just-staged copy, so the balance update nets to -fee only.
	var recipientBase AccountState
	if tx.From == tx.To {
		recipientBase = senderAfter
	} else {
		recipientBase, err = l.getAccountLocked(tx.To)
		if err != nil {
			return nil, err
		}
	}
	recipientAfter := recipientBase
	newRecipientBalance, overflow := recipientBase.Balance.Add(tx.Amount)
	if overflow {
		return nil, ErrOverflow
	}
	recipientAfter.Balance = newRecipientBalance
	l.pending[tx.To] = recipientAfter

	l.burned, overflow = l.burned.Add(burn)
	if overflow {
		return nil, ErrOverflow
	}
	l.reward, overflow = l.reward.Add(reward)
	if overflow {
		return nil, ErrOverflow
	}

	if tx.From == tx.To {
		return []StateChange{{Address: tx.From, State: recipientAfter}}, nil
	}
	return []StateChange{
		{Address: tx.From, State: senderAfter},
		{Address: tx.To, State: recipientAfter},
	}, nil
}

// Commit flushes the pending buffer to the backing store in a single
// atomic batch and clears the buffer.
func (l *Ledger) Commit() (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.pending) == 0 {
		return l.store.Version(), nil
	}

	changes := make([]state.Change, 0, len(l.pending))
	for addr, acct := range l.pending {
		raw, err := json.Marshal(acct)
		if err != nil {
			return 0, fmt.Errorf("ledger: encode account %s: %w", addr.Hex(), err)
		}
		changes = append(changes, state.Change{Key: AccountKey(addr), Value: raw})
	}

	version, err := l.store.ApplyBatch(changes)
	if err != nil {
		return 0, fmt.Errorf("ledger: commit: %w", err)
	}
	l.pending = make(map[Address]AccountState)
	return version, nil
}

// Rollback discards the pending buffer; the committed store is untouched.
func (l *Ledger) Rollback() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = make(map[Address]AccountState)
}

// SetBalance directly writes an account's balance, bypassing the
// execution protocol and pending buffer. Reserved for genesis
// allocation; callers are responsible for only invoking it before the
// chain accepts its first transaction.
func (l *Ledger) SetBalance(addr Address, amount Amount) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing, err := l.getAccountLocked(addr)
	if err != nil {
		return err
	}
	existing.Balance = amount
	raw, err := json.Marshal(existing)
	if err != nil {
		return fmt.Errorf("ledger: encode account %s: %w", addr.Hex(), err)
	}
	if _, err := l.store.ApplyBatch([]state.Change{{Key: AccountKey(addr), Value: raw}}); err != nil {
		return fmt.Errorf("ledger: set_balance: %w", err)
	}
	return nil
}

// BurnedTotal returns the cumulative amount burned across all executed
// transactions, used by the mass-conservation property.
func (l *Ledger) BurnedTotal() Amount {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.burned
}

// RewardTotal returns the cumulative conceptual validator reward accrued
// (fee minus burn); distribution of this counter is out of scope.
func (l *Ledger) RewardTotal() Amount {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reward
}
