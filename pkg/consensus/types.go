// Copyright 2025 Certen Protocol
//
// Validator metadata and set management for the consensus engine.

package consensus

import (
	"crypto/ed25519"
	"sync"

	"github.com/Zarethos/Rainsonet/pkg/crypto"
	"github.com/Zarethos/Rainsonet/pkg/ledger"
)

// NodeID identifies a validator: BLAKE3(public_key), same derivation as
// an account address.
type NodeID = ledger.Address

// ValidatorInfo describes one member of the validator set.
type ValidatorInfo struct {
	NodeID    NodeID
	PublicKey ed25519.PublicKey
	Stake     uint64
	Active    bool
}

// NodeIDFromPublicKey derives a NodeID from a validator's public key.
func NodeIDFromPublicKey(pub ed25519.PublicKey) NodeID {
	return NodeID(crypto.Hash256(pub))
}

// ValidatorSet tracks the current validator membership. Membership is
// static for this core (§9 — no rotation mechanism); additions/removals
// exist for test setup and genesis loading, not live reconfiguration.
type ValidatorSet struct {
	mu          sync.RWMutex
	validators  map[NodeID]ValidatorInfo
	activeCount int
}

// NewValidatorSet creates an empty validator set.
func NewValidatorSet() *ValidatorSet {
	return &ValidatorSet{validators: make(map[NodeID]ValidatorInfo)}
}

// NewValidatorSetWith creates a validator set pre-populated with infos.
func NewValidatorSetWith(infos []ValidatorInfo) *ValidatorSet {
	vs := NewValidatorSet()
	for _, v := range infos {
		vs.AddValidator(v)
	}
	return vs
}

// AddValidator inserts a new validator or replaces an existing one's
// info, keeping activeCount in sync with any Active flip on replacement.
func (vs *ValidatorSet) AddValidator(info ValidatorInfo) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	existing, exists := vs.validators[info.NodeID]
	switch {
	case !exists && info.Active:
		vs.activeCount++
	case exists && existing.Active && !info.Active:
		vs.activeCount--
	case exists && !existing.Active && info.Active:
		vs.activeCount++
	}
	vs.validators[info.NodeID] = info
}

// RemoveValidator drops a validator from the set.
func (vs *ValidatorSet) RemoveValidator(id NodeID) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	if v, ok := vs.validators[id]; ok {
		if v.Active {
			vs.activeCount--
		}
		delete(vs.validators, id)
	}
}

// IsValidator reports whether id is a currently-active validator.
func (vs *ValidatorSet) IsValidator(id NodeID) bool {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	v, ok := vs.validators[id]
	return ok && v.Active
}

// Get returns a validator's info.
func (vs *ValidatorSet) Get(id NodeID) (ValidatorInfo, bool) {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	v, ok := vs.validators[id]
	return v, ok
}

// ActiveValidators returns every currently-active validator.
func (vs *ValidatorSet) ActiveValidators() []ValidatorInfo {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	out := make([]ValidatorInfo, 0, vs.activeCount)
	for _, v := range vs.validators {
		if v.Active {
			out = append(out, v)
		}
	}
	return out
}

// ActiveCount returns the number of currently-active validators.
func (vs *ValidatorSet) ActiveCount() int {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	return vs.activeCount
}

// RequiredVotes computes floor(active*2/3)+1, the quorum threshold.
func (vs *ValidatorSet) RequiredVotes() int {
	count := vs.ActiveCount()
	return (count*2)/3 + 1
}

// VerifySignature checks that message/sig were produced by id's registered
// public key.
func (vs *ValidatorSet) VerifySignature(id NodeID, domain, message, sig []byte) bool {
	v, ok := vs.Get(id)
	if !ok {
		return false
	}
	return crypto.Verify(v.PublicKey, domain, message, sig)
}
