// Copyright 2025 Certen Protocol
//
// Node orchestrates the mempool, ledger, consensus engine and KV store
// into the submit -> validate -> admit -> propose -> finalize -> apply
// pipeline (§4.5). It is the only component that touches more than one
// of those collaborators directly.
package runtime

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Zarethos/Rainsonet/pkg/bus"
	"github.com/Zarethos/Rainsonet/pkg/consensus"
	"github.com/Zarethos/Rainsonet/pkg/crypto"
	"github.com/Zarethos/Rainsonet/pkg/ledger"
	"github.com/Zarethos/Rainsonet/pkg/mempool"
	"github.com/Zarethos/Rainsonet/pkg/state"
)

// Errors surfaced by the submission pipeline's stateful checks (§7).
var (
	ErrFeeBelowMinimum  = errors.New("runtime: fee below minimum accepted fee")
	ErrAmountExceedsMax = errors.New("runtime: amount exceeds maximum transaction size")
	ErrMempoolRejected  = errors.New("runtime: mempool rejected transaction (duplicate, full, or over sender limit)")
	ErrRootMismatch     = errors.New("runtime: finalized proposal's declared new_root does not match the recomputed changes hash")
)

// Config holds the runtime's validation tunables, sourced from
// pkg/config.Config.
type Config struct {
	MinFee            uint64
	MaxTxAmount       uint64
	BurnPercent       uint64
	ProposalBatchSize int
}

// Node wires the ledger, mempool, consensus engine and KV store
// together for one validator or observer.
type Node struct {
	mu sync.Mutex

	cfg      Config
	store    state.Store
	ledger   *ledger.Ledger
	mempool  *mempool.Mempool
	engine   *consensus.Engine
	bus      *bus.Bus
	clockFn  func() int64
}

// New builds a Node. clockFn supplies the current unix timestamp
// (injected so tests are deterministic); pass nil to use time.Now.
func New(cfg Config, store state.Store, l *ledger.Ledger, mp *mempool.Mempool, engine *consensus.Engine, eventBus *bus.Bus, clockFn func() int64) *Node {
	n := &Node{cfg: cfg, store: store, ledger: l, mempool: mp, engine: engine, bus: eventBus, clockFn: clockFn}
	return n
}

// Ledger returns the node's ledger, for query handlers that only read
// account state.
func (n *Node) Ledger() *ledger.Ledger { return n.ledger }

// Mempool returns the node's mempool, for query handlers.
func (n *Node) Mempool() *mempool.Mempool { return n.mempool }

// Status is a snapshot of the node's consensus position and mempool
// load, the §6 GET /status payload.
type Status struct {
	IsValidator      bool   `json:"is_validator"`
	FinalizedVersion uint64 `json:"finalized_version"`
	FinalizedRoot    string `json:"finalized_root"`
	MempoolSize      int    `json:"mempool_size"`
}

// Status reports the node's current consensus position and mempool load.
func (n *Node) Status() Status {
	root := n.engine.LatestFinalizedRoot()
	return Status{
		IsValidator:      n.engine.IsValidator(),
		FinalizedVersion: n.engine.LatestFinalizedVersion(),
		FinalizedRoot:    hex.EncodeToString(root[:]),
		MempoolSize:      n.mempool.Count(),
	}
}

func (n *Node) now() int64 {
	if n.clockFn != nil {
		return n.clockFn()
	}
	return time.Now().Unix()
}

// SubmitTransaction runs the full admission pipeline: stateful
// validation against the ledger, then mempool admission. It does not
// execute the transaction — execution happens when a validator draws
// it into a proposal.
func (n *Node) SubmitTransaction(tx *ledger.Transaction) error {
	if tx.Fee.Uint64() < n.cfg.MinFee {
		return ErrFeeBelowMinimum
	}
	if n.cfg.MaxTxAmount > 0 && tx.Amount.Uint64() > n.cfg.MaxTxAmount {
		return ErrAmountExceedsMax
	}

	currentNonce, err := n.ledger.GetNonce(tx.From)
	if err != nil {
		return fmt.Errorf("runtime: load sender nonce: %w", err)
	}
	pendingNonce := n.mempool.GetPendingNonce(tx.From, currentNonce)
	if tx.Nonce != pendingNonce {
		return &ledger.InvalidNonce{Expected: pendingNonce, Got: tx.Nonce}
	}

	if !n.mempool.Add(tx) {
		return ErrMempoolRejected
	}

	n.publish(bus.TopicTransactions, bus.TransactionMessage{ID: hexID(tx.ID)})
	return nil
}

// ProposeBatch is called by a validator node to draw executable
// transactions from the mempool, execute them against the ledger, and
// submit the resulting state transition as a consensus proposal. It
// does not commit anything: commitment happens only once the proposal
// is finalized (ApplyFinalized).
func (n *Node) ProposeBatch() (*consensus.Proposal, error) {
	if !n.engine.IsValidator() {
		return nil, consensus.ErrNotAValidator
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	txs := n.mempool.GetExecutable(n.cfg.ProposalBatchSize)
	if len(txs) == 0 {
		return nil, nil
	}

	var changes []ledger.StateChange
	var txIDs [][32]byte
	for _, tx := range txs {
		txChanges, err := n.ledger.ExecuteTransaction(tx)
		if err != nil {
			// Invalid at execution time (stale nonce, insufficient
			// balance since admission): drop it and keep going, per
			// §7's "surfaced, not retried" transaction-error handling.
			n.mempool.Remove(tx.ID)
			continue
		}
		changes = append(changes, txChanges...)
		txIDs = append(txIDs, tx.ID)
	}

	if len(txIDs) == 0 {
		n.ledger.Rollback()
		return nil, nil
	}

	newRoot := consensus.ComputeChangesHash(changes)

	p, err := n.engine.CreateProposal(newRoot, txIDs, changes, n.now())
	if err != nil {
		n.ledger.Rollback()
		return nil, fmt.Errorf("runtime: create proposal: %w", err)
	}
	return p, nil
}

// ApplyFinalized applies a finalized proposal's state changes directly
// to the KV store and discards this node's own staged ledger writes
// (the finalized changes are authoritative, whether or not this node
// was the proposer). Before writing, it recomputes changes_hash over
// the finalized changes and asserts it matches the proposal's declared
// new_root: new_root binds to H(canonical_serialize(changes)), not to
// the KV store's own Merkle root (those are different hashes over
// different preimages and can never be compared directly — see
// DESIGN.md), so replaying the one computation new_root actually
// encodes is the check that can genuinely fail on a tampered or
// misapplied changes set.
func (n *Node) ApplyFinalized(proposalID [32]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	p, changes, ok := n.engine.GetFinalizedProposal(proposalID)
	if !ok {
		return consensus.ErrProposalNotFound
	}

	if consensus.ComputeChangesHash(changes) != p.NewRoot {
		return ErrRootMismatch
	}

	batch := make([]state.Change, len(changes))
	for i, c := range changes {
		raw, err := json.Marshal(c.State)
		if err != nil {
			return fmt.Errorf("runtime: marshal state change: %w", err)
		}
		batch[i] = state.Change{Key: ledger.AccountKey(c.Address), Value: raw}
	}

	if _, err := n.store.ApplyBatch(batch); err != nil {
		return fmt.Errorf("runtime: apply finalized batch: %w", err)
	}
	n.ledger.Rollback()

	for _, id := range p.TxIDs {
		n.mempool.Remove(id)
	}
	return nil
}

func (n *Node) publish(topic bus.Topic, payload interface{}) {
	if n.bus == nil {
		return
	}
	n.bus.Publish(bus.Message{Topic: topic, Payload: payload})
}

func hexID(id [32]byte) string {
	return crypto.PublicKeyHex(id[:])
}
