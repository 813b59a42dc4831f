// Copyright 2025 Certen Protocol
//
// Mempool holds verified, not-yet-executed transactions in three indexes
// kept in lockstep: by_id (primary), by_sender (set of ids per sender),
// by_priority (fee-ordered for fee-maximizing and eviction selection).
//
// Lock order is fixed to prevent deadlock: transactions -> by_sender ->
// by_priority. Only evictLowestPriorityLocked, called with transactions
// held, holds two at once: transactions with by_priority, then
// transactions with by_sender. Every other method takes one lock at a time.
package mempool

import (
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/Zarethos/Rainsonet/pkg/ledger"
)

// Entry wraps a mempool-resident transaction with its admission metadata.
type Entry struct {
	Tx         *ledger.Transaction
	ReceivedAt time.Time
	Priority   uint64 // the transaction's raw fee value
}

func idHex(id [32]byte) string { return hex.EncodeToString(id[:]) }

// priorityKey orders entries by (fee, id) ascending; the lowest-priority
// entry for eviction is index 0, the highest for extraction is the tail.
type priorityKey struct {
	fee uint64
	id  string
}

func less(a, b priorityKey) bool {
	if a.fee != b.fee {
		return a.fee < b.fee
	}
	return a.id < b.id
}

// Mempool is the three-index pending-transaction store.
type Mempool struct {
	mu           sync.RWMutex // guards transactions
	transactions map[string]*Entry

	senderMu sync.RWMutex // guards bySender
	bySender map[ledger.Address]map[string]struct{}

	priorityMu sync.RWMutex // guards byPriority (kept sorted ascending)
	byPriority []priorityKey

	maxSize      int
	maxPerSender int
}

// New creates an empty mempool bounded by maxSize entries and
// maxPerSender entries per sending address.
func New(maxSize, maxPerSender int) *Mempool {
	return &Mempool{
		transactions: make(map[string]*Entry),
		bySender:     make(map[ledger.Address]map[string]struct{}),
		maxSize:      maxSize,
		maxPerSender: maxPerSender,
	}
}

// Add admits a verified transaction. It returns false (never an error)
// for duplicates, per-sender-limit violations, or an unevictable full
// pool, matching the gossip-idempotent "reject, don't error" contract.
func (m *Mempool) Add(tx *ledger.Transaction) bool {
	key := idHex(tx.ID)

	m.mu.Lock()
	if _, exists := m.transactions[key]; exists {
		m.mu.Unlock()
		return false
	}

	if len(m.transactions) >= m.maxSize {
		if !m.evictLowestPriorityLocked() {
			m.mu.Unlock()
			return false
		}
	}
	m.mu.Unlock()

	m.senderMu.Lock()
	senderSet := m.bySender[tx.From]
	if len(senderSet) >= m.maxPerSender {
		m.senderMu.Unlock()
		return false
	}
	if senderSet == nil {
		senderSet = make(map[string]struct{})
		m.bySender[tx.From] = senderSet
	}
	senderSet[key] = struct{}{}
	m.senderMu.Unlock()

	entry := &Entry{Tx: tx, ReceivedAt: time.Now(), Priority: tx.Fee.Uint64()}

	m.mu.Lock()
	m.transactions[key] = entry
	m.mu.Unlock()

	m.priorityMu.Lock()
	m.insertPriorityLocked(priorityKey{fee: entry.Priority, id: key})
	m.priorityMu.Unlock()

	return true
}

// insertPriorityLocked keeps byPriority sorted ascending by (fee, id).
// Caller holds priorityMu.
func (m *Mempool) insertPriorityLocked(k priorityKey) {
	i := sort.Search(len(m.byPriority), func(i int) bool { return !less(m.byPriority[i], k) })
	m.byPriority = append(m.byPriority, priorityKey{})
	copy(m.byPriority[i+1:], m.byPriority[i:])
	m.byPriority[i] = k
}

func (m *Mempool) removePriorityLocked(k priorityKey) {
	i := sort.Search(len(m.byPriority), func(i int) bool { return !less(m.byPriority[i], k) })
	if i < len(m.byPriority) && m.byPriority[i] == k {
		m.byPriority = append(m.byPriority[:i], m.byPriority[i+1:]...)
	}
}

// evictLowestPriorityLocked removes the single lowest-priority entry to
// make room for an incoming transaction. Caller holds m.mu (transactions).
func (m *Mempool) evictLowestPriorityLocked() bool {
	m.priorityMu.Lock()
	if len(m.byPriority) == 0 {
		m.priorityMu.Unlock()
		return false
	}
	lowest := m.byPriority[0]
	m.byPriority = m.byPriority[1:]
	m.priorityMu.Unlock()

	entry, ok := m.transactions[lowest.id]
	if !ok {
		return true
	}
	delete(m.transactions, lowest.id)

	m.senderMu.Lock()
	if set, ok := m.bySender[entry.Tx.From]; ok {
		delete(set, lowest.id)
		if len(set) == 0 {
			delete(m.bySender, entry.Tx.From)
		}
	}
	m.senderMu.Unlock()

	return true
}

// Remove drops a transaction by id from all three indexes.
func (m *Mempool) Remove(id [32]byte) {
	key := idHex(id)

	m.mu.Lock()
	entry, ok := m.transactions[key]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.transactions, key)
	m.mu.Unlock()

	m.senderMu.Lock()
	if set, ok := m.bySender[entry.Tx.From]; ok {
		delete(set, key)
		if len(set) == 0 {
			delete(m.bySender, entry.Tx.From)
		}
	}
	m.senderMu.Unlock()

	m.priorityMu.Lock()
	m.removePriorityLocked(priorityKey{fee: entry.Priority, id: key})
	m.priorityMu.Unlock()
}

// Get looks up a transaction by id.
func (m *Mempool) Get(id [32]byte) (*ledger.Transaction, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.transactions[idHex(id)]
	if !ok {
		return nil, false
	}
	return entry.Tx, true
}

// Contains reports whether a transaction id is present.
func (m *Mempool) Contains(id [32]byte) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.transactions[idHex(id)]
	return ok
}

// Count returns the total number of pending transactions.
func (m *Mempool) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.transactions)
}

// GetBySender returns every pending transaction from sender, unordered.
func (m *Mempool) GetBySender(sender ledger.Address) []*ledger.Transaction {
	m.senderMu.RLock()
	ids := make([]string, 0, len(m.bySender[sender]))
	for id := range m.bySender[sender] {
		ids = append(ids, id)
	}
	m.senderMu.RUnlock()

	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*ledger.Transaction, 0, len(ids))
	for _, id := range ids {
		if e, ok := m.transactions[id]; ok {
			out = append(out, e.Tx)
		}
	}
	return out
}

// GetPendingNonce returns currentNonce + the sender's pending tx count,
// the next nonce a new transaction from sender should carry.
func (m *Mempool) GetPendingNonce(sender ledger.Address, currentNonce uint64) uint64 {
	m.senderMu.RLock()
	defer m.senderMu.RUnlock()
	return currentNonce + uint64(len(m.bySender[sender]))
}

// GetHighestPriority returns up to limit transactions in descending fee
// order, for fee-maximizing selection.
func (m *Mempool) GetHighestPriority(limit int) []*ledger.Transaction {
	m.priorityMu.RLock()
	ids := make([]string, 0, limit)
	for i := len(m.byPriority) - 1; i >= 0 && len(ids) < limit; i-- {
		ids = append(ids, m.byPriority[i].id)
	}
	m.priorityMu.RUnlock()

	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*ledger.Transaction, 0, len(ids))
	for _, id := range ids {
		if e, ok := m.transactions[id]; ok {
			out = append(out, e.Tx)
		}
	}
	return out
}

// GetExecutable groups pending transactions by sender, sorts each
// sender's transactions by nonce ascending, then round-robins one
// transaction per sender per round until limit is reached or every
// sender is drained. This guarantees no sender starves another
// regardless of fee.
func (m *Mempool) GetExecutable(limit int) []*ledger.Transaction {
	m.mu.RLock()
	bySender := make(map[ledger.Address][]*ledger.Transaction)
	for _, e := range m.transactions {
		bySender[e.Tx.From] = append(bySender[e.Tx.From], e.Tx)
	}
	m.mu.RUnlock()

	senders := make([]ledger.Address, 0, len(bySender))
	for sender, txs := range bySender {
		sort.Slice(txs, func(i, j int) bool { return txs[i].Nonce < txs[j].Nonce })
		bySender[sender] = txs
		senders = append(senders, sender)
	}
	sort.Slice(senders, func(i, j int) bool { return senders[i].Hex() < senders[j].Hex() })

	var result []*ledger.Transaction
	i := 0
	for len(result) < limit && len(senders) > 0 {
		sender := senders[i]
		queue := bySender[sender]
		result = append(result, queue[0])
		bySender[sender] = queue[1:]

		if len(bySender[sender]) == 0 {
			senders = append(senders[:i], senders[i+1:]...)
			if len(senders) > 0 {
				i %= len(senders)
			}
		} else {
			i = (i + 1) % len(senders)
		}
	}
	return result
}

// RemoveExpired evicts every transaction older than ttlSeconds and
// returns their ids.
func (m *Mempool) RemoveExpired(ttlSeconds int64) [][32]byte {
	cutoff := time.Now().Add(-time.Duration(ttlSeconds) * time.Second)

	m.mu.RLock()
	var expired [][32]byte
	for _, e := range m.transactions {
		if e.ReceivedAt.Before(cutoff) {
			expired = append(expired, e.Tx.ID)
		}
	}
	m.mu.RUnlock()

	for _, id := range expired {
		m.Remove(id)
	}
	return expired
}
