// Copyright 2025 Certen Protocol
//
// Versioned key-value store: the ledger's backing state, producing a
// Merkle root over its live entries and retaining a per-version diff log
// for sync. See pkg/state/memory.go and pkg/state/persistent.go for the
// two backends.

package state

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/Zarethos/Rainsonet/pkg/crypto"
	"github.com/Zarethos/Rainsonet/pkg/merkle"
)

// Sentinel errors. Matches the ledger/database packages' convention of
// explicit errors instead of nil, nil returns.
var (
	ErrStorageError         = errors.New("state: storage I/O error")
	ErrDeserializationError = errors.New("state: deserialization error")
	ErrVersionNotFound      = errors.New("state: version not found in diff log")
)

// reservedPrefix marks keys that all_entries (and so compute_root) never
// expose, per the persistent store layout's "__" reserved-key convention.
// Diff does not filter them.
const reservedPrefix = "__"

// Change is a single key mutation submitted to ApplyBatch. A nil Value
// deletes the key.
type Change struct {
	Key   []byte
	Value []byte
}

// Entry is a single live (key, value) pair as returned by AllEntries.
type Entry struct {
	Key   []byte
	Value []byte
}

// StateDiff records the set of additions/overwrites and removals that
// moved the store from FromVersion to ToVersion.
type StateDiff struct {
	FromVersion uint64
	ToVersion   uint64
	Added       map[string][]byte // raw key (as a string) -> new value
	Removed     []string
}

// Store is the versioned KV store contract every backend implements.
type Store interface {
	Get(key []byte) ([]byte, bool, error)
	Exists(key []byte) (bool, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	ApplyBatch(changes []Change) (newVersion uint64, err error)
	AllEntries() ([]Entry, error)
	ComputeRoot() ([32]byte, error)
	Diff(fromVersion uint64) (*StateDiff, error)
	Version() uint64
	Snapshot() (Store, error)
}

// isReserved reports whether a raw key belongs to the reserved "__" namespace.
func isReserved(key []byte) bool {
	return bytes.HasPrefix(key, []byte(reservedPrefix))
}

// ComputeRootFromEntries is the pure function backing every Store's
// ComputeRoot: key-sorted leaves H(key||value), folded by a binary Merkle
// tree with odd-level leaf duplication. Empty state hashes to the
// all-zero root.
func ComputeRootFromEntries(entries []Entry) ([32]byte, error) {
	if len(entries) == 0 {
		return [32]byte{}, nil
	}

	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].Key, sorted[j].Key) < 0
	})

	leaves := make([][]byte, len(sorted))
	for i, e := range sorted {
		leafInput := make([]byte, 0, len(e.Key)+len(e.Value))
		leafInput = append(leafInput, e.Key...)
		leafInput = append(leafInput, e.Value...)
		h := crypto.Hash256(leafInput)
		leaves[i] = h[:]
	}

	tree, err := merkle.BuildTree(leaves)
	if err != nil {
		return [32]byte{}, fmt.Errorf("%w: %v", ErrStorageError, err)
	}

	var root [32]byte
	copy(root[:], tree.Root())
	return root, nil
}
