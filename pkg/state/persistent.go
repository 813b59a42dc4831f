// Copyright 2025 Certen Protocol
//
// PersistentStore layers the versioned KV contract over a single embedded
// database (via pkg/kvdb.KVAdapter), using three logical key prefixes to
// stand in for the three logical trees the spec describes:
//
//	state:<key>            live entries
//	meta:version            current version, u64 little-endian
//	history:<version LE8>   StateDiff JSON moving version-1 -> version
package state

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// kv is the subset of kvdb.KVAdapter this package depends on, kept as an
// interface so tests can substitute a fake without a real database.
type kv interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	IteratePrefix(prefix []byte, fn func(key, value []byte) bool) error
}

const (
	statePrefix   = "state:"
	metaPrefix    = "meta:"
	historyPrefix = "history:"
	versionKey    = metaPrefix + "version"
)

// PersistentStore is the durable versioned KV backend.
type PersistentStore struct {
	mu      sync.Mutex // serializes ApplyBatch; db reads elsewhere are lock-free
	db      kv
	version uint64
}

// NewPersistentStore opens db and recovers the current version from its
// meta tree, defaulting to 0 for a fresh database.
func NewPersistentStore(db kv) (*PersistentStore, error) {
	s := &PersistentStore{db: db}

	raw, err := db.Get([]byte(versionKey))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageError, err)
	}
	if raw != nil {
		if len(raw) != 8 {
			return nil, fmt.Errorf("%w: malformed version record", ErrDeserializationError)
		}
		s.version = binary.LittleEndian.Uint64(raw)
	}
	return s, nil
}

func (s *PersistentStore) Get(key []byte) ([]byte, bool, error) {
	v, err := s.db.Get(append([]byte(statePrefix), key...))
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrStorageError, err)
	}
	return v, v != nil, nil
}

func (s *PersistentStore) Exists(key []byte) (bool, error) {
	ok, err := s.db.Has(append([]byte(statePrefix), key...))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStorageError, err)
	}
	return ok, nil
}

func (s *PersistentStore) Set(key, value []byte) error {
	_, err := s.ApplyBatch([]Change{{Key: key, Value: value}})
	return err
}

func (s *PersistentStore) Delete(key []byte) error {
	_, err := s.ApplyBatch([]Change{{Key: key, Value: nil}})
	return err
}

// ApplyBatch writes every change, the bumped version marker, and the diff
// record under a single mutex so the version counter and the underlying
// data never advance independently. If any write fails, the version is
// not bumped; a partially-written batch on disk is a storage error the
// caller must surface, not silently retried.
func (s *PersistentStore) ApplyBatch(changes []Change) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := make(map[string][]byte)
	var removed []string

	for _, c := range changes {
		sk := append([]byte(statePrefix), c.Key...)
		if c.Value == nil {
			existed, err := s.db.Has(sk)
			if err != nil {
				return s.version, fmt.Errorf("%w: %v", ErrStorageError, err)
			}
			if existed {
				if err := s.db.Delete(sk); err != nil {
					return s.version, fmt.Errorf("%w: %v", ErrStorageError, err)
				}
				removed = append(removed, string(c.Key))
			}
			continue
		}
		if err := s.db.Set(sk, c.Value); err != nil {
			return s.version, fmt.Errorf("%w: %v", ErrStorageError, err)
		}
		added[string(c.Key)] = c.Value
	}

	newVersion := s.version + 1
	diff := &StateDiff{FromVersion: s.version, ToVersion: newVersion, Added: added, Removed: removed}
	diffBytes, err := json.Marshal(diff)
	if err != nil {
		return s.version, fmt.Errorf("%w: %v", ErrDeserializationError, err)
	}
	if err := s.db.Set(historyKey(newVersion), diffBytes); err != nil {
		return s.version, fmt.Errorf("%w: %v", ErrStorageError, err)
	}

	vbuf := make([]byte, 8)
	binary.LittleEndian.PutUint64(vbuf, newVersion)
	if err := s.db.Set([]byte(versionKey), vbuf); err != nil {
		return s.version, fmt.Errorf("%w: %v", ErrStorageError, err)
	}

	s.version = newVersion
	return newVersion, nil
}

func (s *PersistentStore) AllEntries() ([]Entry, error) {
	var entries []Entry
	err := s.db.IteratePrefix([]byte(statePrefix), func(key, value []byte) bool {
		rawKey := key[len(statePrefix):]
		if !isReserved(rawKey) {
			k := make([]byte, len(rawKey))
			copy(k, rawKey)
			v := make([]byte, len(value))
			copy(v, value)
			entries = append(entries, Entry{Key: k, Value: v})
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageError, err)
	}
	sort.Slice(entries, func(i, j int) bool { return string(entries[i].Key) < string(entries[j].Key) })
	return entries, nil
}

func (s *PersistentStore) ComputeRoot() ([32]byte, error) {
	entries, err := s.AllEntries()
	if err != nil {
		return [32]byte{}, err
	}
	return ComputeRootFromEntries(entries)
}

// Diff replays the history tree from fromVersion+1 through the current
// version and reports the net additions/removals.
func (s *PersistentStore) Diff(fromVersion uint64) (*StateDiff, error) {
	s.mu.Lock()
	current := s.version
	s.mu.Unlock()

	if fromVersion > current {
		return nil, fmt.Errorf("%w: requested %d, current %d", ErrVersionNotFound, fromVersion, current)
	}
	if fromVersion == current {
		return &StateDiff{FromVersion: fromVersion, ToVersion: current, Added: map[string][]byte{}}, nil
	}

	added := make(map[string][]byte)
	removedSet := make(map[string]bool)
	for v := fromVersion + 1; v <= current; v++ {
		raw, err := s.db.Get(historyKey(v))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageError, err)
		}
		if raw == nil {
			return nil, fmt.Errorf("%w: missing diff for version %d", ErrVersionNotFound, v)
		}
		var d StateDiff
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDeserializationError, err)
		}
		for k, val := range d.Added {
			added[k] = val
			delete(removedSet, k)
		}
		for _, k := range d.Removed {
			delete(added, k)
			removedSet[k] = true
		}
	}

	removed := make([]string, 0, len(removedSet))
	for k := range removedSet {
		removed = append(removed, k)
	}
	sort.Strings(removed)

	return &StateDiff{FromVersion: fromVersion, ToVersion: current, Added: added, Removed: removed}, nil
}

func (s *PersistentStore) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Snapshot materializes the live entry set into a detached MemoryStore.
// Persistent backends have no cheap structural snapshot, so this is an
// O(n) copy rather than a reference clone.
func (s *PersistentStore) Snapshot() (Store, error) {
	entries, err := s.AllEntries()
	if err != nil {
		return nil, err
	}
	clone := NewMemoryStore()
	changes := make([]Change, len(entries))
	for i, e := range entries {
		changes[i] = Change{Key: e.Key, Value: e.Value}
	}
	if _, err := clone.ApplyBatch(changes); err != nil {
		return nil, err
	}
	return clone, nil
}

func historyKey(version uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, version)
	return append([]byte(historyPrefix), buf...)
}
