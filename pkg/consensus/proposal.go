// Copyright 2025 Certen Protocol

package consensus

import (
	"encoding/hex"
	"encoding/json"
	"sync"

	"github.com/Zarethos/Rainsonet/pkg/crypto"
	"github.com/Zarethos/Rainsonet/pkg/ledger"
)

// Proposal is a state-update proposal from a validator. The signature
// covers "RAINSONET_PROPOSAL:" || id || proposer || version_le ||
// prev_root || new_root || changes_hash (§6).
type Proposal struct {
	ID           [32]byte
	Proposer     NodeID
	StateVersion uint64
	PreviousRoot [32]byte
	NewRoot      [32]byte
	ChangesHash  [32]byte
	TxIDs        [][32]byte
	Signature    []byte
	Timestamp    int64
}

// ComputeChangesHash hashes a canonical JSON serialization of a set of
// state changes. The runtime uses this same formula to derive a
// proposal's new_root (§4.5: new_root = H(canonical_serialize(changes))).
func ComputeChangesHash(changes []ledger.StateChange) [32]byte {
	type entry struct {
		Address string `json:"address"`
		Balance string `json:"balance"`
		Nonce   uint64 `json:"nonce"`
	}
	entries := make([]entry, len(changes))
	for i, c := range changes {
		entries[i] = entry{Address: c.Address.Hex(), Balance: c.State.Balance.String(), Nonce: c.State.Nonce}
	}
	b, _ := json.Marshal(entries)
	return crypto.Hash256(b)
}

// computeProposalID hashes a canonical serialization of every
// proposal field except the id and signature themselves.
func computeProposalID(proposer NodeID, version uint64, prevRoot, newRoot, changesHash [32]byte, timestamp int64) [32]byte {
	type canonical struct {
		Proposer     string `json:"proposer"`
		StateVersion uint64 `json:"state_version"`
		PreviousRoot string `json:"previous_root"`
		NewRoot      string `json:"new_root"`
		ChangesHash  string `json:"changes_hash"`
		Timestamp    int64  `json:"timestamp"`
	}
	c := canonical{
		Proposer:     proposer.Hex(),
		StateVersion: version,
		PreviousRoot: hex.EncodeToString(prevRoot[:]),
		NewRoot:      hex.EncodeToString(newRoot[:]),
		ChangesHash:  hex.EncodeToString(changesHash[:]),
		Timestamp:    timestamp,
	}
	b, _ := json.Marshal(c)
	return crypto.Hash256(b)
}

// SigningPreimage builds the field encoding a proposal's signature
// covers; crypto.SignProposal/VerifyProposal prepend the domain tag.
func (p *Proposal) SigningPreimage() []byte {
	buf := make([]byte, 0, 32+32+8+32+32+32)
	buf = append(buf, p.ID[:]...)
	buf = append(buf, p.Proposer[:]...)
	buf = append(buf, crypto.PutUint64LE(p.StateVersion)...)
	buf = append(buf, p.PreviousRoot[:]...)
	buf = append(buf, p.NewRoot[:]...)
	buf = append(buf, p.ChangesHash[:]...)
	return buf
}

// NewProposal builds and signs a proposal for the given state transition.
func NewProposal(kp *crypto.KeyPair, proposer NodeID, version uint64, prevRoot, newRoot [32]byte, txIDs [][32]byte, changes []ledger.StateChange, timestamp int64) *Proposal {
	changesHash := ComputeChangesHash(changes)
	id := computeProposalID(proposer, version, prevRoot, newRoot, changesHash, timestamp)

	p := &Proposal{
		ID:           id,
		Proposer:     proposer,
		StateVersion: version,
		PreviousRoot: prevRoot,
		NewRoot:      newRoot,
		ChangesHash:  changesHash,
		TxIDs:        txIDs,
		Timestamp:    timestamp,
	}
	p.Signature = crypto.SignProposal(kp, p.SigningPreimage())
	return p
}

// ProposalStatus is a proposal's terminal state machine: Pending ->
// {Approved, Rejected, Expired}.
type ProposalStatus int

const (
	StatusPending ProposalStatus = iota
	StatusApproved
	StatusRejected
	StatusExpired
)

func (s ProposalStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusApproved:
		return "approved"
	case StatusRejected:
		return "rejected"
	case StatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// TrackedProposal is a proposal plus its accumulated votes and staged
// state changes, as held by ProposalStore.
type TrackedProposal struct {
	Proposal     *Proposal
	Status       ProposalStatus
	VotesFor     int
	VotesAgainst int
	Voters       map[NodeID]bool
	StateChanges []ledger.StateChange
}

func newTrackedProposal(p *Proposal, changes []ledger.StateChange) *TrackedProposal {
	return &TrackedProposal{
		Proposal:     p,
		Status:       StatusPending,
		Voters:       make(map[NodeID]bool),
		StateChanges: changes,
	}
}

// addVote records a voter's decision. Returns false if this voter has
// already voted on this proposal (duplicate, silently dropped by the
// caller — not an error, per §4.4).
func (tp *TrackedProposal) addVote(voter NodeID, approve bool) bool {
	if _, voted := tp.Voters[voter]; voted {
		return false
	}
	tp.Voters[voter] = approve
	if approve {
		tp.VotesFor++
	} else {
		tp.VotesAgainst++
	}
	return true
}

// checkConsensus transitions Pending to Approved/Rejected once the vote
// tally crosses the thresholds passed in. The engine reads them from the
// validator set as it stands at each vote; no snapshot of the set is
// taken when the proposal is created.
func (tp *TrackedProposal) checkConsensus(requiredVotes, activeCount int) {
	if tp.Status != StatusPending {
		return
	}
	if tp.VotesFor >= requiredVotes {
		tp.Status = StatusApproved
	} else if tp.VotesAgainst > activeCount-requiredVotes {
		tp.Status = StatusRejected
	}
}

// ProposalStore holds every in-flight and recently-finalized proposal,
// indexed both by id and by target state version.
type ProposalStore struct {
	mu        sync.RWMutex
	proposals map[[32]byte]*TrackedProposal
	byVersion map[uint64][32]byte
}

// NewProposalStore creates an empty store.
func NewProposalStore() *ProposalStore {
	return &ProposalStore{
		proposals: make(map[[32]byte]*TrackedProposal),
		byVersion: make(map[uint64][32]byte),
	}
}

// Add registers a new tracked proposal.
func (s *ProposalStore) Add(p *Proposal, changes []ledger.StateChange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proposals[p.ID] = newTrackedProposal(p, changes)
	s.byVersion[p.StateVersion] = p.ID
}

// Get returns the tracked proposal for id, if present.
func (s *ProposalStore) Get(id [32]byte) (*TrackedProposal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tp, ok := s.proposals[id]
	return tp, ok
}

// AddVote records a vote and re-checks consensus for the proposal,
// returning the tracked proposal's post-vote state. The second return
// value is false if the proposal is unknown.
func (s *ProposalStore) AddVote(id [32]byte, voter NodeID, approve bool, requiredVotes, activeCount int) (*TrackedProposal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tp, ok := s.proposals[id]
	if !ok {
		return nil, false
	}
	if !tp.addVote(voter, approve) {
		return tp, true // duplicate vote: state unchanged, not an error
	}
	tp.checkConsensus(requiredVotes, activeCount)
	return tp, true
}

// Cleanup drops every proposal whose target version is at or below
// beforeVersion, per the retention policy in §4.4.
func (s *ProposalStore) Cleanup(beforeVersion uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for version, id := range s.byVersion {
		if version <= beforeVersion {
			delete(s.byVersion, version)
			delete(s.proposals, id)
		}
	}
}
