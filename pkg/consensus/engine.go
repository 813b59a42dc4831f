// Copyright 2025 Certen Protocol
//
// Engine is the consensus orchestrator: proposal creation/reception,
// vote collection, quorum detection and finalization. It never touches
// the KV store or ledger directly — the runtime applies a finalized
// proposal's state changes and commits the ledger in response to the
// StateFinalized event this engine emits.
package consensus

import (
	"sync"

	"github.com/Zarethos/Rainsonet/pkg/bus"
	"github.com/Zarethos/Rainsonet/pkg/crypto"
	"github.com/Zarethos/Rainsonet/pkg/ledger"
)

// cleanupRetentionWindow is how many finalized versions of proposal
// history the store retains (§4.4): proposals whose state_version is at
// or below finalized_version-cleanupRetentionWindow are dropped.
const cleanupRetentionWindow = 10

// Engine runs the proposal/vote state machine for one node.
type Engine struct {
	mu sync.RWMutex

	validators *ValidatorSet
	proposals  *ProposalStore
	local      *crypto.KeyPair // nil if this node is not a validator
	localID    NodeID

	finalizedVersion uint64
	finalizedRoot    [32]byte
	certificates     []FinalityCertificate

	bus *bus.Bus
}

// NewEngine creates a consensus engine. local is nil for an observer
// (non-validator) node.
func NewEngine(validators *ValidatorSet, local *crypto.KeyPair, eventBus *bus.Bus) *Engine {
	e := &Engine{
		validators: validators,
		proposals:  NewProposalStore(),
		bus:        eventBus,
	}
	if local != nil {
		e.local = local
		e.localID = NodeIDFromPublicKey(local.Public)
	}
	return e
}

// IsValidator reports whether this node can propose and vote.
func (e *Engine) IsValidator() bool { return e.local != nil }

// LatestFinalizedVersion returns the highest version any certificate
// has finalized, 0 before the first certificate.
func (e *Engine) LatestFinalizedVersion() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.finalizedVersion
}

// LatestFinalizedRoot returns the state root of the latest finalized version.
func (e *Engine) LatestFinalizedRoot() [32]byte {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.finalizedRoot
}

// CreateProposal builds, signs and stores a proposal for the given state
// transition and emits a ProposalCreated event on the consensus topic; it
// does not publish the proposal itself to peers. Fails with
// ErrNotAValidator if the local node is not a validator.
func (e *Engine) CreateProposal(newRoot [32]byte, txIDs [][32]byte, changes []ledger.StateChange, timestamp int64) (*Proposal, error) {
	if e.local == nil {
		return nil, ErrNotAValidator
	}

	e.mu.Lock()
	nextVersion := e.finalizedVersion + 1
	prevRoot := e.finalizedRoot
	e.mu.Unlock()

	p := NewProposal(e.local, e.localID, nextVersion, prevRoot, newRoot, txIDs, changes, timestamp)
	e.proposals.Add(p, changes)
	e.emit(bus.Message{Topic: bus.TopicConsensus, Payload: ProposalCreatedEvent{ProposalID: p.ID}})

	// The proposer casts its own approve vote immediately (§8 scenario 4):
	// with a single validator this alone reaches quorum.
	required := e.validators.RequiredVotes()
	active := e.validators.ActiveCount()
	tp, ok := e.proposals.AddVote(p.ID, e.localID, true, required, active)
	if ok {
		e.emit(bus.Message{Topic: bus.TopicConsensus, Payload: VoteCastEvent{ProposalID: p.ID, Voter: e.localID, Approve: true}})
		if tp.Status == StatusApproved {
			if err := e.finalizeProposal(tp, timestamp); err != nil {
				return p, err
			}
		}
	}
	return p, nil
}

// ReceiveProposal validates and stores a proposal received from a peer,
// then auto-votes approve if the local node is also a validator.
func (e *Engine) ReceiveProposal(p *Proposal, changes []ledger.StateChange, timestamp int64) error {
	if !e.validators.IsValidator(p.Proposer) {
		return ErrUnknownProposer
	}
	if !crypto.VerifyProposal(mustPublicKey(e.validators, p.Proposer), p.SigningPreimage(), p.Signature) {
		return ErrInvalidSignature
	}

	e.mu.RLock()
	expected := e.finalizedVersion + 1
	e.mu.RUnlock()
	if p.StateVersion != expected {
		return ErrStateVersionMismatch
	}

	e.proposals.Add(p, changes)
	e.emit(bus.Message{Topic: bus.TopicConsensus, Payload: ProposalReceivedEvent{ProposalID: p.ID}})

	if e.IsValidator() {
		return e.voteOnProposal(p.ID, true, timestamp)
	}
	return nil
}

// VoteOnProposal casts the local validator's own vote on a known
// proposal. Exposed for explicit voting flows distinct from the
// auto-vote ReceiveProposal performs for validators.
func (e *Engine) VoteOnProposal(proposalID [32]byte, approve bool, timestamp int64) error {
	if e.local == nil {
		return ErrNotAValidator
	}
	return e.voteOnProposal(proposalID, approve, timestamp)
}

// voteOnProposal casts and records the local node's own vote.
func (e *Engine) voteOnProposal(proposalID [32]byte, approve bool, timestamp int64) error {
	if _, ok := e.proposals.Get(proposalID); !ok {
		return ErrProposalNotFound
	}

	e.mu.RLock()
	version, root := e.finalizedVersion, e.finalizedRoot
	e.mu.RUnlock()

	v := NewVote(e.local, proposalID, e.localID, approve, version, root, timestamp)
	return e.ReceiveVote(v)
}

// ReceiveVote validates and records a vote, finalizing the proposal if
// it now has quorum. A duplicate voter on the same proposal is not
// counted again and returns no error (§4.4's gossip idempotence); a
// VoteCast event is still emitted for it. A vote arriving after the
// proposal's version is finalized does not finalize it again.
func (e *Engine) ReceiveVote(v *Vote) error {
	if !e.validators.IsValidator(v.Voter) {
		return ErrUnknownVoter
	}
	if !crypto.VerifyVote(mustPublicKey(e.validators, v.Voter), v.SigningPreimage(), v.Signature) {
		return ErrInvalidSignature
	}

	required := e.validators.RequiredVotes()
	active := e.validators.ActiveCount()

	tp, ok := e.proposals.AddVote(v.ProposalID, v.Voter, v.Approve, required, active)
	if !ok {
		return ErrProposalNotFound
	}

	e.emit(bus.Message{Topic: bus.TopicConsensus, Payload: VoteCastEvent{ProposalID: v.ProposalID, Voter: v.Voter, Approve: v.Approve}})

	switch tp.Status {
	case StatusApproved:
		return e.finalizeProposal(tp, v.Timestamp)
	case StatusRejected:
		e.emit(bus.Message{Topic: bus.TopicConsensus, Payload: ProposalRejectedEvent{ProposalID: v.ProposalID}})
	}
	return nil
}

// finalizeProposal builds the finality certificate, advances the
// finalized version/root, and emits StateFinalized. finalizedAt is the
// timestamp of the vote (or self-vote) that pushed the proposal over
// quorum.
func (e *Engine) finalizeProposal(tp *TrackedProposal, finalizedAt int64) error {
	votes := make([]Vote, 0, len(tp.Voters))
	for voter, approve := range tp.Voters {
		votes = append(votes, Vote{ProposalID: tp.Proposal.ID, Voter: voter, Approve: approve, StateVersion: tp.Proposal.StateVersion, StateRoot: tp.Proposal.NewRoot})
	}

	cert := FinalityCertificate{
		ProposalID:   tp.Proposal.ID,
		StateVersion: tp.Proposal.StateVersion,
		StateRoot:    tp.Proposal.NewRoot,
		Votes:        votes,
		FinalizedAt:  finalizedAt,
	}

	e.mu.Lock()
	if tp.Proposal.StateVersion <= e.finalizedVersion {
		// Already finalized (duplicate or late vote): no second certificate.
		e.mu.Unlock()
		return nil
	}
	e.finalizedVersion = tp.Proposal.StateVersion
	e.finalizedRoot = tp.Proposal.NewRoot
	e.certificates = append(e.certificates, cert)
	e.mu.Unlock()

	e.emit(bus.Message{Topic: bus.TopicConsensus, Payload: StateFinalizedEvent{
		StateVersion: cert.StateVersion,
		StateRoot:    cert.StateRoot,
		Certificate:  cert,
		StateChanges: tp.StateChanges,
	}})

	e.cleanup()
	return nil
}

// GetCertificate returns the finality certificate for version, if any.
func (e *Engine) GetCertificate(version uint64) (*FinalityCertificate, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for i := range e.certificates {
		if e.certificates[i].StateVersion == version {
			return &e.certificates[i], true
		}
	}
	return nil, false
}

// GetFinalizedProposal returns an approved proposal and its staged state
// changes, used by the runtime to apply them to the KV store and clean
// up the mempool.
func (e *Engine) GetFinalizedProposal(proposalID [32]byte) (*Proposal, []ledger.StateChange, bool) {
	tp, ok := e.proposals.Get(proposalID)
	if !ok || tp.Status != StatusApproved {
		return nil, nil, false
	}
	return tp.Proposal, tp.StateChanges, true
}

// cleanup drops proposals whose target version is too far behind the
// finalized tip to matter, per §4.4.
func (e *Engine) cleanup() {
	e.mu.RLock()
	finalized := e.finalizedVersion
	e.mu.RUnlock()
	if finalized > cleanupRetentionWindow {
		e.proposals.Cleanup(finalized - cleanupRetentionWindow)
	}
}

func (e *Engine) emit(msg bus.Message) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(msg)
}

func mustPublicKey(vs *ValidatorSet, id NodeID) []byte {
	v, ok := vs.Get(id)
	if !ok {
		return nil
	}
	return v.PublicKey
}

// Event payload types carried on bus.TopicConsensus.
type ProposalCreatedEvent struct{ ProposalID [32]byte }
type ProposalReceivedEvent struct{ ProposalID [32]byte }
type VoteCastEvent struct {
	ProposalID [32]byte
	Voter      NodeID
	Approve    bool
}
type ProposalRejectedEvent struct{ ProposalID [32]byte }
type StateFinalizedEvent struct {
	StateVersion uint64
	StateRoot    [32]byte
	Certificate  FinalityCertificate
	StateChanges []ledger.StateChange
}
