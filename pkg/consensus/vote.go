// Copyright 2025 Certen Protocol

package consensus

import (
	"github.com/Zarethos/Rainsonet/pkg/crypto"
)

// Vote is a validator's approval or rejection of a proposal. The
// signature covers "RAINSONET_VOTE:" || proposal_id || voter ||
// approve[1] || version_le || state_root || timestamp_le (§6).
type Vote struct {
	ProposalID   [32]byte
	Voter        NodeID
	Approve      bool
	StateVersion uint64
	StateRoot    [32]byte
	Signature    []byte
	Timestamp    int64
}

// SigningPreimage builds the field encoding a vote's signature covers;
// crypto.SignVote/VerifyVote prepend the domain tag.
func (v *Vote) SigningPreimage() []byte {
	buf := make([]byte, 0, 32+32+1+8+32+8)
	buf = append(buf, v.ProposalID[:]...)
	buf = append(buf, v.Voter[:]...)
	if v.Approve {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = append(buf, crypto.PutUint64LE(v.StateVersion)...)
	buf = append(buf, v.StateRoot[:]...)
	buf = append(buf, crypto.PutUint64LE(uint64(v.Timestamp))...)
	return buf
}

// NewVote builds and signs a vote.
func NewVote(kp *crypto.KeyPair, proposalID [32]byte, voter NodeID, approve bool, stateVersion uint64, stateRoot [32]byte, timestamp int64) *Vote {
	v := &Vote{
		ProposalID:   proposalID,
		Voter:        voter,
		Approve:      approve,
		StateVersion: stateVersion,
		StateRoot:    stateRoot,
		Timestamp:    timestamp,
	}
	v.Signature = crypto.SignVote(kp, v.SigningPreimage())
	return v
}

// FinalityCertificate is the proof of consensus attached to a finalized
// state version: every vote cast on the winning proposal.
type FinalityCertificate struct {
	ProposalID   [32]byte
	StateVersion uint64
	StateRoot    [32]byte
	Votes        []Vote
	FinalizedAt  int64
}

// Verify reports whether the certificate carries at least requiredVotes
// approvals, the soundness property tested independently of the engine
// that produced it.
func (c *FinalityCertificate) Verify(requiredVotes int) bool {
	approvals := 0
	for _, v := range c.Votes {
		if v.Approve {
			approvals++
		}
	}
	return approvals >= requiredVotes
}

// Voters returns the NodeIDs that voted on this certificate's proposal.
func (c *FinalityCertificate) Voters() []NodeID {
	out := make([]NodeID, len(c.Votes))
	for i, v := range c.Votes {
		out[i] = v.Voter
	}
	return out
}
