// Copyright 2025 Certen Protocol
//
// CertificateArchive persists finality certificates beyond the in-memory
// log the consensus engine keeps, so a restarted node (or an external
// auditor) can look up how any past state version was finalized.

package database

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/Zarethos/Rainsonet/pkg/consensus"
)

// CertificateArchive appends and looks up finality certificates in the
// Postgres-backed store.
type CertificateArchive struct {
	client *Client
}

// NewCertificateArchive wraps an already-connected Client.
func NewCertificateArchive(client *Client) *CertificateArchive {
	return &CertificateArchive{client: client}
}

type archivedVote struct {
	ProposalID   string `json:"proposal_id"`
	Voter        string `json:"voter"`
	Approve      bool   `json:"approve"`
	StateVersion uint64 `json:"state_version"`
	StateRoot    string `json:"state_root"`
	Timestamp    int64  `json:"timestamp"`
}

// Append stores a certificate. Safe to call more than once for the same
// proposal/version (insert-or-ignore: the first stored copy is kept),
// matching the gossip-idempotence
// the rest of the core relies on.
func (a *CertificateArchive) Append(ctx context.Context, cert *consensus.FinalityCertificate) error {
	votes := make([]archivedVote, len(cert.Votes))
	for i, v := range cert.Votes {
		votes[i] = archivedVote{
			ProposalID:   hex.EncodeToString(v.ProposalID[:]),
			Voter:        v.Voter.Hex(),
			Approve:      v.Approve,
			StateVersion: v.StateVersion,
			StateRoot:    hex.EncodeToString(v.StateRoot[:]),
			Timestamp:    v.Timestamp,
		}
	}
	votesJSON, err := json.Marshal(votes)
	if err != nil {
		return fmt.Errorf("database: marshal certificate votes: %w", err)
	}

	_, err = a.client.ExecContext(ctx, `
		INSERT INTO finality_certificates (proposal_id, state_version, state_root, votes, finalized_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (proposal_id) DO NOTHING`,
		hex.EncodeToString(cert.ProposalID[:]), cert.StateVersion, hex.EncodeToString(cert.StateRoot[:]), votesJSON, cert.FinalizedAt)
	if err != nil {
		return fmt.Errorf("database: append certificate: %w", err)
	}
	return nil
}

// GetByVersion looks up the certificate that finalized a given state version.
func (a *CertificateArchive) GetByVersion(ctx context.Context, version uint64) (*consensus.FinalityCertificate, error) {
	row := a.client.QueryRowContext(ctx, `
		SELECT proposal_id, state_version, state_root, votes, finalized_at
		FROM finality_certificates WHERE state_version = $1`, version)

	var proposalIDHex, stateRootHex string
	var votesJSON []byte
	cert := &consensus.FinalityCertificate{}
	if err := row.Scan(&proposalIDHex, &cert.StateVersion, &stateRootHex, &votesJSON, &cert.FinalizedAt); err != nil {
		return nil, ErrCertificateNotFound
	}

	if err := decodeHexInto(proposalIDHex, cert.ProposalID[:]); err != nil {
		return nil, fmt.Errorf("database: decode proposal id: %w", err)
	}
	if err := decodeHexInto(stateRootHex, cert.StateRoot[:]); err != nil {
		return nil, fmt.Errorf("database: decode state root: %w", err)
	}

	var votes []archivedVote
	if err := json.Unmarshal(votesJSON, &votes); err != nil {
		return nil, fmt.Errorf("database: unmarshal certificate votes: %w", err)
	}
	cert.Votes = make([]consensus.Vote, len(votes))
	for i, v := range votes {
		cert.Votes[i] = consensus.Vote{Approve: v.Approve, StateVersion: v.StateVersion, Timestamp: v.Timestamp}
		if err := decodeHexInto(v.ProposalID, cert.Votes[i].ProposalID[:]); err != nil {
			return nil, fmt.Errorf("database: decode vote proposal id: %w", err)
		}
		if err := decodeHexInto(v.StateRoot, cert.Votes[i].StateRoot[:]); err != nil {
			return nil, fmt.Errorf("database: decode vote state root: %w", err)
		}
		voterBytes, err := hex.DecodeString(v.Voter)
		if err != nil || len(voterBytes) != len(cert.Votes[i].Voter) {
			return nil, fmt.Errorf("database: decode vote voter: %w", err)
		}
		copy(cert.Votes[i].Voter[:], voterBytes)
	}

	return cert, nil
}

func decodeHexInto(s string, dst []byte) error {
	b, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(b) != len(dst) {
		return fmt.Errorf("unexpected length %d, want %d", len(b), len(dst))
	}
	copy(dst, b)
	return nil
}
