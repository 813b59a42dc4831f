// Copyright 2025 Certen Protocol

package consensus

import "errors"

var (
	ErrNotAValidator        = errors.New("consensus: local node is not an active validator")
	ErrUnknownProposer      = errors.New("consensus: proposer is not an active validator")
	ErrUnknownVoter         = errors.New("consensus: voter is not an active validator")
	ErrInvalidSignature     = errors.New("consensus: signature verification failed")
	ErrStateVersionMismatch = errors.New("consensus: unexpected proposal state version")
	ErrProposalNotFound     = errors.New("consensus: proposal not found")
)
