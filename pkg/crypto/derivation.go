// Copyright 2025 Certen Protocol
//
// HKDF sub-account key derivation. Not called by the wallet CLI or by the
// validator core state machine.

package crypto

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DeriveKey derives a deterministic ed25519 keypair for sub-account index
// idx from a master seed, using HKDF-SHA256 with a per-index info string.
func DeriveKey(masterSeed []byte, idx uint32) (*KeyPair, error) {
	info := fmt.Sprintf("rainsonet/wallet/account/%d", idx)
	r := hkdf.New(sha256.New, masterSeed, nil, []byte(info))

	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(r, seed); err != nil {
		return nil, fmt.Errorf("crypto: derive key: %w", err)
	}
	return KeyPairFromSeed(seed)
}
