// Copyright 2025 Certen Protocol
//
// BLAKE3-based hashing primitives shared by the ledger, mempool and
// consensus packages: address derivation, transaction/proposal ids and
// Merkle leaf/node hashing all route through here so every component
// hashes the same way.

package crypto

import (
	"crypto/ed25519"
	"encoding/hex"

	"lukechampine.com/blake3"
)

// HashSize is the digest size used throughout the core (32 bytes).
const HashSize = 32

// Hash256 returns the 32-byte BLAKE3 digest of data.
func Hash256(data []byte) [HashSize]byte {
	return blake3.Sum256(data)
}

// Hash256Hex returns the hex-encoded BLAKE3 digest of data.
func Hash256Hex(data []byte) string {
	h := Hash256(data)
	return hex.EncodeToString(h[:])
}

// HashPair computes BLAKE3(left || right), the Merkle node compression
// function used by pkg/merkle.
func HashPair(left, right []byte) []byte {
	combined := make([]byte, 0, len(left)+len(right))
	combined = append(combined, left...)
	combined = append(combined, right...)
	h := blake3.Sum256(combined)
	return h[:]
}

// DeriveAddress derives a 32-byte account address from an ed25519 public
// key: BLAKE3(pubkey). Addresses and NodeIds use the same derivation.
func DeriveAddress(pub ed25519.PublicKey) [32]byte {
	return blake3.Sum256(pub)
}

// DeriveAddressHex derives an address and renders it as "0x"-prefixed hex.
func DeriveAddressHex(pub ed25519.PublicKey) string {
	addr := DeriveAddress(pub)
	return "0x" + hex.EncodeToString(addr[:])
}
